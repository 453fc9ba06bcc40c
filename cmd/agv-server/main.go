// Command agv-server runs the picking-fleet control plane: it loads
// the warehouse description, connects the operator websocket and the
// MQTT motion fabric, and drives the orchestrator loop until signaled.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/config"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/journal"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/metrics"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/orchestrator"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/planner"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport"
)

const tickPeriod = time.Second

// errTransport tags failures that warrant exit code 2 instead of 1.
var errTransport = errors.New("transport")

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		if errors.Is(err, errTransport) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFile  string
		mapFile     string
		robotsFile  string
		shelvesFile string
		wsAddr      string
		mqttAddr    string
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "agv-server",
		Short: "Control plane for a warehouse AGV picking fleet",
		Long: `agv-server owns the fleet: it decomposes picking orders into shelf
trips, plans conflict-free paths, and drives every robot through its
task over MQTT while operators watch and feed it over a websocket.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			applyFlagOverrides(cfg, cmd, mapFile, robotsFile, shelvesFile, wsAddr, mqttAddr, journalPath)
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (YAML/TOML/JSON; AGV_* env vars override)")
	cmd.Flags().StringVar(&mapFile, "map", "", "warehouse map JSON")
	cmd.Flags().StringVar(&robotsFile, "robots", "", "fleet roster JSON")
	cmd.Flags().StringVar(&shelvesFile, "shelves", "", "shelf inventory JSON")
	cmd.Flags().StringVar(&wsAddr, "ws-addr", "", "operator websocket listen address (host:port)")
	cmd.Flags().StringVar(&mqttAddr, "mqtt-addr", "", "MQTT broker address (host:port)")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite event journal path (empty disables)")
	return cmd
}

func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command, mapFile, robotsFile, shelvesFile, wsAddr, mqttAddr, journalPath string) {
	if mapFile != "" {
		cfg.MapFile = mapFile
	}
	if robotsFile != "" {
		cfg.RobotsFile = robotsFile
	}
	if shelvesFile != "" {
		cfg.ShelvesFile = shelvesFile
	}
	if wsAddr != "" {
		if host, port, err := splitAddr(wsAddr); err == nil {
			cfg.WSHost, cfg.WSPort = host, port
		}
	}
	if mqttAddr != "" {
		if host, port, err := splitAddr(mqttAddr); err == nil {
			cfg.MQTTHost, cfg.MQTTPort = host, port
		}
	}
	if cmd.Flags().Changed("journal") {
		cfg.JournalPath = journalPath
	}
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", portStr, err)
	}
	return host, port, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)

	g, err := config.LoadMap(cfg.MapFile)
	if err != nil {
		return err
	}
	shelfSpecs, stations, err := config.LoadShelves(cfg.ShelvesFile)
	if err != nil {
		return err
	}
	robotSpecs, err := config.LoadRobots(cfg.RobotsFile)
	if err != nil {
		return err
	}

	shelves := core.NewShelfRegistry(g)
	for _, s := range shelfSpecs {
		if err := shelves.Add(core.ShelfID(s.Node), s.Label, s.Node, s.Items); err != nil {
			return err
		}
	}
	robots := core.NewRobotRegistry()
	for _, r := range robotSpecs {
		if !g.IsValid(r.Home) {
			return fmt.Errorf("robot %d: home node %d not in map", r.ID, r.Home)
		}
		robots.Add(r.ID, r.Name, r.Home)
	}
	tasks := core.NewTaskStore(g, shelves, stations)
	log.Info("warehouse loaded",
		"nodes", g.NodeCount(), "shelves", len(shelfSpecs),
		"robots", len(robotSpecs), "stations", len(stations))

	var rec journal.Recorder = journal.Nop{}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, log)
		if err != nil {
			return err
		}
		defer j.Close()
		rec = j
		log.Info("journal open", "path", cfg.JournalPath)
	}

	fabric, err := transport.ConnectFabric(log, cfg.BrokerURL(), "agv-server", len(robotSpecs))
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer fabric.Close()

	met := metrics.New()
	ws := transport.NewWSServer(log, nil, met)
	orch := orchestrator.New(orchestrator.Options{
		Log:                  log,
		Graph:                g,
		Planner:              planner.New(g, cfg.MaxTime, cfg.StayAtGoal),
		Shelves:              shelves,
		Robots:               robots,
		Tasks:                tasks,
		Fabric:               fabric,
		Broadcast:            ws,
		Metrics:              met,
		Journal:              rec,
		Speed:                cfg.Speed,
		ArrivalTimeoutPerHop: time.Duration(cfg.ArrivalTimeoutPerHop * float64(time.Second)),
	})
	loop := orchestrator.NewLoop(orch, tickPeriod)
	ws.SetLoop(loop)

	if err := fabric.SubscribeInbound(loop); err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- ws.Serve(ctx, cfg.WSAddr()) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-loopDone
			return fmt.Errorf("%w: %v", errTransport, err)
		}
	}
	<-loopDone
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
