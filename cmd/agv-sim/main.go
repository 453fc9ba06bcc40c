// Command agv-sim stands in for the robot fleet: it subscribes to the
// motion fabric, walks each robot along its published path one node
// per interval, and reports state and arrivals back, so the control
// plane can run end to end without hardware.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/spf13/cobra"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		mqttURL  string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:           "agv-sim",
		Short:         "Simulated AGV fleet for the control plane",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, log, mqttURL, interval)
		},
	}
	cmd.Flags().StringVar(&mqttURL, "mqtt-url", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time per hop")
	return cmd
}

func run(ctx context.Context, log *slog.Logger, mqttURL string, interval time.Duration) error {
	opts := mqtt.NewClientOptions().
		AddBroker(mqttURL).
		SetClientID("agv-sim").
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("mqtt connect to %s: %w", mqttURL, tok.Error())
	}
	defer client.Disconnect(250)
	log.Info("fleet simulator connected", "broker", mqttURL)

	fleet := &fleet{
		log:      log,
		client:   client,
		interval: interval,
		walkers:  make(map[int]context.CancelFunc),
	}

	if tok := client.Subscribe(wire.TopicPlan, 0, fleet.onPlan); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", wire.TopicPlan, tok.Error())
	}
	if tok := client.Subscribe(wire.TopicShelfCmd, 0, fleet.onShelfCmd); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", wire.TopicShelfCmd, tok.Error())
	}

	<-ctx.Done()
	fleet.stopAll()
	return nil
}

// fleet walks one goroutine per robot along its latest plan. A new
// plan for the same robot preempts the walk in progress.
type fleet struct {
	log      *slog.Logger
	client   mqtt.Client
	interval time.Duration

	mu      sync.Mutex
	walkers map[int]context.CancelFunc
}

func (f *fleet) onPlan(_ mqtt.Client, m mqtt.Message) {
	var plan wire.PlanMessage
	if err := json.Unmarshal(m.Payload(), &plan); err != nil {
		f.log.Warn("bad plan message", "err", err)
		return
	}
	for _, robot := range plan.Robots {
		f.log.Info("plan received", "job", plan.JobID, "rid", robot.RID, "goal", robot.Goal, "hops", len(robot.NodePath))
		f.startWalker(robot)
	}
}

func (f *fleet) onShelfCmd(_ mqtt.Client, m mqtt.Message) {
	var cmd wire.ShelfCmd
	if err := json.Unmarshal(m.Payload(), &cmd); err != nil {
		f.log.Warn("bad shelf command", "err", err)
		return
	}
	f.log.Info("shelf command", "rid", cmd.RID, "cmd", cmd.Command, "shelf", cmd.ShelfID)
}

func (f *fleet) startWalker(robot wire.PlanRobot) {
	ctx, cancel := context.WithCancel(context.Background())

	f.mu.Lock()
	if prev, ok := f.walkers[robot.RID]; ok {
		prev()
	}
	f.walkers[robot.RID] = cancel
	f.mu.Unlock()

	go f.walk(ctx, robot)
}

// walk advances one hop per tick, reporting state on every hop and the
// arrival once the final node is reached.
func (f *fleet) walk(ctx context.Context, robot wire.PlanRobot) {
	path := robot.NodePath
	if len(path) == 0 {
		return
	}

	i := 0
	f.reportState(robot.RID, path[i])
	if len(path) == 1 {
		f.reportArrival(robot.RID, path[0])
		return
	}
	ticks := channerics.NewTicker(ctx.Done(), f.interval)
	for range ticks {
		if i++; i >= len(path) {
			return
		}
		f.reportState(robot.RID, path[i])
		if i == len(path)-1 {
			f.reportArrival(robot.RID, path[i])
			return
		}
	}
}

func (f *fleet) reportState(rid, node int) {
	f.publish(wire.TopicState, wire.StateMessage{
		RID: rid, CurrentNode: node, TS: time.Now().Unix(),
	})
}

func (f *fleet) reportArrival(rid, node int) {
	f.log.Info("arrived", "rid", rid, "node", node)
	f.publish(wire.TopicArrived, wire.ArrivedMessage{
		RID: rid, Node: node, TS: time.Now().Unix(),
	})
}

func (f *fleet) publish(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		f.log.Warn("marshal failed", "topic", topic, "err", err)
		return
	}
	f.client.Publish(topic, 0, false, payload)
}

func (f *fleet) stopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cancel := range f.walkers {
		cancel()
	}
}
