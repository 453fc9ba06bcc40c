// Package transport connects the event loop to the outside world: a
// websocket server for operator clients and an MQTT client for the
// robot motion fabric. Both ends only construct events and forward
// messages; all decisions stay in the orchestrator.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/metrics"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/orchestrator"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

// WSServer accepts operator clients, decodes their requests into loop
// events, and fans broadcasts out to every connected client.
type WSServer struct {
	log  *slog.Logger
	loop *orchestrator.Loop
	met  *metrics.Metrics

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWSServer wires a server to the loop. The metrics registry is
// exposed on /metrics of the same listener. loop may be nil at
// construction: the server is the orchestrator's broadcaster, so the
// two reference each other; SetLoop closes the cycle before Serve.
func NewWSServer(log *slog.Logger, loop *orchestrator.Loop, met *metrics.Metrics) *WSServer {
	return &WSServer{
		log:     log,
		loop:    loop,
		met:     met,
		clients: make(map[*wsClient]struct{}),
	}
}

// SetLoop binds the event loop. Must happen before Serve.
func (s *WSServer) SetLoop(loop *orchestrator.Loop) { s.loop = loop }

// Serve listens on addr until the context ends. Always returns a
// non-nil error; http.ErrServerClosed after a clean shutdown.
func (s *WSServer) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.met.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	s.log.Info("operator websocket listening", "addr", addr)
	return srv.ListenAndServe()
}

// Broadcast sends a message to every connected client. Implements
// orchestrator.Broadcaster; called only from the loop goroutine.
func (s *WSServer) Broadcast(msg any) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.log.Warn("broadcast failed, dropping client", "remote", c.conn.RemoteAddr(), "err", err)
			s.drop(c)
		}
	}
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Info("operator connected", "remote", conn.RemoteAddr())

	defer func() {
		s.drop(c)
		s.log.Info("operator disconnected", "remote", conn.RemoteAddr())
	}()
	s.readLoop(c)
}

// readLoop turns inbound frames into loop events. Malformed frames are
// answered directly; the loop never sees them.
func (s *WSServer) readLoop(c *wsClient) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("operator read failed", "remote", c.conn.RemoteAddr(), "err", err)
			}
			return
		}

		req, err := wire.Decode(data)
		if err != nil {
			s.answer(c, wire.Errorf("%v", err))
			continue
		}
		ev, err := orchestrator.EventFor(req, func(msg any) { s.answer(c, msg) })
		if err != nil {
			s.answer(c, wire.Errorf("%v", err))
			continue
		}
		s.loop.Submit(ev)
	}
}

func (s *WSServer) answer(c *wsClient, msg any) {
	if err := c.send(msg); err != nil {
		s.log.Warn("reply failed", "remote", c.conn.RemoteAddr(), "err", err)
		s.drop(c)
	}
}

func (s *WSServer) drop(c *wsClient) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if present {
		_ = c.conn.Close()
	}
}

// wsClient serializes writes to one connection: replies come from the
// loop goroutine, broadcasts and error answers from transport
// goroutines.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}
