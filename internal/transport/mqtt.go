package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/orchestrator"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// Fabric is the MQTT side of the control plane: plans, low-level
// motion targets, and shelf commands go out; robot state reports and
// arrivals come back in as loop events. Implements
// orchestrator.MotionFabric.
type Fabric struct {
	log     *slog.Logger
	client  mqtt.Client
	limiter *rate.Limiter
}

// ConnectFabric dials the broker. The low-command limiter is sized to
// the fleet: one command per robot per second sustained, a full
// fleet's worth in a burst.
func ConnectFabric(log *slog.Logger, brokerURL, clientID string, fleetSize int) (*Fabric, error) {
	if fleetSize < 1 {
		fleetSize = 1
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOrderMatters(false)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		log.Info("mqtt connected", "broker", brokerURL)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", brokerURL)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return &Fabric{
		log:     log,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(fleetSize), fleetSize),
	}, nil
}

// Close disconnects after flushing in-flight messages.
func (f *Fabric) Close() {
	f.client.Disconnect(uint(mqttPublishTimeout.Milliseconds()))
}

func (f *Fabric) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	tok := f.client.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	return tok.Error()
}

// PublishPlan emits a dispatch job on /agv/plan.
func (f *Fabric) PublishPlan(msg wire.PlanMessage) error {
	return f.publish(wire.TopicPlan, msg)
}

// PublishLowCmd emits a motion target on /agv/lowcmd. Commands over
// the fleet rate are dropped; the next tick re-issues every target.
func (f *Fabric) PublishLowCmd(msg wire.LowCmd) error {
	if !f.limiter.Allow() {
		return nil
	}
	return f.publish(wire.TopicLowCmd, msg)
}

// PublishShelfCmd emits a lift or lower command on /agv/shelf_cmd.
func (f *Fabric) PublishShelfCmd(msg wire.ShelfCmd) error {
	return f.publish(wire.TopicShelfCmd, msg)
}

// SubscribeInbound feeds /agv/state and /agv/arrived into the loop.
// Handler callbacks run on paho's goroutines; Submit is safe there.
func (f *Fabric) SubscribeInbound(loop *orchestrator.Loop) error {
	stateHandler := func(_ mqtt.Client, m mqtt.Message) {
		var msg wire.StateMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			f.log.Warn("bad state message", "err", err)
			return
		}
		node := msg.CurrentNode
		req := &wire.RobotStatus{Type: wire.TypeRobotStatus, RID: msg.RID, CurrentNode: &node}
		if msg.State != "" {
			state := msg.State
			req.Status = &state
		}
		loop.Submit(orchestrator.StatusUpdateEvent{Req: req})
	}
	arrivedHandler := func(_ mqtt.Client, m mqtt.Message) {
		var msg wire.ArrivedMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			f.log.Warn("bad arrived message", "err", err)
			return
		}
		loop.Submit(orchestrator.ArrivedEvent{RID: msg.RID, Node: msg.Node})
	}

	for topic, handler := range map[string]mqtt.MessageHandler{
		wire.TopicState:   stateHandler,
		wire.TopicArrived: arrivedHandler,
	} {
		tok := f.client.Subscribe(topic, 0, handler)
		if !tok.WaitTimeout(mqttConnectTimeout) {
			return fmt.Errorf("subscribe %s: timeout", topic)
		}
		if err := tok.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}
