// Package mqtt bridges the dispatcher to kitchen workers: assignments are
// published to per-kitchen topics and worker acknowledgements drive the
// assignment state machine. Acknowledgements are delivered at-least-once;
// the state machine tolerates duplicates.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	// AckTimeoutSeconds bounds how long a publish waits for broker
	// confirmation before being reported as failed.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "expeditor"
	}
	if c.ClientID == "" {
		c.ClientID = "expeditor-dispatcher"
	}
	if c.AckTimeoutSeconds == 0 {
		c.AckTimeoutSeconds = 5
	}
}

// AckSink applies worker-side transitions; implemented by the assignment
// engine.
type AckSink interface {
	Advance(ctx context.Context, assignmentID string, target model.AssignmentState) error
}

// assignmentMessage is the wire form pushed to kitchens.
type assignmentMessage struct {
	AssignmentID string `json:"assignment_id"`
	OrderID      string `json:"order_id"`
	LineItemID   string `json:"line_item_id"`
	ItemType     string `json:"item_type"`
	Quantity     int    `json:"quantity"`
	State        string `json:"state"`
}

// ackMessage is the wire form of a kitchen acknowledgement.
type ackMessage struct {
	AssignmentID string `json:"assignment_id"`
	State        string `json:"state"`
}

// PahoClient publishes assignments and subscribes to kitchen acknowledgement
// topics.
type PahoClient struct {
	cli     paho.Client
	cfg     Config
	log     logger.Logger
	acks    AckSink
	timeout time.Duration
}

// NewPahoClient connects to the broker and subscribes to the ack topic.
func NewPahoClient(cfg Config, acks AckSink) (*PahoClient, error) {
	cfg.SetDefaults()
	if acks == nil {
		return nil, fmt.Errorf("mqtt: nil ack sink")
	}
	log := logger.New("mqtt")
	pc := &PahoClient{
		cfg:     cfg,
		log:     log,
		acks:    acks,
		timeout: time.Duration(cfg.AckTimeoutSeconds) * time.Second,
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		topic := cfg.TopicPrefix + "/kitchen/+/ack"
		if token := c.Subscribe(topic, cfg.QoS, pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := paho.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// PublishAssignment pushes the assignment to its kitchen's topic.
func (p *PahoClient) PublishAssignment(_ context.Context, a model.Assignment) error {
	msg := assignmentMessage{
		AssignmentID: a.ID,
		OrderID:      a.OrderID,
		LineItemID:   a.LineItemID,
		ItemType:     a.ItemType,
		Quantity:     a.Quantity,
		State:        a.State.String(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/kitchen/%s/assignment", p.cfg.TopicPrefix, a.KitchenID)
	token := p.cli.Publish(topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	return token.Error()
}

// onAck applies a worker acknowledgement to the state machine. Violations are
// rejected requests on the worker side, never process-level failures here.
func (p *PahoClient) onAck(_ paho.Client, m paho.Message) {
	var msg ackMessage
	if err := json.Unmarshal(m.Payload(), &msg); err != nil {
		p.log.Errorf("malformed ack on %s: %v", m.Topic(), err)
		return
	}
	target, err := model.ParseAssignmentState(msg.State)
	if err != nil {
		p.log.Errorf("ack for %s: %v", msg.AssignmentID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.acks.Advance(ctx, msg.AssignmentID, target); err != nil {
		p.log.Warnf("ack %s -> %s rejected: %v", msg.AssignmentID, target, err)
		return
	}
	p.log.Debugw("worker ack applied", map[string]any{
		"assignment_id": msg.AssignmentID,
		"state":         target.String(),
	})
}

// Close disconnects from the broker.
func (p *PahoClient) Close() {
	p.cli.Disconnect(250)
}
