package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/paho"

	"github.com/ayusman/fallguard/internal/monitoring"
)

// DefaultMQTTTopic is the topic alerts are published on when none is configured.
const DefaultMQTTTopic = "fallguard/alerts"

// MQTTOptions configures an MQTTSink.
type MQTTOptions struct {
	Host      string
	Port      int
	Topic     string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive uint16
}

// MQTTSink publishes alerts to an MQTT v5 broker. The connection is opened
// on first use and reopened after it breaks.
type MQTTSink struct {
	opts MQTTOptions

	mu     sync.Mutex
	client *paho.Client
	conn   net.Conn
	broken atomic.Bool
	closed bool
}

// NewMQTTSink returns a sink for the broker in opts. It does not connect.
func NewMQTTSink(opts MQTTOptions) *MQTTSink {
	if opts.Topic == "" {
		opts.Topic = DefaultMQTTTopic
	}
	if opts.ClientID == "" {
		opts.ClientID = "fallguard"
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 30
	}
	return &MQTTSink{opts: opts}
}

func (*MQTTSink) Name() string { return "mqtt" }

// Payload is the JSON body of a published alert.
type Payload struct {
	ID          string  `json:"id"`
	Device      string  `json:"device,omitempty"`
	OccurredAt  string  `json:"occurred_at"`
	TimestampMs int64   `json:"timestamp_ms"`
	Probability float32 `json:"probability"`
	Threshold   float32 `json:"threshold"`
	Peak        float64 `json:"peak_magnitude"`
	Backend     string  `json:"backend,omitempty"`
}

func payloadOf(ev Event) Payload {
	return Payload{
		ID:          ev.ID,
		Device:      ev.DeviceID,
		OccurredAt:  ev.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		TimestampMs: ev.Timestamp,
		Probability: ev.Probability,
		Threshold:   ev.Config.FallThreshold,
		Peak:        ev.Summary.Peak,
		Backend:     ev.Backend,
	}
}

func (s *MQTTSink) Alert(ctx context.Context, ev Event) error {
	body, err := json.Marshal(payloadOf(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("mqtt sink closed")
	}
	if s.client != nil && s.broken.Load() {
		s.dropLocked()
	}
	if s.client == nil {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
	}

	_, err = s.client.Publish(ctx, &paho.Publish{
		QoS:     s.opts.QoS,
		Topic:   s.opts.Topic,
		Payload: body,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		s.dropLocked()
		return fmt.Errorf("publish %s: %w", s.opts.Topic, err)
	}
	return nil
}

func (s *MQTTSink) connectLocked(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mqtt dial %s: %w", addr, err)
	}

	s.broken.Store(false)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.opts.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			monitoring.Logf("mqtt client error: %v", err)
			s.broken.Store(true)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			monitoring.Logf("mqtt server disconnect: reason %d", d.ReasonCode)
			s.broken.Store(true)
		},
	})

	cp := &paho.Connect{
		ClientID:   s.opts.ClientID,
		KeepAlive:  s.opts.KeepAlive,
		CleanStart: true,
	}
	if s.opts.Username != "" {
		cp.Username = s.opts.Username
		cp.UsernameFlag = true
	}
	if s.opts.Password != "" {
		cp.Password = []byte(s.opts.Password)
		cp.PasswordFlag = true
	}

	if _, err := client.Connect(ctx, cp); err != nil {
		conn.Close()
		return fmt.Errorf("mqtt connect %s: %w", addr, err)
	}

	monitoring.Logf("mqtt connected to %s", addr)
	s.client = client
	s.conn = conn
	return nil
}

func (s *MQTTSink) dropLocked() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.client = nil
	s.conn = nil
}

// Close disconnects from the broker. It is safe to call more than once.
func (s *MQTTSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.client != nil && !s.broken.Load() {
		err = s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	s.dropLocked()
	return err
}
