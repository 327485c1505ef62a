package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/eclipse/paho.golang/paho"
)

// MQTT publishes records to <prefix>/<key>/<topic> over MQTT v5 at QoS 0.
// The connection is opened on first use and reopened after any failure.
type MQTT struct {
	addr     string
	clientID string
	prefix   string
	username string
	password []byte

	mu     sync.Mutex
	client *paho.Client
	closed bool
}

// NewMQTT parses rawURL (mqtt://, tcp://, host:port). It does not connect.
func NewMQTT(rawURL, clientID, prefix string) (*MQTT, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = "mqtt://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sink: invalid mqtt url: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp":
	default:
		return nil, fmt.Errorf("sink: unsupported mqtt scheme %q", u.Scheme)
	}
	host := u.Host
	if host == "" {
		return nil, errors.New("sink: mqtt url has no host")
	}
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "1883")
	}
	m := &MQTT{addr: host, clientID: clientID, prefix: strings.Trim(prefix, "/")}
	if u.User != nil {
		m.username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			m.password = []byte(p)
		}
	}
	return m, nil
}

// Topic is the full MQTT topic a record is sent to.
func (m *MQTT) Topic(topic, key string) string {
	parts := make([]string, 0, 3)
	if m.prefix != "" {
		parts = append(parts, m.prefix)
	}
	if key != "" {
		parts = append(parts, key)
	}
	return strings.Join(append(parts, topic), "/")
}

func (m *MQTT) connect(ctx context.Context) (*paho.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("sink: mqtt closed")
	}
	if m.client != nil {
		return m.client, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return nil, fmt.Errorf("sink: dial %s: %w", m.addr, err)
	}
	var c *paho.Client
	c = paho.NewClient(paho.ClientConfig{
		ClientID: m.clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			monitoring.Logf("sink: mqtt client error: %v", err)
			m.drop(c)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			monitoring.Logf("sink: mqtt server disconnect: reason %d", d.ReasonCode)
			m.drop(c)
		},
	})
	cp := &paho.Connect{
		ClientID:   m.clientID,
		KeepAlive:  30,
		CleanStart: true,
	}
	if m.username != "" {
		cp.Username = m.username
		cp.UsernameFlag = true
		cp.Password = m.password
		cp.PasswordFlag = len(m.password) > 0
	}
	if _, err := c.Connect(ctx, cp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sink: mqtt connect: %w", err)
	}
	m.client = c
	return c, nil
}

// drop forgets c if it is still the current client.
func (m *MQTT) drop(c *paho.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == c {
		m.client = nil
	}
}

func (m *MQTT) Publish(ctx context.Context, topic, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sink: marshal %s: %w", topic, err)
	}
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	_, err = c.Publish(ctx, &paho.Publish{
		Topic:   m.Topic(topic, key),
		QoS:     0,
		Payload: b,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
			User:        paho.UserProperties{{Key: "device_id", Value: key}},
		},
	})
	if err != nil {
		m.drop(c)
		_ = c.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("sink: mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects. Later Publish calls fail.
func (m *MQTT) Close() error {
	m.mu.Lock()
	c := m.client
	m.client = nil
	m.closed = true
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
