// Package mqtt publishes run progress events to an MQTT broker with
// Eclipse Paho.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/flexmarket/core/events"
	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/monitoring"
	coremqtt "github.com/kilianp07/flexmarket/core/mqtt"
)

// DefaultTopicPrefix is the root of every progress topic.
const DefaultTopicPrefix = "flexmarket"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	Retain      bool        `json:"retain"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	LWTQoS      byte        `json:"lwt_qos"`
	LWTRetain   bool        `json:"lwt_retain"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.ClientID == "" {
		c.ClientID = "flexmarket-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the QoS levels.
func (c Config) Validate() error {
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoClient implements the core Publisher interface using Eclipse Paho.
type PahoClient struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var _ coremqtt.Publisher = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker.
func NewPahoClient(cfg Config, log logger.Logger) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	pc := &PahoClient{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Message is the payload of a progress message.
type Message struct {
	MessageID string          `json:"message_id"`
	Kind      events.Kind     `json:"kind"`
	Event     json.RawMessage `json:"event"`
}

// Topic returns <prefix>/runs/<run id>/<kind>.
func Topic(prefix string, ev events.Event) string {
	return fmt.Sprintf("%s/runs/%s/%s", prefix, ev.Source().RunID, ev.Kind())
}

// Encode builds the payload of ev with a fresh message identifier.
func Encode(ev events.Event) (Message, []byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return Message{}, nil, err
	}
	m := Message{MessageID: uuid.NewString(), Kind: ev.Kind(), Event: body}
	payload, err := json.Marshal(m)
	return m, payload, err
}

// Publish sends ev to its run topic, retrying with exponential backoff.
// Failures are reported to the monitoring backend.
func (p *PahoClient) Publish(ev events.Event) (string, error) {
	m, payload, err := Encode(ev)
	if err != nil {
		return "", err
	}
	topic := Topic(p.prefix, ev)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("sent %s to %s", m.MessageID, topic)
			return m.MessageID, nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	err = fmt.Errorf("%w: %s: %v", coremqtt.ErrPublish, topic, publishErr)
	monitoring.CaptureException(err, map[string]string{"module": "mqtt", "run_id": ev.Source().RunID, "topic": topic})
	return "", err
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
