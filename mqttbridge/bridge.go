// Package mqttbridge is the optional third command source: it subscribes
// to a command topic, drops anything older than config.MQTTStaleCommandAge,
// and publishes Receiver status plus a Home-Assistant-style discovery
// document. Grounded on other_examples' Hermod mqtt.Source: Paho client
// options (broker URL, client ID, auth, QoS, TLS-on-scheme, auto-reconnect),
// adapted from a generic hermod.Source/Message pump to a narrow
// command-in/status-out bridge for one device.
package mqttbridge

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/universam1/webasto-lora-remote-ctrl/logging"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
)

// Config holds connection and topic parameters. CommandTopic,
// StatusTopic and DiscoveryTopic default to device-ID-scoped names when
// left empty.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	DeviceID string // used to derive default topic names and the HA unique_id

	CommandTopic   string
	StatusTopic    string
	DiscoveryTopic string

	StaleAge time.Duration // commands older than this are dropped; defaults to config.MQTTStaleCommandAge
}

func (c Config) commandTopic() string {
	if c.CommandTopic != "" {
		return c.CommandTopic
	}
	return fmt.Sprintf("webasto/%s/command", c.DeviceID)
}

func (c Config) statusTopic() string {
	if c.StatusTopic != "" {
		return c.StatusTopic
	}
	return fmt.Sprintf("webasto/%s/status", c.DeviceID)
}

func (c Config) discoveryTopic() string {
	if c.DiscoveryTopic != "" {
		return c.DiscoveryTopic
	}
	return fmt.Sprintf("homeassistant/climate/%s/config", c.DeviceID)
}

// commandMessage is the wire shape of a command published to
// CommandTopic. TimestampUnix lets the bridge reject stale retained
// messages or delayed deliveries (spec's MQTT stale-command threshold).
type commandMessage struct {
	Kind          string `json:"kind"`
	Minutes       uint8  `json:"minutes,omitempty"`
	TimestampUnix int64  `json:"ts"`
}

// statusMessage is the wire shape published to StatusTopic.
type statusMessage struct {
	State        string `json:"state"`
	MinutesLeft  uint8  `json:"minutes_left,omitempty"`
	TemperatureC *int16 `json:"temperature_c,omitempty"`
	VoltageMV    *uint16 `json:"voltage_mv,omitempty"`
	PowerW       *uint16 `json:"power_w,omitempty"`
	LastCmdSeq   uint16 `json:"last_cmd_seq"`
	LastErrCode  uint8  `json:"last_err_code,omitempty"`
}

// CommandHandler receives a command decoded off the command topic, the
// same shape Dispatch in the receiver package expects for SourceMQTT.
type CommandHandler func(kind protocol.CommandKind, minutes uint8)

// Bridge owns one Paho client and the three topics.
type Bridge struct {
	cfg    Config
	client paho.Client
	onCmd  CommandHandler
}

// New builds the Paho client options following Hermod's scheme-based TLS
// selection and auto-reconnect defaults, but does not connect yet.
func New(cfg Config) (*Bridge, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqttbridge: BrokerURL is required")
	}
	if cfg.StaleAge == 0 {
		cfg.StaleAge = 3600 * time.Second
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.AutoReconnect = true
	opts.MaxReconnectInterval = 30 * time.Second

	if strings.HasPrefix(cfg.BrokerURL, "ssl://") || strings.HasPrefix(cfg.BrokerURL, "tls://") || strings.HasPrefix(cfg.BrokerURL, "wss://") {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if roots, err := x509.SystemCertPool(); err == nil && roots != nil {
			tlsCfg.RootCAs = roots
		}
		opts.SetTLSConfig(tlsCfg)
	}

	b := &Bridge{cfg: cfg}

	opts.OnConnect = func(c paho.Client) {
		topic := cfg.commandTopic()
		if token := c.Subscribe(topic, 1, b.onMessage); token.Wait() && token.Error() != nil {
			logging.Warn("mqttbridge: subscribe " + topic + ": " + token.Error().Error())
		}
	}
	opts.SetDefaultPublishHandler(func(paho.Client, paho.Message) {})

	b.client = paho.NewClient(opts)
	return b, nil
}

// Connect blocks until the client connects (or the 15s timeout elapses)
// and registers the handler invoked for each fresh, non-stale command.
func (b *Bridge) Connect(handler CommandHandler) error {
	b.onCmd = handler
	token := b.client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("mqttbridge: connect timeout")
	}
	return token.Error()
}

func (b *Bridge) onMessage(_ paho.Client, m paho.Message) {
	var cm commandMessage
	if err := json.Unmarshal(m.Payload(), &cm); err != nil {
		logging.Warn("mqttbridge: malformed command payload: " + err.Error())
		return
	}

	age := time.Since(time.Unix(cm.TimestampUnix, 0))
	if cm.TimestampUnix != 0 && age > b.cfg.StaleAge {
		logging.Debug("mqttbridge: dropping stale command")
		return
	}

	kind, ok := parseKind(cm.Kind)
	if !ok {
		logging.Warn("mqttbridge: unknown command kind: " + cm.Kind)
		return
	}
	if b.onCmd != nil {
		b.onCmd(kind, cm.Minutes)
	}
}

func parseKind(s string) (protocol.CommandKind, bool) {
	switch strings.ToLower(s) {
	case "stop":
		return protocol.CmdStop, true
	case "start":
		return protocol.CmdStart, true
	case "run", "run_minutes", "runminutes":
		return protocol.CmdRunMinutes, true
	case "status", "query_status", "querystatus":
		return protocol.CmdQueryStatus, true
	default:
		return 0, false
	}
}

// PublishStatus publishes a non-retained state document built from a
// Status payload, the way Dispatch/BuildStatus produces after every
// command or poll tick.
func (b *Bridge) PublishStatus(s *protocol.StatusPayload) error {
	msg := statusMessage{
		State:       s.State.String(),
		MinutesLeft: s.MinutesLeft,
		LastCmdSeq:  s.LastCmdSeq,
		LastErrCode: s.LastErrCode,
	}
	if s.ValidMask&protocol.StatusValidTemp != 0 {
		t := s.TemperatureC
		msg.TemperatureC = &t
	}
	if s.ValidMask&protocol.StatusValidVoltage != 0 {
		v := s.VoltageMV
		msg.VoltageMV = &v
	}
	if s.ValidMask&protocol.StatusValidPower != 0 {
		p := s.PowerW
		msg.PowerW = &p
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mqttbridge: marshal status: %w", err)
	}
	return b.publish(data)
}

// discoveryDocument is a minimal Home-Assistant MQTT-discovery config for
// a climate-like device: state topic, command topic and a unique_id
// derived from DeviceID.
type discoveryDocument struct {
	Name        string `json:"name"`
	UniqueID    string `json:"unique_id"`
	StateTopic  string `json:"state_topic"`
	CommandTopic string `json:"command_topic"`
	Modes       []string `json:"modes"`
}

// PublishDiscovery publishes a retained discovery document once, at
// startup, per the Home-Assistant MQTT discovery convention.
func (b *Bridge) PublishDiscovery() error {
	doc := discoveryDocument{
		Name:         "Webasto heater " + b.cfg.DeviceID,
		UniqueID:     "webasto_" + b.cfg.DeviceID,
		StateTopic:   b.cfg.statusTopic(),
		CommandTopic: b.cfg.commandTopic(),
		Modes:        []string{"off", "heat"},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("mqttbridge: marshal discovery: %w", err)
	}
	token := b.client.Publish(b.cfg.discoveryTopic(), 1, true, data)
	token.Wait()
	return token.Error()
}

func (b *Bridge) publish(payload []byte) error {
	token := b.client.Publish(b.cfg.statusTopic(), 1, false, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects gracefully.
func (b *Bridge) Close() error {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	return nil
}
