package mqttbridge

import (
	"testing"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
)

func TestConfigDefaultTopics(t *testing.T) {
	cfg := Config{DeviceID: "heater1"}
	if got := cfg.commandTopic(); got != "webasto/heater1/command" {
		t.Fatalf("commandTopic = %q", got)
	}
	if got := cfg.statusTopic(); got != "webasto/heater1/status" {
		t.Fatalf("statusTopic = %q", got)
	}
	if got := cfg.discoveryTopic(); got != "homeassistant/climate/heater1/config" {
		t.Fatalf("discoveryTopic = %q", got)
	}
}

func TestConfigExplicitTopicsOverrideDefaults(t *testing.T) {
	cfg := Config{DeviceID: "heater1", CommandTopic: "custom/cmd"}
	if got := cfg.commandTopic(); got != "custom/cmd" {
		t.Fatalf("commandTopic = %q", got)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]protocol.CommandKind{
		"stop":        protocol.CmdStop,
		"Start":       protocol.CmdStart,
		"run_minutes": protocol.CmdRunMinutes,
		"STATUS":      protocol.CmdQueryStatus,
	}
	for in, want := range cases {
		got, ok := parseKind(in)
		if !ok || got != want {
			t.Fatalf("parseKind(%q) = %v, %v; want %v, true", in, got, ok, want)
		}
	}
	if _, ok := parseKind("defrost"); ok {
		t.Fatal("unknown kind should not parse")
	}
}

func TestNewRejectsMissingBrokerURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing BrokerURL")
	}
}

func TestNewDefaultsStaleAge(t *testing.T) {
	b, err := New(Config{BrokerURL: "tcp://localhost:1883", DeviceID: "heater1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.cfg.StaleAge != 3600*time.Second {
		t.Fatalf("StaleAge = %v, want 3600s default", b.cfg.StaleAge)
	}
}

func TestOnMessageDropsStaleCommand(t *testing.T) {
	b, err := New(Config{BrokerURL: "tcp://localhost:1883", DeviceID: "heater1", StaleAge: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var received bool
	b.onCmd = func(protocol.CommandKind, uint8) { received = true }

	stale := []byte(`{"kind":"start","minutes":20,"ts":1}`)
	b.onMessage(nil, fakeMessage{payload: stale})

	if received {
		t.Fatal("stale command must not reach the handler")
	}
}

func TestOnMessageDeliversFreshCommand(t *testing.T) {
	b, err := New(Config{BrokerURL: "tcp://localhost:1883", DeviceID: "heater1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var gotKind protocol.CommandKind
	var gotMinutes uint8
	b.onCmd = func(k protocol.CommandKind, m uint8) { gotKind = k; gotMinutes = m }

	fresh := []byte(`{"kind":"run_minutes","minutes":15,"ts":` + itoa(time.Now().Unix()) + `}`)
	b.onMessage(nil, fakeMessage{payload: fresh})

	if gotKind != protocol.CmdRunMinutes || gotMinutes != 15 {
		t.Fatalf("got kind=%v minutes=%d", gotKind, gotMinutes)
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// fakeMessage implements paho.Message with only Payload() populated,
// enough to drive onMessage in tests without a broker.
type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "webasto/heater1/command" }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
