// Package config holds the compile-time timing, addressing and feature
// knobs from spec §3, plus a JSON override loader for bench/simulator runs
// that need compressed timers. The const-block-of-contracts style follows
// amken3d-gopper's protocol/protocol.go; the override loader follows
// standalone/config/config.go's "unmarshal then apply defaults" shape.
package config

import (
	"encoding/json"
	"time"
)

// Default timing per spec §3.
const (
	SenderRetryPeriod = 1 * time.Second
	SenderAckDeadline = 10 * time.Second

	ReceiverIdleSleep    = 4 * time.Second
	ReceiverListenWindow = 400 * time.Millisecond
	ReceiverExtendedWake = 60 * time.Second

	PollPeriod          = 2 * time.Second
	KeepAlivePeriod     = 10 * time.Second
	RenewalThreshold    = 30 * time.Second
	MQTTStaleCommandAge = 3600 * time.Second

	MenuLongPressThreshold = 800 * time.Millisecond
	MenuNavTimeout         = 10 * time.Second
	MenuDebounce           = 20 * time.Millisecond
)

// W-BUS UART line parameters (spec §4.4, §6).
const (
	WBusBaud = 2400
	// tarm/serial.Config uses its own parity/size constants; wbus.OpenPort
	// translates these into that shape.
	WBusDataBits = 8
	WBusStopBits = 1

	DiagnosticCLIBaud = 115200
)

// Node addressing (spec §3, §6).
const (
	ControllerAddr uint8 = 0xF // high nibble of the W-BUS header for controller->heater frames (0xF4)
	HeaterAddr     uint8 = 0x4 // high nibble for heater->controller frames (0x4F)
)

// W-BUS command bytes (spec §6).
const (
	WBusCmdStop        = 0x10
	WBusCmdStartHeat   = 0x21
	WBusCmdStartVent   = 0x22
	WBusCmdKeepAlive   = 0x44
	WBusCmdStatusQuery = 0x50
	WBusStatusTLV      = 0x30
)

// Tuning holds the subset of the above that a bench run may want to
// shrink. Default fills every field from the package constants;
// LoadOverrides starts from Default. A zero-value field is used as zero.
type Tuning struct {
	SenderRetryPeriod time.Duration `json:"sender_retry_period_ms,omitempty"`
	SenderAckDeadline time.Duration `json:"sender_ack_deadline_ms,omitempty"`

	ReceiverIdleSleep    time.Duration `json:"receiver_idle_sleep_ms,omitempty"`
	ReceiverListenWindow time.Duration `json:"receiver_listen_window_ms,omitempty"`
	ReceiverExtendedWake time.Duration `json:"receiver_extended_wake_ms,omitempty"`

	PollPeriod      time.Duration `json:"poll_period_ms,omitempty"`
	KeepAlivePeriod time.Duration `json:"keep_alive_period_ms,omitempty"`

	// DisableSleep short-circuits the Receiver's Idle->DeepSleep transition
	// only; every other state and timer is unaffected (spec §9 Open
	// Question 5).
	DisableSleep bool `json:"disable_sleep,omitempty"`
}

// Default returns a Tuning populated with the package constants.
func Default() Tuning {
	return Tuning{
		SenderRetryPeriod:    SenderRetryPeriod,
		SenderAckDeadline:    SenderAckDeadline,
		ReceiverIdleSleep:    ReceiverIdleSleep,
		ReceiverListenWindow: ReceiverListenWindow,
		ReceiverExtendedWake: ReceiverExtendedWake,
		PollPeriod:           PollPeriod,
		KeepAlivePeriod:      KeepAlivePeriod,
		DisableSleep:         false,
	}
}

// durationOverrides is the wire shape for LoadOverrides: plain
// milliseconds, since time.Duration does not round-trip through JSON.
type durationOverrides struct {
	SenderRetryPeriodMS    *int64 `json:"sender_retry_period_ms"`
	SenderAckDeadlineMS    *int64 `json:"sender_ack_deadline_ms"`
	ReceiverIdleSleepMS    *int64 `json:"receiver_idle_sleep_ms"`
	ReceiverListenWindowMS *int64 `json:"receiver_listen_window_ms"`
	ReceiverExtendedWakeMS *int64 `json:"receiver_extended_wake_ms"`
	PollPeriodMS           *int64 `json:"poll_period_ms"`
	KeepAlivePeriodMS      *int64 `json:"keep_alive_period_ms"`
	DisableSleep           *bool  `json:"disable_sleep"`
}

// LoadOverrides parses jsonData and applies any present fields on top of
// Default(), leaving unspecified fields at their compiled-in value.
func LoadOverrides(jsonData []byte) (Tuning, error) {
	t := Default()
	if len(jsonData) == 0 {
		return t, nil
	}

	var o durationOverrides
	if err := json.Unmarshal(jsonData, &o); err != nil {
		return Tuning{}, err
	}

	applyMS := func(dst *time.Duration, src *int64) {
		if src != nil {
			*dst = time.Duration(*src) * time.Millisecond
		}
	}
	applyMS(&t.SenderRetryPeriod, o.SenderRetryPeriodMS)
	applyMS(&t.SenderAckDeadline, o.SenderAckDeadlineMS)
	applyMS(&t.ReceiverIdleSleep, o.ReceiverIdleSleepMS)
	applyMS(&t.ReceiverListenWindow, o.ReceiverListenWindowMS)
	applyMS(&t.ReceiverExtendedWake, o.ReceiverExtendedWakeMS)
	applyMS(&t.PollPeriod, o.PollPeriodMS)
	applyMS(&t.KeepAlivePeriod, o.KeepAlivePeriodMS)
	if o.DisableSleep != nil {
		t.DisableSleep = *o.DisableSleep
	}

	return t, nil
}
