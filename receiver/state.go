// Package receiver implements the Receiver's duty-cycled control loop: a
// state machine multiplexing radio, menu and MQTT command sources,
// translating them to W-BUS, polling the heater conditionally, and
// emitting correlated status. ReceiverState replaces the teacher's global
// gStatus/gLastProcessedCmdSeq pair with a struct owned by the loop and
// passed by reference to helpers, per the source's own re-architecture
// note against global mutable state.
package receiver

import (
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/persist"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/session"
	"github.com/universam1/webasto-lora-remote-ctrl/wbus"
)

// LoopState is the high-level duty-cycle state (§4.7's diagram).
type LoopState int

const (
	StateBooting LoopState = iota
	StateIdle
	StateExecuting
	StateRunning
	StateExtendedWake
	StateDeepSleep
)

func (s LoopState) String() string {
	switch s {
	case StateBooting:
		return "Booting"
	case StateIdle:
		return "Idle"
	case StateExecuting:
		return "Executing"
	case StateRunning:
		return "Running"
	case StateExtendedWake:
		return "ExtendedWake"
	case StateDeepSleep:
		return "DeepSleep"
	default:
		return "Unknown"
	}
}

// CommandSource names which input funneled a command through dispatch,
// kept for diagnostics only.
type CommandSource int

const (
	SourceRadio CommandSource = iota
	SourceMenu
	SourceMQTT
)

func (s CommandSource) String() string {
	switch s {
	case SourceRadio:
		return "radio"
	case SourceMenu:
		return "menu"
	case SourceMQTT:
		return "mqtt"
	default:
		return "unknown"
	}
}

// ReceiverState is the single struct owned by the main loop, replacing
// the teacher's gStatus/gLastProcessedCmdSeq globals. Helpers take it by
// pointer.
type ReceiverState struct {
	Loop LoopState

	HeaterState protocol.HeaterState
	Session     session.HeaterSessionState
	Snapshot    wbus.Snapshot

	LastSource     CommandSource
	ExtendedWakeAt time.Time

	// Store holds the values that survive sleep: the last processed
	// command seq and the cached TLV-support probe result.
	Store persist.Store
}

// NewReceiverState starts in Booting with heater state Off, using store
// for the values that survive sleep (cmd/receiver passes an in-memory
// store).
func NewReceiverState(store persist.Store) *ReceiverState {
	return &ReceiverState{
		Loop:        StateBooting,
		HeaterState: protocol.HeaterOff,
		Store:       store,
	}
}

// BuildStatus assembles the outgoing Status payload from current state,
// stamping lastCmdSeq so the Sender can correlate it with the command
// that triggered it (or, for periodic polling emission, the most
// recently processed one).
func (rs *ReceiverState) BuildStatus(lastRSSI, lastSNR int8) *protocol.StatusPayload {
	s := &protocol.StatusPayload{
		State:       rs.HeaterState,
		LastRSSI:    lastRSSI,
		LastSNR:     lastSNR,
		LastCmdSeq:  rs.Store.LastProcessedSeq(),
	}

	if rs.Session.IsActive() {
		remaining := rs.Session.ExpiresAt.Sub(time.Now())
		if remaining > 0 {
			s.MinutesLeft = uint8(remaining / time.Minute)
		}
	}

	if rs.Snapshot.TemperatureC != nil {
		s.TemperatureC = int16(*rs.Snapshot.TemperatureC)
		s.ValidMask |= protocol.StatusValidTemp
	}
	if rs.Snapshot.VoltageMV != nil {
		s.VoltageMV = *rs.Snapshot.VoltageMV
		s.ValidMask |= protocol.StatusValidVoltage
	}
	if rs.Snapshot.PowerW != nil {
		s.PowerW = *rs.Snapshot.PowerW
		s.ValidMask |= protocol.StatusValidPower
	}

	return s
}
