// Package session holds the small value types both Sender and Receiver
// track across command submissions: the heater's active-session state on
// the Receiver side, and the in-flight command the Sender is waiting on.
package session

import (
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
)

// HeaterCommand identifies which W-BUS command, if any, currently holds
// the heater in an active session.
type HeaterCommand uint8

const (
	HeaterCommandNone  HeaterCommand = 0x00
	HeaterCommandHeat  HeaterCommand = 0x21
	HeaterCommandVent  HeaterCommand = 0x22
)

// HeaterSessionState tracks the Receiver's notion of "a session is
// running": which command started it, when it expires, and when the last
// keep-alive went out so the renewal threshold can be evaluated.
type HeaterSessionState struct {
	Active        HeaterCommand
	ExpiresAt     time.Time
	LastKeepAlive time.Time
}

// IsActive reports whether a heat or vent session is currently tracked.
func (s HeaterSessionState) IsActive() bool {
	return s.Active != HeaterCommandNone
}

// Clear resets the session to the none state.
func (s *HeaterSessionState) Clear() {
	*s = HeaterSessionState{}
}

// Start begins tracking a new session for cmd, expiring after d.
func (s *HeaterSessionState) Start(cmd HeaterCommand, now time.Time, d time.Duration) {
	s.Active = cmd
	s.ExpiresAt = now.Add(d)
	s.LastKeepAlive = now
}

// NeedsRenewal reports whether the session is active and within
// threshold of expiring, so a keep-alive should be sent.
func (s HeaterSessionState) NeedsRenewal(now time.Time, threshold time.Duration) bool {
	return s.IsActive() && s.ExpiresAt.Sub(now) <= threshold
}

// Expired reports whether an active session's deadline has passed.
func (s HeaterSessionState) Expired(now time.Time) bool {
	return s.IsActive() && !now.Before(s.ExpiresAt)
}

// SenderPendingCommand is the single in-flight command a Sender may have
// outstanding at any time (spec enforces at most one).
type SenderPendingCommand struct {
	Seq        uint16
	Kind       protocol.CommandKind
	Minutes    uint8
	DeadlineAt time.Time
}

// Expired reports whether now is at or past DeadlineAt.
func (p SenderPendingCommand) Expired(now time.Time) bool {
	return !now.Before(p.DeadlineAt)
}
