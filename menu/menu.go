// Package menu implements the Receiver's local button state machine:
// debounce, short/long press classification and a Hidden/Visible menu
// with a navigation timeout. The debounce-then-classify shape follows
// core/endstop.go's oversampling approach, adapted from a timer-driven
// embedded sample loop to a host-callable Poll(now, pressed) the way
// standalone/config's bench harness drives timing from wall-clock
// samples instead of scheduler ticks.
package menu

import (
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/config"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
)

// State is the menu's visibility.
type State int

const (
	Hidden State = iota
	Visible
)

func (s State) String() string {
	if s == Visible {
		return "visible"
	}
	return "hidden"
}

// Items is the ordered, fixed tuple selected_index ranges over (§4.8).
var Items = []protocol.CommandKind{
	protocol.CmdStart,
	protocol.CmdStop,
	protocol.CmdRunMinutes,
	protocol.CmdQueryStatus,
}

// Activation is emitted when a long press commits the current
// selection back to Hidden.
type Activation struct {
	Item protocol.CommandKind
}

// Menu tracks button-edge debounce plus the Hidden/Visible navigation
// state. It has no goroutines of its own: the caller samples the raw
// pin and calls Poll on a cadence of its choosing (config.MenuDebounce
// or tighter).
type Menu struct {
	state        State
	selectedIdx  int
	openedAt     time.Time
	lastActivate *Activation

	rawPressed   bool
	debounced    bool
	lastEdgeAt   time.Time
	pressedAt    time.Time
	longHandled  bool
}

// New returns a Menu in Hidden state with no button pressed.
func New() *Menu {
	return &Menu{}
}

// State reports the current visibility.
func (m *Menu) State() State { return m.state }

// SelectedItem reports the command the cursor currently rests on,
// valid only while Visible.
func (m *Menu) SelectedItem() protocol.CommandKind {
	return Items[m.selectedIdx]
}

// TakeActivation returns and clears the most recent long-press
// activation, or nil if none is pending.
func (m *Menu) TakeActivation() *Activation {
	a := m.lastActivate
	m.lastActivate = nil
	return a
}

// Poll feeds one raw pin sample at time now. pressed is true when the
// button is physically closed. Edges within config.MenuDebounce of the
// last accepted edge are ignored (§4.8's debounce rule).
func (m *Menu) Poll(now time.Time, pressed bool) {
	if pressed != m.rawPressed {
		if now.Sub(m.lastEdgeAt) < config.MenuDebounce {
			return
		}
		m.rawPressed = pressed
		m.lastEdgeAt = now
		m.onDebouncedEdge(now, pressed)
	}

	if m.debounced && !m.longHandled && now.Sub(m.pressedAt) >= config.MenuLongPressThreshold {
		m.longHandled = true
		m.onLongPress(now)
	}

	if m.state == Visible && now.Sub(m.openedAt) >= config.MenuNavTimeout {
		m.state = Hidden
	}
}

func (m *Menu) onDebouncedEdge(now time.Time, pressed bool) {
	if pressed {
		m.debounced = true
		m.pressedAt = now
		m.longHandled = false
		return
	}

	m.debounced = false
	if m.longHandled {
		// long press already actioned on this hold; release is a no-op.
		return
	}
	m.onShortPress(now)
}

func (m *Menu) onShortPress(now time.Time) {
	switch m.state {
	case Hidden:
		m.state = Visible
		m.selectedIdx = 0
		m.openedAt = now
	case Visible:
		m.selectedIdx = (m.selectedIdx + 1) % len(Items)
		m.openedAt = now
	}
}

func (m *Menu) onLongPress(now time.Time) {
	if m.state != Visible {
		return
	}
	item := Items[m.selectedIdx]
	m.lastActivate = &Activation{Item: item}
	m.state = Hidden
}
