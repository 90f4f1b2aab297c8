package wbus

import (
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/config"
	"github.com/universam1/webasto-lora-remote-ctrl/logging"
)

// rxState is the receive-path resync state machine (§4.4): FindHeader
// discards bytes until it sees a valid addressing byte, ReadLength reads
// and validates the length byte, ReadPayload accumulates length bytes and
// verifies the checksum on the last one.
type rxState int

const (
	stateFindHeader rxState = iota
	stateReadLength
	stateReadPayload
)

// Transport owns the physical W-BUS line: byte framing, the break-pulse
// sequence, and a single-slot queue holding the newest valid received
// frame. Grounded on amken3d-gopper's protocol/transport.go resync shape,
// adapted to W-BUS's header/length/checksum layout.
type Transport struct {
	port Port

	state      rxState
	header     byte
	length     byte
	payload    []byte
	payloadPos int

	pending *Frame // single-slot queue, newest valid frame wins

	breakDone bool
}

// NewTransport wraps an already-open Port.
func NewTransport(port Port) *Transport {
	return &Transport{port: port, state: stateFindHeader}
}

// ensureBreak performs the break-pulse sequence exactly once per Transport
// lifetime, lazily on first Transmit, per §4.4: disable UART (modeled as
// a no-op marker here since the port stays open), drive high ~1s, low
// ~50ms, high ~50ms, re-enable. A break condition holds the line low, so
// "high" is break off and "low" is break on.
func (t *Transport) ensureBreak() {
	if t.breakDone {
		return
	}
	t.breakDone = true

	t.port.SetBreak(false)
	time.Sleep(1 * time.Second)
	t.port.SetBreak(true)
	time.Sleep(50 * time.Millisecond)
	t.port.SetBreak(false)
	time.Sleep(50 * time.Millisecond)
	// re-enable happens implicitly: normal writes resume after this point
}

// Transmit composes and writes a command frame: header = controller<<4 |
// heater, cmd and data as given.
func (t *Transport) Transmit(cmd byte, data []byte) error {
	t.ensureBreak()

	f := Frame{
		Header: (config.ControllerAddr << 4) | config.HeaterAddr,
		Cmd:    cmd,
		Data:   data,
	}
	_, err := t.port.Write(f.Encode())
	return err
}

// feed runs one received byte through the resync state machine. When a
// complete, checksum-valid frame arrives it is stored in t.pending.
func (t *Transport) feed(b byte) {
	switch t.state {
	case stateFindHeader:
		if b == 0xF4 || b == 0x4F {
			t.header = b
			t.state = stateReadLength
		}

	case stateReadLength:
		if b < 2 || b > 254 {
			t.state = stateFindHeader
			return
		}
		t.length = b
		t.payload = make([]byte, b)
		t.payloadPos = 0
		t.state = stateReadPayload

	case stateReadPayload:
		t.payload[t.payloadPos] = b
		t.payloadPos++
		if t.payloadPos < len(t.payload) {
			return
		}

		// last byte is the checksum; everything before it is cmd+data
		cs := t.header ^ t.length
		for _, pb := range t.payload[:len(t.payload)-1] {
			cs ^= pb
		}
		if cs == t.payload[len(t.payload)-1] {
			f := Frame{
				Header: t.header,
				Cmd:    t.payload[0],
				Data:   append([]byte(nil), t.payload[1:len(t.payload)-1]...),
			}
			t.pending = &f
		} else {
			logging.Debug("wbus: checksum mismatch, dropping frame")
		}
		t.state = stateFindHeader
	}
}

// ReadPacket polls the serial port and the resync state machine until a
// valid frame is enqueued or timeout elapses.
func (t *Transport) ReadPacket(timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)

	for time.Now().Before(deadline) {
		n, err := t.port.Read(buf)
		if err != nil {
			// read timeouts on the underlying port surface as an error on
			// some platforms; treat them as "nothing yet" and keep polling
			continue
		}
		for i := 0; i < n; i++ {
			t.feed(buf[i])
		}
		if t.pending != nil {
			f := t.pending
			t.pending = nil
			return f, nil
		}
	}
	return nil, ErrTimeout
}
