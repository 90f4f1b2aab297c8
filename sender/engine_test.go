package sender

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/cipher"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/radio"
	"github.com/universam1/webasto-lora-remote-ctrl/session"
)

// fakeClock lets tests advance time deterministically instead of sleeping.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeLink is a radio.Link whose TryRecv replays a scripted queue of
// frames and whose Send records every transmitted buffer.
type fakeLink struct {
	sent  [][]byte
	queue []radio.Frame
}

func (l *fakeLink) Send(data []byte) error {
	l.sent = append(l.sent, append([]byte(nil), data...))
	return nil
}

func (l *fakeLink) TryRecv(time.Duration) (radio.Frame, error) {
	if len(l.queue) == 0 {
		return radio.Frame{}, radio.ErrNoFrame
	}
	f := l.queue[0]
	l.queue = l.queue[1:]
	return f, nil
}

func (l *fakeLink) Sleep() error { return nil }
func (l *fakeLink) Idle() error  { return nil }
func (l *fakeLink) Close() error { return nil }

func testCipher(t *testing.T) *cipher.Cipher {
	t.Helper()
	var key [cipher.KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}
	c, err := cipher.New(key)
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	return c
}

// encryptedStatus builds and encrypts a Status packet the way the
// Receiver would, for injection into a fakeLink's queue.
func encryptedStatus(t *testing.T, c *cipher.Cipher, lastCmdSeq uint16) []byte {
	t.Helper()
	pkt := &protocol.Packet{
		Type: protocol.TypeStatus,
		Src:  protocol.NodeReceiver,
		Dst:  protocol.NodeSender,
		Seq:  7,
		Status: &protocol.StatusPayload{
			State:      protocol.HeaterRunning,
			LastCmdSeq: lastCmdSeq,
		},
	}
	b, err := protocol.Serialize(pkt)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	c.Apply(b[protocol.HeaderSize:len(b)-protocol.TrailerSize], pkt.Seq, pkt.Src, pkt.Dst)
	binary.LittleEndian.PutUint16(b[len(b)-protocol.TrailerSize:], protocol.CRC16CCITT(b[:len(b)-protocol.TrailerSize]))
	return b
}

func TestSubmitCompletesOnMatchingStatus(t *testing.T) {
	c := testCipher(t)
	fc := &fakeClock{now: time.Unix(1000, 0)}
	link := &fakeLink{}

	e := NewEngine(link, c, protocol.NodeSender, protocol.NodeReceiver)
	e.Clock = fc

	// seq allocation starts at 1 on first Submit.
	link.queue = []radio.Frame{{Data: encryptedStatus(t, c, 1)}}

	result, err := e.Submit(protocol.CmdStop, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result != Ok {
		t.Fatalf("result = %v, want Ok", result)
	}
	if len(link.sent) == 0 {
		t.Fatal("expected at least one transmission")
	}
	if e.LastStatus() == nil || e.LastStatus().LastCmdSeq != 1 {
		t.Fatalf("LastStatus = %+v", e.LastStatus())
	}
}

func TestSubmitRejectsRunZeroMinutes(t *testing.T) {
	c := testCipher(t)
	link := &fakeLink{}
	e := NewEngine(link, c, protocol.NodeSender, protocol.NodeReceiver)

	result, err := e.Submit(protocol.CmdRunMinutes, 0)
	if result != RejectedPreFlight || err == nil {
		t.Fatalf("expected RejectedPreFlight, got %v / %v", result, err)
	}
}

func TestSubmitRejectsConcurrentPending(t *testing.T) {
	c := testCipher(t)
	link := &fakeLink{}
	e := NewEngine(link, c, protocol.NodeSender, protocol.NodeReceiver)
	pending := session.SenderPendingCommand{Seq: 1, Kind: protocol.CmdStop, DeadlineAt: time.Unix(9999999999, 0)}
	e.pending = &pending

	_, err := e.Submit(protocol.CmdStop, 0)
	if !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}
}
