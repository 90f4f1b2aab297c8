package receiver

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/cipher"
	"github.com/universam1/webasto-lora-remote-ctrl/persist"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/radio"
	"github.com/universam1/webasto-lora-remote-ctrl/wbus"
)

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

func testLoop(t *testing.T) (*Loop, *fakeLink) {
	t.Helper()
	var key [cipher.KeySize]byte
	c, err := cipher.New(key)
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	link := &fakeLink{}
	port := &fakeWBusPort{}
	tr := wbus.NewTransport(port)
	l := NewLoop(link, tr, c, protocol.NodeReceiver, protocol.NodeSender, persist.NewMemStore())
	l.State.Loop = StateIdle
	return l, link
}

func encryptedCommand(t *testing.T, c *cipher.Cipher, seq uint16, kind protocol.CommandKind, minutes uint8) []byte {
	t.Helper()
	pkt := &protocol.Packet{
		Type:    protocol.TypeCommand,
		Src:     protocol.NodeSender,
		Dst:     protocol.NodeReceiver,
		Seq:     seq,
		Command: &protocol.CommandPayload{Kind: kind, Minutes: minutes},
	}
	b, err := protocol.Serialize(pkt)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	c.Apply(b[protocol.HeaderSize:len(b)-protocol.TrailerSize], pkt.Seq, pkt.Src, pkt.Dst)
	binary.LittleEndian.PutUint16(b[len(b)-protocol.TrailerSize:], protocol.CRC16CCITT(b[:len(b)-protocol.TrailerSize]))
	return b
}

func TestLoopHandlesStopCommandAndEmitsStatus(t *testing.T) {
	l, link := testLoop(t)
	link.queue = []radio.Frame{{Data: encryptedCommand(t, l.Cipher, 1, protocol.CmdStop, 0)}}

	ok := l.handleIncoming(link.queue[0])
	if !ok {
		t.Fatal("handleIncoming should report the frame as addressed to this node")
	}
	if len(link.sent) != 1 {
		t.Fatalf("expected exactly one Status emitted, got %d", len(link.sent))
	}
}

func TestLoopIgnoresWrongDestination(t *testing.T) {
	l, link := testLoop(t)
	pkt := &protocol.Packet{
		Type:    protocol.TypeCommand,
		Src:     protocol.NodeSender,
		Dst:     0x9, // not this node
		Seq:     1,
		Command: &protocol.CommandPayload{Kind: protocol.CmdStop},
	}
	b, _ := protocol.Serialize(pkt)
	l.Cipher.Apply(b[protocol.HeaderSize:len(b)-protocol.TrailerSize], pkt.Seq, pkt.Src, pkt.Dst)

	if l.handleIncoming(radio.Frame{Data: b}) {
		t.Fatal("frame addressed to another node should be ignored")
	}
	if len(link.sent) != 0 {
		t.Fatal("no status should be sent for a misaddressed frame")
	}
}

func TestLoopDuplicateSeqStillEmitsStatusOnce(t *testing.T) {
	l, link := testLoop(t)
	data := func() []byte { return encryptedCommand(t, l.Cipher, 7, protocol.CmdStop, 0) }

	l.handleIncoming(radio.Frame{Data: data()})
	l.handleIncoming(radio.Frame{Data: data()})
	l.handleIncoming(radio.Frame{Data: data()})

	if len(link.sent) != 3 {
		t.Fatalf("expected one Status per received command (incl. duplicates), got %d", len(link.sent))
	}
}
