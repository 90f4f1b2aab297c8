package receiver

import (
	"io"
	"testing"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/persist"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/wbus"
)

// fakeWBusPort replays one canned response for every request, enough to
// make W-BUS command dispatch "succeed" deterministically in tests.
type fakeWBusPort struct {
	resp []byte
}

func (p *fakeWBusPort) Read(b []byte) (int, error) {
	if len(p.resp) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.resp)
	p.resp = p.resp[n:]
	return n, nil
}
func (p *fakeWBusPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakeWBusPort) Close() error                { return nil }
func (p *fakeWBusPort) SetBreak(bool) error         { return nil }

func newDispatchFixture() (*ReceiverState, *wbus.Transport) {
	rs := NewReceiverState(persist.NewMemStore())
	ackFrame := wbus.Frame{Header: 0x4F, Cmd: 0x90}
	port := &fakeWBusPort{resp: ackFrame.Encode()}
	return rs, wbus.NewTransport(port)
}

func TestDispatchStopTransitionsToOff(t *testing.T) {
	rs, tr := newDispatchFixture()
	rs.HeaterState = protocol.HeaterRunning

	status := Dispatch(rs, tr, SourceRadio, 1, protocol.CmdStop, 0, 0, 0)
	if status.State != protocol.HeaterOff {
		t.Fatalf("status.State = %v, want Off", status.State)
	}
	if rs.Session.IsActive() {
		t.Fatal("session should be cleared on Stop")
	}
}

func TestDispatchDuplicateSeqDoesNotReexecute(t *testing.T) {
	rs, tr := newDispatchFixture()
	rs.Store.SetLastProcessedSeq(5)
	rs.HeaterState = protocol.HeaterRunning
	rs.Session.Start(1, time.Now(), 20*time.Minute)

	status := Dispatch(rs, tr, SourceRadio, 5, protocol.CmdStop, 0, 0, 0)

	if status.LastCmdSeq != 5 {
		t.Fatalf("LastCmdSeq = %d, want 5", status.LastCmdSeq)
	}
	if !rs.Session.IsActive() {
		t.Fatal("duplicate command must not touch the heater session")
	}
	if rs.HeaterState != protocol.HeaterRunning {
		t.Fatal("duplicate Stop must not change heater state")
	}
}

func TestDispatchStartRemembersPreset(t *testing.T) {
	rs, tr := newDispatchFixture()

	status := Dispatch(rs, tr, SourceRadio, 10, protocol.CmdRunMinutes, 30, 0, 0)
	if status.State != protocol.HeaterRunning {
		t.Fatalf("status.State = %v, want Running", status.State)
	}
	if presetMinutes != 30 {
		t.Fatalf("preset = %d, want 30", presetMinutes)
	}
}

func TestDispatchQueryStatusDoesNotStartHeater(t *testing.T) {
	rs, tr := newDispatchFixture()
	rs.HeaterState = protocol.HeaterOff

	Dispatch(rs, tr, SourceRadio, 20, protocol.CmdQueryStatus, 0, 0, 0)

	if rs.HeaterState != protocol.HeaterOff {
		t.Fatalf("QueryStatus must not change heater state, got %v", rs.HeaterState)
	}
}
