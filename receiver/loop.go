package receiver

import (
	"encoding/binary"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/cipher"
	"github.com/universam1/webasto-lora-remote-ctrl/config"
	"github.com/universam1/webasto-lora-remote-ctrl/logging"
	"github.com/universam1/webasto-lora-remote-ctrl/persist"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/radio"
	"github.com/universam1/webasto-lora-remote-ctrl/wbus"
)

// Loop drives the Receiver's full state machine, owning every resource
// the spec says only the main loop may touch: the radio link, the W-BUS
// transport and the ReceiverState.
type Loop struct {
	Radio     radio.Link
	Transport *wbus.Transport
	Cipher    *cipher.Cipher
	Tuning    config.Tuning

	NodeAddr uint8
	PeerAddr uint8

	State *ReceiverState

	lastPoll time.Time
	outSeq   uint16

	tlvProbeAttempts int
	tlvFirstProbeAt  time.Time
}

// nextOutSeq returns this node's next outgoing sequence number, the
// Receiver's own monotonic counter independent of the command seq it is
// correlating (the latter travels inside StatusPayload.LastCmdSeq).
func (l *Loop) nextOutSeq() uint16 {
	l.outSeq++
	return l.outSeq
}

// NewLoop builds a Loop in the Booting state with config.Default tuning.
func NewLoop(link radio.Link, transport *wbus.Transport, c *cipher.Cipher, nodeAddr, peerAddr uint8, store persist.Store) *Loop {
	return &Loop{
		Radio:     link,
		Transport: transport,
		Cipher:    c,
		Tuning:    config.Default(),
		NodeAddr:  nodeAddr,
		PeerAddr:  peerAddr,
		State:     NewReceiverState(store),
	}
}

// tlvProbeRetryDelay is the gap between the two TLV support probes in
// Boot. A single missed 250ms window during Booting is weak evidence of
// "unsupported" on a noisy W-BUS line, so the first miss is not latched;
// only a second miss 2s later is.
const tlvProbeRetryDelay = 2 * time.Second

// Boot runs the Booting state: probes TLV support, retrying once after
// tlvProbeRetryDelay if the first probe fails, before latching the result
// for the process/sleep lifetime. A successful probe latches immediately
// without waiting for the second attempt.
func (l *Loop) Boot(now time.Time) {
	if l.State.Store.TLVSupport() != persist.TLVUnknown {
		l.State.Loop = StateIdle
		return
	}

	if l.tlvProbeAttempts == 0 {
		l.tlvProbeAttempts = 1
		l.tlvFirstProbeAt = now
		if l.probeTLV() {
			l.State.Store.SetTLVSupport(persist.TLVYes)
			l.State.Loop = StateIdle
		}
		// stay in Booting; a failed first probe gets one retry below
		return
	}

	if now.Sub(l.tlvFirstProbeAt) < tlvProbeRetryDelay {
		return
	}

	if l.probeTLV() {
		l.State.Store.SetTLVSupport(persist.TLVYes)
	} else {
		l.State.Store.SetTLVSupport(persist.TLVNo)
	}
	l.State.Loop = StateIdle
}

// probeTLV sends a single multi-status TLV query and reports whether the
// heater answered with a decodable TLV payload.
func (l *Loop) probeTLV() bool {
	var snap wbus.Snapshot
	err := wbus.ReadMultiStatus(l.Transport, 250*time.Millisecond, []byte{0x01, 0x02, 0x04}, &snap)
	return err == nil && snap.Valid
}

// Tick runs one iteration of the loop from whatever state it is
// currently in, returning the state it ends up in. A caller (cmd/receiver
// or a test) calls Tick repeatedly; DeepSleep is represented as a
// returned state rather than an actual platform sleep call, so tests can
// drive the machine without blocking.
func (l *Loop) Tick(now time.Time) LoopState {
	switch l.State.Loop {
	case StateBooting:
		l.Boot(now)

	case StateIdle:
		l.tickIdle(now)

	case StateRunning, StateExtendedWake:
		l.tickActive(now)

	case StateDeepSleep:
		// the platform sleep call happens outside Tick; on the next call
		// the caller has already "woken" and we resume listening.
		l.State.Loop = StateIdle

	case StateExecuting:
		// Executing is entered and exited synchronously within
		// handleIncoming; Tick should never observe it at rest.
		l.State.Loop = StateIdle
	}
	return l.State.Loop
}

// tickIdle opens the radio receive window for ListenWindow; if a command
// is decoded, it dispatches (Executing, synchronously) and moves on. If
// nothing arrives, the caller is told to deep-sleep by the returned
// state.
func (l *Loop) tickIdle(now time.Time) {
	deadline := now.Add(l.Tuning.ReceiverListenWindow)
	for time.Now().Before(deadline) {
		frame, err := l.Radio.TryRecv(20 * time.Millisecond)
		if err != nil {
			continue
		}
		if l.handleIncoming(frame) {
			return
		}
	}

	if l.Tuning.DisableSleep {
		return
	}
	l.State.Loop = StateDeepSleep
	l.Radio.Sleep()
}

// tickActive covers Running and ExtendedWake: poll W-BUS every
// PollPeriod, emit Status, and also service any incoming radio command
// without waiting for the poll cadence.
func (l *Loop) tickActive(now time.Time) {
	if frame, err := l.Radio.TryRecv(20 * time.Millisecond); err == nil {
		l.handleIncoming(frame)
	}

	if now.Sub(l.lastPoll) < l.Tuning.PollPeriod {
		return
	}
	l.lastPoll = now

	l.poll()
	l.maintainSession(now)
	l.emitStatus(0, 0)

	if l.State.Loop == StateRunning && l.State.HeaterState != protocol.HeaterRunning {
		l.State.Loop = StateExtendedWake
		l.State.ExtendedWakeAt = now
		return
	}
	if l.State.Loop == StateExtendedWake && now.Sub(l.State.ExtendedWakeAt) >= l.Tuning.ReceiverExtendedWake {
		l.State.Loop = StateIdle
	}
}

// poll reads operating state and either the TLV snapshot or the simple
// pages, depending on the cached support bit.
func (l *Loop) poll() {
	opstate, err := wbus.ReadOperatingState(l.Transport, 250*time.Millisecond)
	if err != nil {
		logging.Debug("receiver: poll operating-state: " + err.Error())
		return
	}
	if opstate == wbus.OperatingOff {
		l.State.HeaterState = protocol.HeaterOff
	} else {
		l.State.HeaterState = protocol.HeaterRunning
	}

	if l.State.Store.TLVSupport() == persist.TLVYes {
		if err := wbus.ReadMultiStatus(l.Transport, 250*time.Millisecond, []byte{0x01, 0x02, 0x04}, &l.State.Snapshot); err != nil {
			logging.Debug("receiver: TLV poll: " + err.Error())
		}
		return
	}

	if err := wbus.ReadSimplePage(l.Transport, 250*time.Millisecond, 0x05, &l.State.Snapshot); err != nil {
		logging.Debug("receiver: simple-page 0x05 poll: " + err.Error())
	}
	if err := wbus.ReadSimplePage(l.Transport, 250*time.Millisecond, 0x0F, &l.State.Snapshot); err != nil {
		logging.Debug("receiver: simple-page 0x0F poll: " + err.Error())
	}
}

// maintainSession sends a keep-alive once KeepAlivePeriod has passed since
// the last one while a session is active, and clears the session if it has
// expired or the observed heater state is Off. The keep-alive does not
// extend the session's expiry.
func (l *Loop) maintainSession(now time.Time) {
	if l.State.HeaterState == protocol.HeaterOff {
		l.State.Session.Clear()
		return
	}
	if l.State.Session.Expired(now) {
		l.State.Session.Clear()
		return
	}
	if l.State.Session.IsActive() && now.Sub(l.State.Session.LastKeepAlive) >= l.Tuning.KeepAlivePeriod {
		l.Transport.Transmit(config.WBusCmdKeepAlive, nil)
		l.State.Session.LastKeepAlive = now
	}
}

// handleIncoming validates, decrypts and dispatches one received radio
// frame. It returns true if the frame was addressed to this node (even
// if it was a duplicate), matching "exactly one Status is emitted".
func (l *Loop) handleIncoming(frame radio.Frame) bool {
	data := frame.Data
	if !protocol.VerifyCRC(data) {
		return false
	}
	hdr, err := protocol.ParseHeader(data)
	if err != nil || hdr.Type != protocol.TypeCommand || hdr.Dst != l.NodeAddr {
		return false
	}

	plain := append([]byte(nil), data...)
	l.Cipher.Apply(plain[protocol.HeaderSize:len(plain)-protocol.TrailerSize], hdr.Seq, hdr.Src, hdr.Dst)

	pkt, err := protocol.DecodePayload(hdr, plain)
	if err != nil || pkt.Command == nil {
		return false
	}

	l.State.Loop = StateExecuting
	status := Dispatch(l.State, l.Transport, SourceRadio, hdr.Seq, pkt.Command.Kind, pkt.Command.Minutes, frame.RSSI, frame.SNR)

	if l.State.HeaterState == protocol.HeaterRunning {
		l.State.Loop = StateRunning
	} else {
		l.State.Loop = StateIdle
	}

	l.sendStatus(status)
	return true
}

// emitStatus builds a fresh Status from current state and sends it,
// without going through Dispatch (used by the periodic poll path, not a
// command ACK).
func (l *Loop) emitStatus(rssi, snr int8) {
	l.sendStatus(l.State.BuildStatus(rssi, snr))
}

func (l *Loop) sendStatus(status *protocol.StatusPayload) {
	pkt := &protocol.Packet{
		Type:   protocol.TypeStatus,
		Src:    l.NodeAddr,
		Dst:    l.PeerAddr,
		Seq:    l.nextOutSeq(),
		Status: status,
	}
	b, err := protocol.Serialize(pkt)
	if err != nil {
		logging.Error("receiver: serialize status: " + err.Error())
		return
	}
	l.Cipher.Apply(b[protocol.HeaderSize:len(b)-protocol.TrailerSize], pkt.Seq, pkt.Src, pkt.Dst)
	// the CRC travels over the ciphertext, so recompute it after encrypting
	binary.LittleEndian.PutUint16(b[len(b)-protocol.TrailerSize:], protocol.CRC16CCITT(b[:len(b)-protocol.TrailerSize]))
	if err := l.Radio.Send(b); err != nil {
		logging.Warn("receiver: send status: " + err.Error())
	}
}
