// Package sender implements the Sender's command/ACK loop: submit a
// command, retry on a fixed cadence, and complete as soon as a Status
// echoing the outstanding sequence arrives. The retry-loop-as-explicit-
// state-machine shape (never a blocking delay()) follows amken3d-gopper's
// re-architecture away from blocking loops; the CLI ties into it the way
// host/cmd/gopper-host/main.go drives its MCU connection.
package sender

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/cipher"
	"github.com/universam1/webasto-lora-remote-ctrl/clock"
	"github.com/universam1/webasto-lora-remote-ctrl/config"
	"github.com/universam1/webasto-lora-remote-ctrl/logging"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/radio"
	"github.com/universam1/webasto-lora-remote-ctrl/session"
)

// Result is the outcome of a Submit call.
type Result int

const (
	Ok Result = iota
	TimedOut
	RejectedPreFlight
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "Ok"
	case TimedOut:
		return "TimedOut"
	case RejectedPreFlight:
		return "RejectedPreFlight"
	default:
		return "Unknown"
	}
}

// ErrAlreadyPending is returned by Submit when a command is already
// outstanding; the spec treats a second concurrent submit as a usage
// error, not a queued request.
var ErrAlreadyPending = errors.New("sender: a command is already outstanding")

// Engine is the Sender-side command/ACK state machine. One Engine per
// Sender node; NodeAddr identifies this node (always protocol.NodeSender
// in practice, kept configurable for the simulator/tests).
type Engine struct {
	Link    radio.Link
	Cipher  *cipher.Cipher
	NodeAddr uint8
	DstAddr  uint8
	Clock   clock.Source
	Tuning  config.Tuning

	seqCounter uint16
	pending    *session.SenderPendingCommand

	lastStatus *protocol.StatusPayload
}

// NewEngine constructs an Engine with config.Default() tuning and
// clock.Real, the shape most callers want; override fields afterward for
// tests or a bench simulator.
func NewEngine(link radio.Link, c *cipher.Cipher, nodeAddr, dstAddr uint8) *Engine {
	return &Engine{
		Link:     link,
		Cipher:   c,
		NodeAddr: nodeAddr,
		DstAddr:  dstAddr,
		Clock:    clock.Real,
		Tuning:   config.Default(),
	}
}

// LastStatus returns the most recently observed Status payload, whether
// or not it completed the outstanding command — display state merges
// every Status seen, per §4.6.
func (e *Engine) LastStatus() *protocol.StatusPayload {
	return e.lastStatus
}

func (e *Engine) nextSeq() uint16 {
	e.seqCounter++
	return e.seqCounter
}

// Submit allocates a fresh sequence number, then drives the retry/ACK
// loop until a correlated Status completes the command or
// Tuning.SenderAckDeadline elapses.
func (e *Engine) Submit(kind protocol.CommandKind, minutes uint8) (Result, error) {
	if e.pending != nil {
		return RejectedPreFlight, ErrAlreadyPending
	}
	if kind == protocol.CmdRunMinutes && minutes == 0 {
		return RejectedPreFlight, errors.New("sender: run requires minutes >= 1")
	}

	now := e.Clock.Now()
	seq := e.nextSeq()
	pending := session.SenderPendingCommand{
		Seq:        seq,
		Kind:       kind,
		Minutes:    minutes,
		DeadlineAt: now.Add(e.Tuning.SenderAckDeadline),
	}
	e.pending = &pending

	nextSend := now
	for {
		now = e.Clock.Now()

		if !now.Before(pending.DeadlineAt) {
			e.pending = nil
			return TimedOut, nil
		}

		if !now.Before(nextSend) {
			if err := e.transmit(pending); err != nil {
				logging.Warn("sender: transmit failed: " + err.Error())
			}
			nextSend = now.Add(e.Tuning.SenderRetryPeriod)
		}

		frame, err := e.Link.TryRecv(50 * time.Millisecond)
		if err == nil {
			if status, ok := e.handleFrame(frame.Data, pending.Seq); ok {
				e.pending = nil
				e.lastStatus = status
				return Ok, nil
			}
		}
	}
}

func (e *Engine) transmit(p session.SenderPendingCommand) error {
	pkt := &protocol.Packet{
		Type: protocol.TypeCommand,
		Src:  e.NodeAddr,
		Dst:  e.DstAddr,
		Seq:  p.Seq,
		Command: &protocol.CommandPayload{
			Kind:    p.Kind,
			Minutes: p.Minutes,
		},
	}
	b, err := protocol.Serialize(pkt)
	if err != nil {
		return err
	}
	e.Cipher.Apply(b[protocol.HeaderSize:len(b)-protocol.TrailerSize], p.Seq, e.NodeAddr, e.DstAddr)
	// the CRC travels over the ciphertext, so recompute it after encrypting
	binary.LittleEndian.PutUint16(b[len(b)-protocol.TrailerSize:], protocol.CRC16CCITT(b[:len(b)-protocol.TrailerSize]))
	return e.Link.Send(b)
}

// handleFrame decrypts and decodes one received radio frame. If it is a
// Status from the expected source echoing wantSeq, it returns (status,
// true). Any other well-formed Status still updates e.lastStatus for
// display, matching "update cached last-status but do not complete".
func (e *Engine) handleFrame(data []byte, wantSeq uint16) (*protocol.StatusPayload, bool) {
	if !protocol.VerifyCRC(data) {
		return nil, false
	}
	hdr, err := protocol.ParseHeader(data)
	if err != nil {
		return nil, false
	}
	if hdr.Type != protocol.TypeStatus || hdr.Src != e.DstAddr {
		return nil, false
	}

	plain := append([]byte(nil), data...)
	e.Cipher.Apply(plain[protocol.HeaderSize:len(plain)-protocol.TrailerSize], hdr.Seq, hdr.Src, hdr.Dst)

	pkt, err := protocol.DecodePayload(hdr, plain)
	if err != nil || pkt.Status == nil {
		return nil, false
	}

	e.lastStatus = pkt.Status
	if pkt.Status.LastCmdSeq == wantSeq {
		return pkt.Status, true
	}
	return nil, false
}
