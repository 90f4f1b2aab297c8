package receiver

import (
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/config"
	"github.com/universam1/webasto-lora-remote-ctrl/logging"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/session"
	"github.com/universam1/webasto-lora-remote-ctrl/wbus"
)

// wbusCommandRetries is how many times a W-BUS dispatch is retried with
// ACK verification before being reported as failed (§4.7).
const wbusCommandRetries = 3

// Dispatch is the single funnel §4.7 describes for radio Command, Menu
// activation and MQTT command sources. It handles the dedup-by-seq rule,
// executes the W-BUS side effect, updates rs, and returns the Status to
// emit as the ACK.
//
// seq is the command's sequence number for dedup purposes; for
// non-radio sources (menu, MQTT) callers pass a locally synthesized
// monotonic seq so the same dedup machinery applies uniformly.
func Dispatch(rs *ReceiverState, t *wbus.Transport, source CommandSource, seq uint16, kind protocol.CommandKind, minutes uint8, rssi, snr int8) *protocol.StatusPayload {
	rs.LastSource = source

	if seq == rs.Store.LastProcessedSeq() {
		// duplicate: re-ACK with a freshly built Status carrying the same
		// lastCmdSeq, without touching the heater.
		logging.Debug("receiver: duplicate seq, re-ACK without execution")
		return rs.BuildStatus(rssi, snr)
	}

	switch kind {
	case protocol.CmdStop:
		if executeStop(rs, t) {
			rs.HeaterState = protocol.HeaterOff
			rs.Session.Clear()
		} else {
			rs.HeaterState = protocol.HeaterError
		}

	case protocol.CmdStart, protocol.CmdRunMinutes:
		m := minutes
		if m == 0 {
			m = rememberedPreset(rs)
		}
		if kind == protocol.CmdRunMinutes && minutes != 0 {
			setRememberedPreset(rs, minutes)
		}
		if executeStart(rs, t, m) {
			rs.HeaterState = protocol.HeaterRunning
			rs.Session.Start(session.HeaterCommandHeat, time.Now(), time.Duration(m)*time.Minute)
		} else {
			rs.HeaterState = protocol.HeaterError
		}

	case protocol.CmdQueryStatus:
		// no W-BUS write; caller's poll loop performs the read side on its
		// own cadence. We still schedule a poll request for the common
		// "query while idle" path by doing one immediate read here.
		pollOnce(rs, t)
	}

	rs.Store.SetLastProcessedSeq(seq)
	return rs.BuildStatus(rssi, snr)
}

// presetMinutes is the remembered run duration used when Start/RunMinutes
// arrives with minutes == 0. It lives at package scope the way the
// teacher keeps small persistent scalars as package globals guarded by
// the single-threaded cooperative loop.
var presetMinutes uint8 = 20

func rememberedPreset(rs *ReceiverState) uint8 { return presetMinutes }
func setRememberedPreset(rs *ReceiverState, m uint8) { presetMinutes = m }

// executeStop issues W-BUS 0x10 with retry-with-ACK-verification.
func executeStop(rs *ReceiverState, t *wbus.Transport) bool {
	return retryWBusCommand(func() bool {
		if err := t.Transmit(config.WBusCmdStop, nil); err != nil {
			return false
		}
		_, err := t.ReadPacket(250 * time.Millisecond)
		return err == nil
	})
}

// executeStart issues W-BUS 0x21 <minutes> with retry-with-ACK-verification.
func executeStart(rs *ReceiverState, t *wbus.Transport, minutes uint8) bool {
	return retryWBusCommand(func() bool {
		if err := t.Transmit(config.WBusCmdStartHeat, []byte{minutes}); err != nil {
			return false
		}
		_, err := t.ReadPacket(250 * time.Millisecond)
		return err == nil
	})
}

// retryWBusCommand runs attempt up to wbusCommandRetries times, returning
// true on the first success.
func retryWBusCommand(attempt func() bool) bool {
	for i := 0; i < wbusCommandRetries; i++ {
		if attempt() {
			return true
		}
		logging.Warn("receiver: W-BUS command attempt failed, retrying")
	}
	return false
}

// pollOnce performs a single operating-state read plus one simple-status
// page read, for the explicit QueryStatus override while otherwise idle.
func pollOnce(rs *ReceiverState, t *wbus.Transport) {
	if _, err := wbus.ReadOperatingState(t, 250*time.Millisecond); err != nil {
		logging.Debug("receiver: QueryStatus operating-state poll: " + err.Error())
	}
	if err := wbus.ReadSimplePage(t, 250*time.Millisecond, 0x05, &rs.Snapshot); err != nil {
		logging.Debug("receiver: QueryStatus simple-page poll: " + err.Error())
	}
}
