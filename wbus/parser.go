package wbus

import (
	"encoding/binary"
	"time"

	"github.com/universam1/webasto-lora-remote-ctrl/config"
)

// timeout is the response wait window a parser call blocks for; callers
// pass a fixed duration (the receiver uses 250ms for the TLV probe and
// for steady-state polling alike).
type timeout = time.Duration

// OperatingState is the coarse on/off reading from a 0x50 0x07 query.
type OperatingState int

const (
	OperatingOff OperatingState = iota
	OperatingRunning
)

// Snapshot is the decoded result of a status query: the fields the
// Receiver cares about, each optional since not every poll path (simple
// pages vs TLV) fills all of them.
type Snapshot struct {
	Valid bool

	TemperatureC *int8
	VoltageMV    *uint16
	PowerW       *uint16

	HeatRequest     bool
	VentRequest     bool
	CombustionFan   bool
	Glowplug        bool
	FuelPump        bool
	NozzleHeating   bool

	GlowplugPct    *uint8
	FuelPumpRate   *uint8
	CombustionFanPct *uint8

	WorkingHours, WorkingMinutes   uint16
	OperatingHours, OperatingMinutes uint16
	StartCounter                   uint16

	ComponentRates [3]uint8

	Raw map[byte][]byte
}

const respPrefix = 0xD0

// expectPage returns (data, ok) if f is a heater response frame (Cmd ==
// 0xD0, consumed by the transport's framing, not present in Data) whose
// first data byte is idx; data is the slice after idx.
func expectPage(f *Frame, idx byte) ([]byte, bool) {
	if f == nil || f.Cmd != respPrefix {
		return nil, false
	}
	if len(f.Data) < 1 || f.Data[0] != idx {
		return nil, false
	}
	return f.Data[1:], true
}

// ReadOperatingState sends 0x50 0x07 and waits for the {0xD0,0x07,opstate}
// response, mapping 0x04 and 0x00 to Off and anything else to Running.
func ReadOperatingState(t *Transport, wait timeout) (OperatingState, error) {
	if err := t.Transmit(config.WBusCmdStatusQuery, []byte{0x07}); err != nil {
		return OperatingOff, err
	}
	f, err := t.ReadPacket(wait)
	if err != nil {
		return OperatingOff, err
	}
	data, ok := expectPage(f, 0x07)
	if !ok || len(data) < 1 {
		return OperatingOff, ErrNotDecoded
	}
	if data[0] == 0x04 || data[0] == 0x00 {
		return OperatingOff, nil
	}
	return OperatingRunning, nil
}

// ReadSimplePage sends 0x50 idx and decodes the response into snap,
// merging fields for the pages §4.5 documents (0x03..0x06, 0x0F).
func ReadSimplePage(t *Transport, wait timeout, idx byte, snap *Snapshot) error {
	if err := t.Transmit(config.WBusCmdStatusQuery, []byte{idx}); err != nil {
		return err
	}
	f, err := t.ReadPacket(wait)
	if err != nil {
		return err
	}
	data, ok := expectPage(f, idx)
	if !ok {
		return ErrNotDecoded
	}

	switch idx {
	case 0x03:
		if len(data) < 1 {
			return ErrNotDecoded
		}
		flags := data[0]
		snap.HeatRequest = flags&0x01 != 0
		snap.VentRequest = flags&0x02 != 0
		snap.CombustionFan = flags&0x10 != 0
		snap.Glowplug = flags&0x20 != 0
		snap.FuelPump = flags&0x40 != 0
		snap.NozzleHeating = flags&0x80 != 0

	case 0x04:
		if len(data) < 7 {
			return ErrNotDecoded
		}
		gp, fp, cf := data[4], data[5], data[6]
		snap.GlowplugPct = &gp
		snap.FuelPumpRate = &fp
		snap.CombustionFanPct = &cf

	case 0x05:
		if len(data) < 8 {
			return ErrNotDecoded
		}
		tempC := int8(data[2]) - 50
		volt := binary.BigEndian.Uint16(data[3:5])
		powerX10 := binary.BigEndian.Uint16(data[6:8])
		power := powerX10 / 10
		snap.TemperatureC = &tempC
		snap.VoltageMV = &volt
		snap.PowerW = &power

	case 0x06:
		if len(data) < 10 {
			return ErrNotDecoded
		}
		snap.WorkingHours = binary.BigEndian.Uint16(data[0:2])
		snap.WorkingMinutes = binary.BigEndian.Uint16(data[2:4])
		snap.OperatingHours = binary.BigEndian.Uint16(data[4:6])
		snap.OperatingMinutes = binary.BigEndian.Uint16(data[6:8])
		snap.StartCounter = binary.BigEndian.Uint16(data[8:10])

	case 0x0F:
		if len(data) < 3 {
			return ErrNotDecoded
		}
		copy(snap.ComponentRates[:], data[:3])

	default:
		return ErrNotDecoded
	}

	snap.Valid = true
	return nil
}

// tlvWidth enumerates the known fixed-width TLV IDs; ambiguousTLV holds
// the IDs whose width must be resolved with the look-ahead heuristic.
var tlvWidth = map[byte]int{
	0x01: 1, // temperatureC, offset-by-50
	0x02: 2, // voltage, be16
	0x03: 1, // flame
	0x04: 2, // power x10, be16
}

var ambiguousTLV = map[byte]bool{
	0x05: true,
	0x06: true,
}

// knownTLVID reports whether id is any ID this parser recognizes, fixed
// or ambiguous — used by the look-ahead heuristic to decide if a byte two
// positions ahead looks like the start of the next TLV.
func knownTLVID(id byte) bool {
	if _, ok := tlvWidth[id]; ok {
		return true
	}
	return ambiguousTLV[id]
}

// ReadMultiStatus sends 0x50 0x30 <ids...> and decodes the
// {0xD0,0x30,<TLVs>} response into snap. An unknown ID anywhere in the
// stream aborts the whole parse with ErrNotDecoded rather than risk
// desyncing on a misjudged width.
func ReadMultiStatus(t *Transport, wait timeout, ids []byte, snap *Snapshot) error {
	req := append([]byte{0x30}, ids...)
	if err := t.Transmit(config.WBusCmdStatusQuery, req); err != nil {
		return err
	}
	f, err := t.ReadPacket(wait)
	if err != nil {
		return err
	}
	data, ok := expectPage(f, 0x30)
	if !ok {
		return ErrNotDecoded
	}

	if snap.Raw == nil {
		snap.Raw = make(map[byte][]byte)
	}

	i := 0
	for i < len(data) {
		id := data[i]
		if !knownTLVID(id) {
			return ErrNotDecoded
		}

		width, fixed := tlvWidth[id]
		if !fixed {
			// ambiguous: prefer two bytes if the byte two positions ahead
			// looks like the start of another known TLV or is past the
			// end of the buffer; otherwise fall back to one byte.
			lookAhead := i + 3
			if lookAhead >= len(data) || knownTLVID(data[lookAhead]) {
				width = 2
			} else {
				width = 1
			}
		}

		if i+1+width > len(data) {
			return ErrNotDecoded
		}
		val := data[i+1 : i+1+width]
		snap.Raw[id] = append([]byte(nil), val...)

		switch id {
		case 0x01:
			tempC := int8(val[0]) - 50
			snap.TemperatureC = &tempC
		case 0x02:
			if len(val) == 2 {
				v := binary.BigEndian.Uint16(val)
				snap.VoltageMV = &v
			}
		case 0x04:
			if len(val) == 2 {
				p := binary.BigEndian.Uint16(val) / 10
				snap.PowerW = &p
			}
		}

		i += 1 + width
	}

	snap.Valid = true
	return nil
}
