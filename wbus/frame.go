// Package wbus implements the single-wire W-BUS transport to the Webasto
// heater: frame assembly, XOR checksum, break-pulse timing and a
// three-state receive state machine, plus a parser for the heater's
// status pages on top of it. The byte-framing shape follows
// amken3d-gopper's protocol/transport.go resync state machine, adapted
// from a length-prefixed multi-byte-command bus to W-BUS's
// header/length/payload/checksum frame.
package wbus

import "fmt"

// Frame is one W-BUS frame: header (addressing byte), the command byte
// (top bit set on heater responses), and any trailing data bytes. The
// checksum is not stored; it is recomputed by Encode and verified by the
// receive state machine.
type Frame struct {
	Header byte
	Cmd    byte
	Data   []byte
}

// checksum returns the XOR of header, length and all payload bytes
// preceding the checksum, per §4.4.
func (f Frame) checksum() byte {
	length := byte(len(f.Data) + 2) // cmd byte + data + checksum byte
	cs := f.Header ^ length
	cs ^= f.Cmd
	for _, b := range f.Data {
		cs ^= b
	}
	return cs
}

// Encode serializes f as header | length | cmd | data... | checksum.
func (f Frame) Encode() []byte {
	length := byte(len(f.Data) + 2)
	out := make([]byte, 0, 3+len(f.Data))
	out = append(out, f.Header, length)
	out = append(out, f.Cmd)
	out = append(out, f.Data...)
	out = append(out, f.checksum())
	return out
}

// IsResponse reports whether Cmd has its top bit set, marking this frame
// as a heater response rather than a controller command.
func (f Frame) IsResponse() bool {
	return f.Cmd&0x80 != 0
}

// String renders a short diagnostic form, e.g. "4F/D0 0704" for header
// 0x4F, cmd 0xD0 and data {0x07, 0x04}.
func (f Frame) String() string {
	return fmt.Sprintf("%02X/%02X %X", f.Header, f.Cmd, f.Data)
}
