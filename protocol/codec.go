package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Deserialize when the byte sequence cannot be
// interpreted as a Packet: wrong size, unknown type, bad magic version, or
// CRC mismatch. Per spec §7 this is always handled by the caller as a
// silent drop, never surfaced to a user.
var ErrMalformed = errors.New("protocol: malformed or corrupt packet")

// Serialize writes magic_version, type, src, dst, seq (little-endian), the
// type-specific payload, then the little-endian CRC-16/CCITT computed over
// everything written so far. Serialize itself never encrypts or decrypts:
// it encodes the plaintext payload fields, so a caller that encrypts the
// payload region afterwards (see cipher.Cipher) recomputes the CRC over
// the ciphertext before transmitting.
func Serialize(p *Packet) ([]byte, error) {
	payload, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize+len(payload)+TrailerSize)
	buf[0] = MagicVersion
	buf[1] = uint8(p.Type)
	buf[2] = p.Src
	buf[3] = p.Dst
	binary.LittleEndian.PutUint16(buf[4:6], p.Seq)
	copy(buf[HeaderSize:], payload)

	crc := CRC16CCITT(buf[:HeaderSize+len(payload)])
	binary.LittleEndian.PutUint16(buf[HeaderSize+len(payload):], crc)
	return buf, nil
}

// Deserialize validates size, CRC and magic_version before decoding the
// payload. Any failure returns ErrMalformed; callers must silently discard
// rather than propagate a visible error (spec §7).
func Deserialize(b []byte) (*Packet, error) {
	if len(b) < HeaderSize+TrailerSize {
		return nil, ErrMalformed
	}

	body := b[:len(b)-TrailerSize]
	wantCRC := binary.LittleEndian.Uint16(b[len(b)-TrailerSize:])
	if CRC16CCITT(body) != wantCRC {
		return nil, ErrMalformed
	}

	if b[0] != MagicVersion {
		return nil, ErrMalformed
	}

	p := &Packet{
		Type: MessageType(b[1]),
		Src:  b[2],
		Dst:  b[3],
		Seq:  binary.LittleEndian.Uint16(b[4:6]),
	}

	payload := body[HeaderSize:]
	if err := decodePayload(p, payload); err != nil {
		return nil, ErrMalformed
	}

	// The payload decoder must have consumed exactly len(payload) bytes;
	// anything else means the declared type/contents disagree with the
	// wire size, which is itself corruption.
	encoded, err := encodePayload(p)
	if err != nil || len(encoded) != len(payload) {
		return nil, ErrMalformed
	}

	return p, nil
}

// VerifyCRC reports whether b's trailing little-endian CRC matches
// CRC16CCITT computed over the preceding bytes. CRC is a pure function of
// bytes, so this is correct whether those bytes are ciphertext or
// plaintext — it is always called before decryption on receive.
func VerifyCRC(b []byte) bool {
	if len(b) < TrailerSize {
		return false
	}
	body := b[:len(b)-TrailerSize]
	want := binary.LittleEndian.Uint16(b[len(b)-TrailerSize:])
	return CRC16CCITT(body) == want
}

// Header is the fixed, always-cleartext prefix of a packet. It is read
// out before any decryption, since the cipher nonce is itself derived
// from Seq/Src/Dst.
type Header struct {
	Type MessageType
	Src  uint8
	Dst  uint8
	Seq  uint16
}

// ParseHeader extracts Header from b without touching CRC or the
// payload. Callers verify CRC (VerifyCRC) and decrypt the payload region
// using the returned fields before calling DecodePayload.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize+TrailerSize {
		return Header{}, ErrMalformed
	}
	if b[0] != MagicVersion {
		return Header{}, ErrMalformed
	}
	return Header{
		Type: MessageType(b[1]),
		Src:  b[2],
		Dst:  b[3],
		Seq:  binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// DecodePayload decodes the payload region of b — which must already be
// decrypted — into a Packet carrying hdr's header fields. It does not
// re-check CRC; that was already verified on the ciphertext by the
// caller before decryption.
func DecodePayload(hdr Header, b []byte) (*Packet, error) {
	if len(b) < HeaderSize+TrailerSize {
		return nil, ErrMalformed
	}
	p := &Packet{Type: hdr.Type, Src: hdr.Src, Dst: hdr.Dst, Seq: hdr.Seq}
	payload := b[HeaderSize : len(b)-TrailerSize]
	if err := decodePayload(p, payload); err != nil {
		return nil, ErrMalformed
	}
	encoded, err := encodePayload(p)
	if err != nil || len(encoded) != len(payload) {
		return nil, ErrMalformed
	}
	return p, nil
}

func encodePayload(p *Packet) ([]byte, error) {
	switch p.Type {
	case TypeCommand:
		if p.Command == nil {
			return nil, fmt.Errorf("protocol: Command packet missing CommandPayload")
		}
		return []byte{uint8(p.Command.Kind), p.Command.Minutes}, nil

	case TypeAck:
		return nil, nil

	case TypeStatus:
		if p.Status == nil {
			return nil, fmt.Errorf("protocol: Status packet missing StatusPayload")
		}
		return encodeStatus(p.Status), nil

	default:
		return nil, fmt.Errorf("protocol: unknown message type %d", uint8(p.Type))
	}
}

func decodePayload(p *Packet, payload []byte) error {
	switch p.Type {
	case TypeCommand:
		if len(payload) != CommandPayloadSize {
			return ErrMalformed
		}
		p.Command = &CommandPayload{Kind: CommandKind(payload[0]), Minutes: payload[1]}
		return nil

	case TypeAck:
		if len(payload) != AckPayloadSize {
			return ErrMalformed
		}
		p.Ack = &AckPayload{}
		return nil

	case TypeStatus:
		s, err := decodeStatus(payload)
		if err != nil {
			return err
		}
		p.Status = s
		return nil

	default:
		return ErrMalformed
	}
}

// encodeStatus packs the fixed 9-byte baseline (state, minutesLeft, rssi,
// snr, opstate, errCode, lastCmdSeq, validMask) followed by 0-3 optional
// one-byte quantized fields selected by ValidMask, in fixed order
// temperature, voltage, power.
func encodeStatus(s *StatusPayload) []byte {
	buf := make([]byte, 0, StatusPayloadMax)
	buf = append(buf,
		uint8(s.State),
		s.MinutesLeft,
		uint8(s.LastRSSI),
		uint8(s.LastSNR),
		s.LastOpstate,
		s.LastErrCode,
	)
	var seqBuf [2]byte
	binary.LittleEndian.PutUint16(seqBuf[:], s.LastCmdSeq)
	buf = append(buf, seqBuf[:]...)
	buf = append(buf, s.ValidMask)

	if s.ValidMask&StatusValidTemp != 0 {
		buf = append(buf, PackTemp(int(s.TemperatureC)))
	}
	if s.ValidMask&StatusValidVoltage != 0 {
		buf = append(buf, PackVoltage(int(s.VoltageMV)))
	}
	if s.ValidMask&StatusValidPower != 0 {
		buf = append(buf, PackPower(int(s.PowerW)))
	}
	return buf
}

func decodeStatus(payload []byte) (*StatusPayload, error) {
	if len(payload) < StatusPayloadMin {
		return nil, ErrMalformed
	}

	s := &StatusPayload{
		State:       HeaterState(payload[0]),
		MinutesLeft: payload[1],
		LastRSSI:    int8(payload[2]),
		LastSNR:     int8(payload[3]),
		LastOpstate: payload[4],
		LastErrCode: payload[5],
		LastCmdSeq:  binary.LittleEndian.Uint16(payload[6:8]),
		ValidMask:   payload[8],
	}

	rest := payload[9:]
	idx := 0
	need := func(n int) bool { return len(rest)-idx >= n }

	if s.ValidMask&StatusValidTemp != 0 {
		if !need(1) {
			return nil, ErrMalformed
		}
		s.TemperatureC = int16(UnpackTemp(rest[idx]))
		idx++
	}
	if s.ValidMask&StatusValidVoltage != 0 {
		if !need(1) {
			return nil, ErrMalformed
		}
		s.VoltageMV = uint16(UnpackVoltage(rest[idx]))
		idx++
	}
	if s.ValidMask&StatusValidPower != 0 {
		if !need(1) {
			return nil, ErrMalformed
		}
		s.PowerW = uint16(UnpackPower(rest[idx]))
		idx++
	}
	if idx != len(rest) {
		return nil, ErrMalformed
	}

	return s, nil
}
