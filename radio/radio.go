// Package radio abstracts the point-to-point LoRa link between Sender and
// Receiver behind a host/tinygo split, the way michcald-nrf24 splits its
// NRF24L01 driver into hardware.go (shared protocol) plus
// adapter-periph.go/adapter-tinygo.go (platform wiring). Framing, CRC and
// encryption all live in protocol/cipher; this package only moves bytes and
// reports link-quality metrics.
package radio

import (
	"errors"
	"time"
)

// ErrNoFrame is returned by TryRecv when no frame arrived within the
// configured window; it is not a link failure.
var ErrNoFrame = errors.New("radio: no frame received")

// Frame is one received radio packet together with the link-quality
// metrics the Receiver folds into StatusPayload.LastRSSI/LastSNR.
type Frame struct {
	Data []byte
	RSSI int8
	SNR  int8
}

// Config holds the radio parameters common to both platform adapters. The
// defaulting pattern mirrors nrf24.Config/RadioConfig: a zero-value Config
// is filled in with sane defaults by the constructor, not by the caller.
type Config struct {
	FrequencyHz     uint32
	SpreadingFactor uint8
	Bandwidth       uint32
	CodingRate      uint8
	TxPowerDBm      int8
	SyncWord        uint8
}

// DefaultConfig returns the link parameters used by both Sender and
// Receiver; they must agree for the two ends to hear each other.
func DefaultConfig() Config {
	return Config{
		FrequencyHz:     868000000,
		SpreadingFactor: 9,
		Bandwidth:       125000,
		CodingRate:      5,
		TxPowerDBm:      14,
		SyncWord:        0x34,
	}
}

// Link is the platform-independent radio surface both loraradio_host.go
// and loraradio_tinygo.go implement.
type Link interface {
	// Send transmits data as a single LoRa packet.
	Send(data []byte) error
	// TryRecv blocks up to timeout waiting for one frame. It returns
	// ErrNoFrame, not an error, on timeout.
	TryRecv(timeout time.Duration) (Frame, error)
	// Sleep puts the radio into its lowest-power receive-capable or
	// off state; Idle brings it back.
	Sleep() error
	Idle() error
	Close() error
}
