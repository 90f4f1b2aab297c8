//go:build tinygo

package radio

import (
	"time"

	"machine"
	"tinygo.org/x/drivers/sx127x"
)

// LoraRadio drives an SX127x module over the board's SPI bus. Construction
// follows nrf24's tinygo Config{SPI, CSPin, ...} shape: the caller owns pin
// configuration up front, this type owns the chip thereafter.
type LoraRadio struct {
	dev *sx127x.Device
}

// TinyConfig names the pins the Receiver target wires to the radio module.
type TinyConfig struct {
	SPI     *machine.SPI
	CS      machine.Pin
	Reset   machine.Pin
	DIO0    machine.Pin
	Radio   Config
}

// NewTinyGo configures the SPI chip-select and reset pins, resets the
// module and applies cfg. It returns a Link usable by both Sender and
// Receiver firmware images.
func NewTinyGo(c TinyConfig) (Link, error) {
	c.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	c.Reset.Configure(machine.PinConfig{Mode: machine.PinOutput})
	c.DIO0.Configure(machine.PinConfig{Mode: machine.PinInput})

	dev := sx127x.New(c.SPI, c.Reset, c.CS, c.DIO0)
	dev.Reset()

	if err := dev.SetupLora(toLoraConfig(c.Radio)); err != nil {
		return nil, err
	}

	return &LoraRadio{dev: &dev}, nil
}

func toLoraConfig(c Config) sx127x.Config {
	return sx127x.Config{
		Frequency:       c.FrequencyHz,
		SpreadingFactor: c.SpreadingFactor,
		Bandwidth:       c.Bandwidth,
		CodingRate:      c.CodingRate,
		TxPower:         c.TxPowerDBm,
		SyncWord:        c.SyncWord,
	}
}

func (r *LoraRadio) Send(data []byte) error {
	_, err := r.dev.Tx(data, 5000)
	return err
}

func (r *LoraRadio) TryRecv(timeout time.Duration) (Frame, error) {
	buf, err := r.dev.Rx(uint32(timeout / time.Millisecond))
	if err != nil {
		return Frame{}, err
	}
	if len(buf) == 0 {
		return Frame{}, ErrNoFrame
	}
	return Frame{
		Data: buf,
		RSSI: int8(r.dev.PacketRssi()),
		SNR:  r.dev.PacketSnr(),
	}, nil
}

// Sleep and Idle map onto the module's own low-power/standby opcodes; the
// Receiver's duty cycle calls these, not the MCU's own sleep, since the
// radio has to keep listening during ExtendedWake even while the rest of
// the board would otherwise power down.
func (r *LoraRadio) Sleep() error {
	r.dev.Sleep()
	return nil
}

func (r *LoraRadio) Idle() error {
	r.dev.Standby()
	return nil
}

func (r *LoraRadio) Close() error {
	r.dev.Sleep()
	return nil
}
