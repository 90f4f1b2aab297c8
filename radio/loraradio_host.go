//go:build !tinygo

package radio

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SX127x register map, the subset this driver touches.
const (
	regFifo          = 0x00
	regOpMode        = 0x01
	regFrfMsb        = 0x06
	regFrfMid        = 0x07
	regFrfLsb        = 0x08
	regPaConfig      = 0x09
	regFifoAddrPtr   = 0x0D
	regFifoTxBaseAddr = 0x0E
	regFifoRxBaseAddr = 0x0F
	regFifoRxCurrent = 0x10
	regIrqFlags      = 0x12
	regRxNbBytes     = 0x13
	regPktSnrValue   = 0x19
	regPktRssiValue  = 0x1A
	regModemConfig1  = 0x1D
	regModemConfig2  = 0x1E
	regPreambleMsb   = 0x20
	regPreambleLsb   = 0x21
	regPayloadLength = 0x22
	regModemConfig3  = 0x26
	regSyncWord      = 0x39
	regDioMapping1   = 0x40

	modeSleep    = 0x80
	modeStdby    = 0x81
	modeTx       = 0x83
	modeRxSingle = 0x86

	irqTxDone  = 0x08
	irqRxDone  = 0x40
	irqCrcErr  = 0x20

	writeBit = 0x80
)

// HostConfig names the Linux GPIO/SPI resources a periph.io-backed run
// uses. The defaulting and host.Init()/spireg.Open() sequence mirrors
// michcald-nrf24's adapter-periph.go Config/New.
type HostConfig struct {
	Radio      Config
	CSPin      string // e.g. "GPIO8"
	ResetPin   string // e.g. "GPIO22"
	DIO0Pin    string // e.g. "GPIO17"
	SpiBusPath string // defaults to /dev/spidev0.0
	SpiClockHz int    // defaults to 1MHz
}

// LoraRadio drives an SX127x module's registers directly over a periph.io
// SPI connection, the same full-duplex scratch-buffer idiom nrf24.go uses
// for its own register access, since periph.io has no ready-made LoRa
// driver of its own.
type LoraRadio struct {
	conn    spi.Conn
	cs      gpio.PinIO
	reset   gpio.PinIO
	dio0    gpio.PinIO
	port    spi.PortCloser
	scratch [2]byte
}

// NewHost opens the SPI bus and the reset and DIO0 GPIO pins named in c,
// resets the module and applies the LoRa radio parameters. CSPin is not
// opened; chip select is left to the SPI device.
func NewHost(c HostConfig) (Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("radio: periph.io host init: %w", err)
	}

	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}
	if c.SpiClockHz == 0 {
		c.SpiClockHz = 1000000
	}

	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("radio: open SPI port %s: %w", c.SpiBusPath, err)
	}
	conn, err := p.Connect(physic.Frequency(c.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("radio: SPI connect: %w", err)
	}

	reset := gpioreg.ByName(c.ResetPin)
	dio0 := gpioreg.ByName(c.DIO0Pin)
	if reset == nil || dio0 == nil {
		p.Close()
		return nil, errors.New("radio: reset or DIO0 pin not found")
	}
	if err := reset.Out(gpio.High); err != nil {
		p.Close()
		return nil, err
	}
	if err := dio0.In(gpio.PullDown, gpio.NoEdge); err != nil {
		p.Close()
		return nil, err
	}

	r := &LoraRadio{conn: conn, reset: reset, dio0: dio0, port: p}
	r.hardReset()
	if err := r.configure(c.Radio); err != nil {
		p.Close()
		return nil, err
	}
	return r, nil
}

func (r *LoraRadio) hardReset() {
	r.reset.Out(gpio.Low)
	time.Sleep(1 * time.Millisecond)
	r.reset.Out(gpio.High)
	time.Sleep(10 * time.Millisecond)
}

func (r *LoraRadio) transfer(w, resp []byte) error {
	return r.conn.Tx(w, resp)
}

func (r *LoraRadio) writeRegister(reg, val byte) {
	w := []byte{reg | writeBit, val}
	resp := make([]byte, 2)
	r.transfer(w, resp)
}

func (r *LoraRadio) readRegister(reg byte) byte {
	w := []byte{reg &^ writeBit, 0x00}
	resp := make([]byte, 2)
	r.transfer(w, resp)
	return resp[1]
}

func (r *LoraRadio) configure(c Config) error {
	r.writeRegister(regOpMode, modeSleep|0x80) // sleep, LoRa mode bit
	time.Sleep(10 * time.Millisecond)

	frf := uint64(c.FrequencyHz) << 19 / 32000000
	r.writeRegister(regFrfMsb, byte(frf>>16))
	r.writeRegister(regFrfMid, byte(frf>>8))
	r.writeRegister(regFrfLsb, byte(frf))

	r.writeRegister(regFifoTxBaseAddr, 0)
	r.writeRegister(regFifoRxBaseAddr, 0)

	bwCode := bandwidthCode(c.Bandwidth)
	r.writeRegister(regModemConfig1, (bwCode<<4)|((c.CodingRate-4)<<1))
	r.writeRegister(regModemConfig2, (c.SpreadingFactor<<4)|0x04)
	r.writeRegister(regModemConfig3, 0x04)

	r.writeRegister(regPreambleMsb, 0)
	r.writeRegister(regPreambleLsb, 8)
	r.writeRegister(regSyncWord, c.SyncWord)
	r.writeRegister(regPaConfig, 0x80|byte(c.TxPowerDBm-2))

	r.writeRegister(regOpMode, modeStdby|0x80)
	return nil
}

func bandwidthCode(hz uint32) byte {
	switch {
	case hz <= 125000:
		return 7
	case hz <= 250000:
		return 8
	default:
		return 9
	}
}

func (r *LoraRadio) Send(data []byte) error {
	r.writeRegister(regOpMode, modeStdby|0x80)
	r.writeRegister(regFifoAddrPtr, 0)
	r.writeRegister(regPayloadLength, byte(len(data)))

	w := make([]byte, len(data)+1)
	w[0] = regFifo | writeBit
	copy(w[1:], data)
	resp := make([]byte, len(w))
	r.transfer(w, resp)

	r.writeRegister(regOpMode, modeTx|0x80)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.readRegister(regIrqFlags)&irqTxDone != 0 {
			r.writeRegister(regIrqFlags, irqTxDone)
			return nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return errors.New("radio: tx timeout")
}

func (r *LoraRadio) TryRecv(timeout time.Duration) (Frame, error) {
	r.writeRegister(regFifoAddrPtr, 0)
	r.writeRegister(regOpMode, modeRxSingle|0x80)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		flags := r.readRegister(regIrqFlags)
		if flags&irqRxDone != 0 {
			r.writeRegister(regIrqFlags, irqRxDone|irqCrcErr)
			if flags&irqCrcErr != 0 {
				return Frame{}, errors.New("radio: crc error")
			}
			n := r.readRegister(regRxNbBytes)
			addr := r.readRegister(regFifoRxCurrent)
			r.writeRegister(regFifoAddrPtr, addr)

			w := make([]byte, int(n)+1)
			resp := make([]byte, len(w))
			w[0] = regFifo
			r.transfer(w, resp)

			snr := int8(r.readRegister(regPktSnrValue)) / 4
			rssi := int8(int(r.readRegister(regPktRssiValue)) - 157)
			return Frame{Data: resp[1:], RSSI: rssi, SNR: snr}, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return Frame{}, ErrNoFrame
}

func (r *LoraRadio) Sleep() error {
	r.writeRegister(regOpMode, modeSleep|0x80)
	return nil
}

func (r *LoraRadio) Idle() error {
	r.writeRegister(regOpMode, modeStdby|0x80)
	return nil
}

func (r *LoraRadio) Close() error {
	r.writeRegister(regOpMode, modeSleep|0x80)
	return r.port.Close()
}
