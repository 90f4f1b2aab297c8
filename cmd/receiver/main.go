// Command receiver is the heater-side control loop: it owns the LoRa
// radio, the W-BUS link to the heater, the local button and an optional
// MQTT bridge, and drives receiver.Loop until killed. The flag-parsed
// resource wiring follows host/cmd/gopper-host/main.go; the polled
// main-loop shape (no goroutines touching the W-BUS port) follows
// core/scheduler.go's single cooperative timer list and
// michcald-nrf24/examples/simple/receiver/main.go's connect-then-loop
// structure.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/universam1/webasto-lora-remote-ctrl/cipher"
	"github.com/universam1/webasto-lora-remote-ctrl/config"
	"github.com/universam1/webasto-lora-remote-ctrl/logging"
	"github.com/universam1/webasto-lora-remote-ctrl/menu"
	"github.com/universam1/webasto-lora-remote-ctrl/mqttbridge"
	"github.com/universam1/webasto-lora-remote-ctrl/persist"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/radio"
	"github.com/universam1/webasto-lora-remote-ctrl/receiver"
	"github.com/universam1/webasto-lora-remote-ctrl/wbus"
)

var (
	keyHex       = flag.String("key", "", "32 hex chars, the 16-byte AES-128 pre-shared key (required)")
	wbusDevice   = flag.String("wbus-device", "/dev/ttyUSB0", "serial device wired to the heater's K-line")
	csPin        = flag.String("cs-pin", "GPIO8", "SPI chip-select GPIO name")
	resetPin     = flag.String("reset-pin", "GPIO22", "radio reset GPIO name")
	dio0Pin      = flag.String("dio0-pin", "GPIO17", "radio DIO0 GPIO name")
	spiBus       = flag.String("spi-bus", "/dev/spidev0.0", "Linux SPI device path")
	buttonPin    = flag.String("button-pin", "", "GPIO name for the menu button (empty disables the menu)")
	nodeAddr     = flag.Uint("node", uint(protocol.NodeReceiver), "this node's address")
	peerAddr     = flag.Uint("peer", uint(protocol.NodeSender), "the Sender's address")
	mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables the bridge)")
	mqttDeviceID = flag.String("mqtt-device-id", "heater1", "device id used to derive MQTT topic names")
)

func main() {
	flag.Parse()

	key, err := parseKey(*keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver:", err)
		os.Exit(1)
	}
	c, err := cipher.New(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver: cipher:", err)
		os.Exit(1)
	}

	// radio.NewHost performs periph.io host.Init(); gpioreg lookups below
	// rely on that having already run.
	link, err := radio.NewHost(radio.HostConfig{
		Radio:      radio.DefaultConfig(),
		CSPin:      *csPin,
		ResetPin:   *resetPin,
		DIO0Pin:    *dio0Pin,
		SpiBusPath: *spiBus,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver: radio init:", err)
		os.Exit(1)
	}
	defer link.Close()

	port, err := wbus.OpenPort(*wbusDevice)
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver: wbus port:", err)
		os.Exit(1)
	}
	defer port.Close()
	transport := wbus.NewTransport(port)

	store := persist.NewMemStore()
	loop := receiver.NewLoop(link, transport, c, uint8(*nodeAddr), uint8(*peerAddr), store)

	var m *menu.Menu
	var buttonGPIO gpio.PinIO
	if *buttonPin != "" {
		buttonGPIO = gpioreg.ByName(*buttonPin)
		if buttonGPIO == nil {
			fmt.Fprintln(os.Stderr, "receiver: unknown button GPIO:", *buttonPin)
			os.Exit(1)
		}
		if err := buttonGPIO.In(gpio.PullUp, gpio.NoEdge); err != nil {
			fmt.Fprintln(os.Stderr, "receiver: configure button GPIO:", err)
			os.Exit(1)
		}
		m = menu.New()
	}

	// MQTT commands arrive on the client's own goroutine; they are queued
	// here and dispatched from the main loop below.
	type mqttCommand struct {
		kind    protocol.CommandKind
		minutes uint8
	}
	var mqttCmds chan mqttCommand

	var bridge *mqttbridge.Bridge
	if *mqttBroker != "" {
		bridge, err = mqttbridge.New(mqttbridge.Config{
			BrokerURL: *mqttBroker,
			DeviceID:  *mqttDeviceID,
			StaleAge:  config.MQTTStaleCommandAge,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "receiver: mqtt bridge:", err)
			os.Exit(1)
		}
		mqttCmds = make(chan mqttCommand, 4)
		err = bridge.Connect(func(kind protocol.CommandKind, minutes uint8) {
			select {
			case mqttCmds <- mqttCommand{kind: kind, minutes: minutes}:
			default:
				logging.Warn("receiver: mqtt command queue full, dropping command")
			}
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "receiver: mqtt connect:", err)
			os.Exit(1)
		}
		defer bridge.Close()
		if err := bridge.PublishDiscovery(); err != nil {
			logging.Warn("receiver: mqtt discovery publish: " + err.Error())
		}
	}

	fmt.Println("Webasto LoRa Receiver running. Ctrl-C to stop.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	menuSeq := uint16(0)
	mqttSeq := uint16(0)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			fmt.Println("\nshutting down")
			return

		case cmd := <-mqttCmds:
			mqttSeq++
			status := receiver.Dispatch(loop.State, loop.Transport, receiver.SourceMQTT, mqttSeq, cmd.kind, cmd.minutes, 0, 0)
			if pubErr := bridge.PublishStatus(status); pubErr != nil {
				logging.Warn("receiver: mqtt publish status: " + pubErr.Error())
			}

		case now := <-ticker.C:
			if loop.Tick(now) == receiver.StateDeepSleep {
				time.Sleep(loop.Tuning.ReceiverIdleSleep)
			}

			if m != nil {
				m.Poll(now, buttonGPIO.Read() == gpio.Low)
				if act := m.TakeActivation(); act != nil {
					menuSeq++
					status := receiver.Dispatch(loop.State, loop.Transport, receiver.SourceMenu, menuSeq, act.Item, 0, 0, 0)
					if bridge != nil {
						if pubErr := bridge.PublishStatus(status); pubErr != nil {
							logging.Warn("receiver: mqtt publish status: " + pubErr.Error())
						}
					}
				}
			}
		}
	}
}

func parseKey(s string) ([cipher.KeySize]byte, error) {
	var key [cipher.KeySize]byte
	if s == "" {
		return key, fmt.Errorf("-key is required (32 hex chars)")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("-key: %w", err)
	}
	if len(b) != cipher.KeySize {
		return key, fmt.Errorf("-key: must decode to %d bytes, got %d", cipher.KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}
