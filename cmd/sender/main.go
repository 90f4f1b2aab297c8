// Command sender is the handheld controller's diagnostic/interactive CLI:
// it connects to the LoRa radio, accepts "start"/"stop"/"run <minutes>"/
// "status" lines on stdin, and prints the correlated Status or the
// TimedOut/RejectedPreFlight outcome. The connect-then-interactive-loop
// shape follows host/cmd/gopper-host/main.go; the periph.io wiring
// follows michcald-nrf24/examples/simple/sender/setup-periph.go.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/universam1/webasto-lora-remote-ctrl/cipher"
	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
	"github.com/universam1/webasto-lora-remote-ctrl/radio"
	"github.com/universam1/webasto-lora-remote-ctrl/sender"
)

var (
	keyHex     = flag.String("key", "", "32 hex chars, the 16-byte AES-128 pre-shared key (required)")
	csPin      = flag.String("cs-pin", "GPIO8", "SPI chip-select GPIO name")
	resetPin   = flag.String("reset-pin", "GPIO22", "radio reset GPIO name")
	dio0Pin    = flag.String("dio0-pin", "GPIO17", "radio DIO0 (RxDone/TxDone) GPIO name")
	spiBus     = flag.String("spi-bus", "/dev/spidev0.0", "Linux SPI device path")
	nodeAddr   = flag.Uint("node", uint(protocol.NodeSender), "this node's address")
	peerAddr   = flag.Uint("peer", uint(protocol.NodeReceiver), "the Receiver's address")
)

func main() {
	flag.Parse()

	key, err := parseKey(*keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender:", err)
		os.Exit(1)
	}
	c, err := cipher.New(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender: cipher:", err)
		os.Exit(1)
	}

	fmt.Println("Webasto LoRa Sender")
	fmt.Println("====================")
	fmt.Printf("Connecting to LoRa radio on %s (CS=%s RESET=%s DIO0=%s)...\n", *spiBus, *csPin, *resetPin, *dio0Pin)

	link, err := radio.NewHost(radio.HostConfig{
		Radio:      radio.DefaultConfig(),
		CSPin:      *csPin,
		ResetPin:   *resetPin,
		DIO0Pin:    *dio0Pin,
		SpiBusPath: *spiBus,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender: radio init:", err)
		os.Exit(1)
	}
	defer link.Close()

	fmt.Println("Connected.")

	engine := sender.NewEngine(link, c, uint8(*nodeAddr), uint8(*peerAddr))

	fmt.Println("Enter commands (start, stop, run <minutes>, status, help, quit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" || line == "q" {
			fmt.Println("Goodbye!")
			return
		}
		if line == "help" || line == "?" {
			printHelp()
			continue
		}

		parsed, err := sender.ParseLine(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		runCommand(engine, parsed)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "sender: reading stdin:", err)
		os.Exit(1)
	}
}

func runCommand(engine *sender.Engine, cmd sender.ParsedCommand) {
	fmt.Printf("Sending %s...\n", cmd.Kind)
	result, err := engine.Submit(cmd.Kind, cmd.Minutes)
	if err != nil {
		fmt.Println("rejected:", err)
		return
	}

	switch result {
	case sender.Ok:
		printStatus(engine.LastStatus())
	case sender.TimedOut:
		fmt.Println("Failed to send: no correlated status before the ACK deadline.")
		if s := engine.LastStatus(); s != nil {
			fmt.Println("Last known status:")
			printStatus(s)
		}
	default:
		fmt.Println(result)
	}
}

func printStatus(s *protocol.StatusPayload) {
	if s == nil {
		fmt.Println("(no status received yet)")
		return
	}
	fmt.Printf("  state:        %s\n", s.State)
	fmt.Printf("  minutesLeft:  %d\n", s.MinutesLeft)
	fmt.Printf("  lastCmdSeq:   %d\n", s.LastCmdSeq)
	fmt.Printf("  rssi/snr:     %d/%d\n", s.LastRSSI, s.LastSNR)
	if s.ValidMask&protocol.StatusValidTemp != 0 {
		fmt.Printf("  temperature:  %d C\n", s.TemperatureC)
	}
	if s.ValidMask&protocol.StatusValidVoltage != 0 {
		fmt.Printf("  voltage:      %d mV\n", s.VoltageMV)
	}
	if s.ValidMask&protocol.StatusValidPower != 0 {
		fmt.Printf("  power:        %d W\n", s.PowerW)
	}
	if s.LastErrCode != 0 {
		fmt.Printf("  lastErrCode:  %d\n", s.LastErrCode)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  start          - start the heater with the receiver's remembered preset")
	fmt.Println("  stop           - stop the heater")
	fmt.Println("  run <minutes>  - start the heater for a specific duration (1..255 min)")
	fmt.Println("  status         - request a fresh status without changing heater state")
	fmt.Println("  help/?         - show this help message")
	fmt.Println("  quit/exit/q    - exit the program")
	fmt.Println()
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
