package sender

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
)

// ParsedCommand is the result of parsing one CLI line.
type ParsedCommand struct {
	Kind    protocol.CommandKind
	Minutes uint8
}

// ParseLine accepts the three forms §6 names: "start", "stop",
// "run <minutes>" with minutes in 1..255, plus "status" for a
// QueryStatus command. Anything else returns an error
// describing the rejection, for the CLI to print as a one-line
// diagnostic.
func ParseLine(line string) (ParsedCommand, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ParsedCommand{}, fmt.Errorf("empty command")
	}

	switch strings.ToLower(fields[0]) {
	case "start":
		if len(fields) != 1 {
			return ParsedCommand{}, fmt.Errorf("start takes no arguments")
		}
		return ParsedCommand{Kind: protocol.CmdStart}, nil

	case "stop":
		if len(fields) != 1 {
			return ParsedCommand{}, fmt.Errorf("stop takes no arguments")
		}
		return ParsedCommand{Kind: protocol.CmdStop}, nil

	case "status":
		if len(fields) != 1 {
			return ParsedCommand{}, fmt.Errorf("status takes no arguments")
		}
		return ParsedCommand{Kind: protocol.CmdQueryStatus}, nil

	case "run":
		if len(fields) != 2 {
			return ParsedCommand{}, fmt.Errorf("run requires exactly one argument: minutes")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return ParsedCommand{}, fmt.Errorf("run: %q is not a number", fields[1])
		}
		if n < 1 || n > 255 {
			return ParsedCommand{}, fmt.Errorf("run: minutes must be 1..255, got %d", n)
		}
		return ParsedCommand{Kind: protocol.CmdRunMinutes, Minutes: uint8(n)}, nil

	default:
		return ParsedCommand{}, fmt.Errorf("unrecognized command %q", fields[0])
	}
}
