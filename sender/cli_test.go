package sender

import (
	"testing"

	"github.com/universam1/webasto-lora-remote-ctrl/protocol"
)

func TestParseLineStartStop(t *testing.T) {
	p, err := ParseLine("start")
	if err != nil || p.Kind != protocol.CmdStart {
		t.Fatalf("start: got %+v, %v", p, err)
	}
	p, err = ParseLine("  stop  ")
	if err != nil || p.Kind != protocol.CmdStop {
		t.Fatalf("stop: got %+v, %v", p, err)
	}
}

func TestParseLineRun(t *testing.T) {
	p, err := ParseLine("run 20")
	if err != nil {
		t.Fatalf("run 20: %v", err)
	}
	if p.Kind != protocol.CmdRunMinutes || p.Minutes != 20 {
		t.Fatalf("unexpected parse: %+v", p)
	}

	p, err = ParseLine("run 255")
	if err != nil || p.Minutes != 255 {
		t.Fatalf("run 255: got %+v, %v", p, err)
	}
}

func TestParseLineRejectsRunZero(t *testing.T) {
	if _, err := ParseLine("run 0"); err == nil {
		t.Fatal("run 0 should be rejected")
	}
}

func TestParseLineRejectsGarbage(t *testing.T) {
	cases := []string{"", "foo", "run", "run abc", "run 256", "start now"}
	for _, c := range cases {
		if _, err := ParseLine(c); err == nil {
			t.Errorf("expected rejection for %q", c)
		}
	}
}
