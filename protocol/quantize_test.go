package protocol

import "testing"

func TestTempRoundTrip(t *testing.T) {
	for c := -50; c <= 205; c++ {
		if got := UnpackTemp(PackTemp(c)); got != c {
			t.Fatalf("UnpackTemp(PackTemp(%d)) = %d, want %d", c, got, c)
		}
	}
}

func TestVoltageRoundTripWithinStep(t *testing.T) {
	for mv := 8000; mv <= 16160; mv += 7 {
		got := UnpackVoltage(PackVoltage(mv))
		diff := got - mv
		if diff < 0 {
			diff = -diff
		}
		if diff > 31 {
			t.Fatalf("voltage round-trip error too large: mv=%d got=%d diff=%d", mv, got, diff)
		}
	}
}

func TestPowerRoundTripWithinStep(t *testing.T) {
	for w := 0; w <= 4080; w += 3 {
		got := UnpackPower(PackPower(w))
		diff := got - w
		if diff < 0 {
			diff = -diff
		}
		if diff > 15 {
			t.Fatalf("power round-trip error too large: w=%d got=%d diff=%d", w, got, diff)
		}
	}
}

func TestQuantizersSaturate(t *testing.T) {
	if got := PackTemp(-100); got != PackTemp(-50) {
		t.Errorf("PackTemp should saturate at -50: got %d, want %d", got, PackTemp(-50))
	}
	if got := PackTemp(300); got != PackTemp(205) {
		t.Errorf("PackTemp should saturate at 205: got %d, want %d", got, PackTemp(205))
	}
	if got := PackVoltage(0); got != PackVoltage(8000) {
		t.Errorf("PackVoltage should saturate at 8000: got %d, want %d", got, PackVoltage(8000))
	}
	if got := PackPower(-5); got != PackPower(0) {
		t.Errorf("PackPower should saturate at 0: got %d, want %d", got, PackPower(0))
	}
}
