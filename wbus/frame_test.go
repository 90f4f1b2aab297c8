package wbus

import "testing"

func TestEncodeMinimalFrame(t *testing.T) {
	f := Frame{Header: 0xF4, Cmd: 0x10}
	b := f.Encode()
	if len(b) != 4 {
		t.Fatalf("expected 4 bytes (header, length, cmd, checksum) for zero-data frame, got %d", len(b))
	}
	if b[0] != 0xF4 || b[1] != 2 || b[2] != 0x10 {
		t.Fatalf("unexpected header/length/cmd: % X", b)
	}
	want := byte(0xF4) ^ 2 ^ 0x10
	if b[3] != want {
		t.Fatalf("checksum = %#x, want %#x", b[3], want)
	}
}

func TestEncodeChecksum(t *testing.T) {
	f := Frame{Header: 0xF4, Cmd: 0x21, Data: []byte{0x14}}
	b := f.Encode()
	// header=0xF4, length=3, cmd=0x21, data=0x14
	want := byte(0xF4) ^ 3 ^ 0x21 ^ 0x14
	if got := b[len(b)-1]; got != want {
		t.Fatalf("checksum = %#x, want %#x", got, want)
	}
}

func TestIsResponse(t *testing.T) {
	if (Frame{Cmd: 0x10}).IsResponse() {
		t.Fatal("command byte without top bit should not be a response")
	}
	if !(Frame{Cmd: 0x90}).IsResponse() {
		t.Fatal("command byte with top bit set should be a response")
	}
}
