package wbus

import (
	"testing"
	"time"
)

// pagePort is a fakePort preloaded with a single canned response frame,
// ignoring whatever request bytes are written to it.
type pagePort struct {
	fakePort
}

func newPagePort(resp Frame) *pagePort {
	return &pagePort{fakePort{rx: resp.Encode()}}
}

func TestReadOperatingStateOff(t *testing.T) {
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: []byte{0x07, 0x04}}
	tr := NewTransport(newPagePort(resp))

	state, err := ReadOperatingState(tr, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadOperatingState: %v", err)
	}
	if state != OperatingOff {
		t.Fatalf("expected Off, got %v", state)
	}
}

func TestReadOperatingStateRunning(t *testing.T) {
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: []byte{0x07, 0x02}}
	tr := NewTransport(newPagePort(resp))

	state, err := ReadOperatingState(tr, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadOperatingState: %v", err)
	}
	if state != OperatingRunning {
		t.Fatalf("expected Running, got %v", state)
	}
}

func TestReadSimplePage05Measurements(t *testing.T) {
	// payload after idx: [_, _, tempByte, voltHi, voltLo, flame, pwrHi, pwrLo]
	data := []byte{0x05, 0x00, 0x00, 70, 0x2F, 0x78, 0x00, 0x01, 0xF4}
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: data}
	tr := NewTransport(newPagePort(resp))

	var snap Snapshot
	if err := ReadSimplePage(tr, 50*time.Millisecond, 0x05, &snap); err != nil {
		t.Fatalf("ReadSimplePage: %v", err)
	}
	if !snap.Valid {
		t.Fatal("expected Valid snapshot")
	}
	if snap.TemperatureC == nil || *snap.TemperatureC != 20 {
		t.Fatalf("temperature = %v, want 20", snap.TemperatureC)
	}
	if snap.VoltageMV == nil || *snap.VoltageMV != 0x2F78 {
		t.Fatalf("voltage = %v, want %d", snap.VoltageMV, 0x2F78)
	}
	if snap.PowerW == nil || *snap.PowerW != 50 {
		t.Fatalf("power = %v, want 50", snap.PowerW)
	}
}

func TestReadSimplePageWrongIndexRejected(t *testing.T) {
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: []byte{0x06, 0x00}}
	tr := NewTransport(newPagePort(resp))

	var snap Snapshot
	if err := ReadSimplePage(tr, 50*time.Millisecond, 0x05, &snap); err != ErrNotDecoded {
		t.Fatalf("expected ErrNotDecoded, got %v", err)
	}
}

func TestReadMultiStatusFixedWidths(t *testing.T) {
	// TLVs: id 0x01 (1 byte temp), id 0x02 (2 byte voltage)
	tlv := []byte{0x01, 70, 0x02, 0x2F, 0x78}
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: append([]byte{0x30}, tlv...)}
	tr := NewTransport(newPagePort(resp))

	var snap Snapshot
	if err := ReadMultiStatus(tr, 50*time.Millisecond, []byte{0x01, 0x02}, &snap); err != nil {
		t.Fatalf("ReadMultiStatus: %v", err)
	}
	if snap.TemperatureC == nil || *snap.TemperatureC != 20 {
		t.Fatalf("temperature = %v, want 20", snap.TemperatureC)
	}
	if snap.VoltageMV == nil || *snap.VoltageMV != 0x2F78 {
		t.Fatalf("voltage = %v, want %d", snap.VoltageMV, 0x2F78)
	}
}

func TestReadMultiStatusAmbiguousLookAheadPrefersTwoBytes(t *testing.T) {
	// id 0x05 (ambiguous) followed two bytes later by another known id
	// 0x01 -> the heuristic should read 0x05 as a 2-byte value.
	tlv := []byte{0x05, 0xAA, 0xBB, 0x01, 70}
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: append([]byte{0x30}, tlv...)}
	tr := NewTransport(newPagePort(resp))

	var snap Snapshot
	if err := ReadMultiStatus(tr, 50*time.Millisecond, []byte{0x05, 0x01}, &snap); err != nil {
		t.Fatalf("ReadMultiStatus: %v", err)
	}
	if string(snap.Raw[0x05]) != string([]byte{0xAA, 0xBB}) {
		t.Fatalf("id 0x05 raw = % X, want 2 bytes AA BB", snap.Raw[0x05])
	}
	if snap.TemperatureC == nil || *snap.TemperatureC != 20 {
		t.Fatalf("id 0x01 should still decode after the 2-byte 0x05, got %v", snap.TemperatureC)
	}
}

func TestReadMultiStatusAmbiguousLookAheadPastEndPrefersTwoBytes(t *testing.T) {
	// id 0x06 (ambiguous) is the last byte: nothing two positions ahead,
	// so the heuristic prefers two bytes (past-end case) per spec.
	tlv := []byte{0x06, 0x11, 0x22}
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: append([]byte{0x30}, tlv...)}
	tr := NewTransport(newPagePort(resp))

	var snap Snapshot
	if err := ReadMultiStatus(tr, 50*time.Millisecond, []byte{0x06}, &snap); err != nil {
		t.Fatalf("ReadMultiStatus: %v", err)
	}
	if string(snap.Raw[0x06]) != string([]byte{0x11, 0x22}) {
		t.Fatalf("id 0x06 raw = % X, want 2 bytes 11 22", snap.Raw[0x06])
	}
}

func TestReadMultiStatusUnknownIDAbortsParse(t *testing.T) {
	tlv := []byte{0xFE, 0x00}
	resp := Frame{Header: 0x4F, Cmd: 0xD0, Data: append([]byte{0x30}, tlv...)}
	tr := NewTransport(newPagePort(resp))

	var snap Snapshot
	if err := ReadMultiStatus(tr, 50*time.Millisecond, []byte{0xFE}, &snap); err != ErrNotDecoded {
		t.Fatalf("expected ErrNotDecoded for unknown id, got %v", err)
	}
}
