package opc

import (
	"bytes"
	"testing"
)

func TestSystemExclusive_RoundTrip(t *testing.T) {
	tests := []struct {
		id   uint16
		data []byte
	}{
		{0, nil},
		{1, []byte{9, 9}},
		{0x0001, []byte("fadecandy")},
		{0xabcd, []byte{0}},
		{0xffff, bytes.Repeat([]byte{7}, 1000)},
	}

	for _, tt := range tests {
		s := NewSystemExclusive(tt.id, tt.data)
		if got := s.SystemID(); got != tt.id {
			t.Errorf("SystemID() = %#x, want %#x", got, tt.id)
		}
		if got := s.Data(); !bytes.Equal(got, tt.data) {
			t.Errorf("Data() = %v, want %v", got, tt.data)
		}
		if s.LenBytes() != len(tt.data)+2 {
			t.Errorf("LenBytes() = %d, want %d", s.LenBytes(), len(tt.data)+2)
		}
	}
}

func TestNewSystemExclusive_BigEndianID(t *testing.T) {
	s := NewSystemExclusive(0x1234, []byte{5})

	want := []byte{0x12, 0x34, 5}
	if !bytes.Equal(s.Bytes(), want) {
		t.Errorf("Bytes() = %v, want %v", s.Bytes(), want)
	}
}

func TestNewSystemExclusive_CopiesData(t *testing.T) {
	data := []byte{1, 2}
	s := NewSystemExclusive(1, data)
	data[0] = 99

	if s.Data()[0] != 1 {
		t.Error("payload shares memory with the caller's data")
	}
}

func TestSystemExclusiveFromBytes_Verbatim(t *testing.T) {
	raw := []byte{0, 1, 9, 9}
	s := SystemExclusiveFromBytes(raw)

	if !bytes.Equal(s.Bytes(), raw) {
		t.Errorf("Bytes() = %v, want %v", s.Bytes(), raw)
	}
	if s.SystemID() != 1 {
		t.Errorf("SystemID() = %d, want 1", s.SystemID())
	}
	if !bytes.Equal(s.Data(), []byte{9, 9}) {
		t.Errorf("Data() = %v, want [9 9]", s.Data())
	}
}

func TestSystemExclusive_Short(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x42}} {
		s := SystemExclusiveFromBytes(raw)
		if s.SystemID() != 0 {
			t.Errorf("SystemID() for %v = %d, want 0", raw, s.SystemID())
		}
		if len(s.Data()) != 0 {
			t.Errorf("Data() for %v = %v, want empty", raw, s.Data())
		}
		if s.LenBytes() != len(raw) {
			t.Errorf("LenBytes() for %v = %d, want %d", raw, s.LenBytes(), len(raw))
		}
	}
}

func TestSystemExclusive_Command(t *testing.T) {
	if c := NewSystemExclusive(1, nil).Command(); c != CommandSystemExclusive {
		t.Errorf("Command() = %d, want %d", c, CommandSystemExclusive)
	}
}
