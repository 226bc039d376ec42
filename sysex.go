package opc

import "encoding/binary"

// systemIDLen is the size of the big-endian system identifier
// at the start of a system-exclusive payload.
const systemIDLen = 2

// SystemExclusive is a vendor-specific payload: a 16-bit system id
// followed by opaque data.
//
// A payload shorter than two bytes is kept as is; it reports id 0 and no data.
type SystemExclusive struct {
	buf []byte
}

// NewSystemExclusive builds a payload for the given system id and data.
func NewSystemExclusive(systemID uint16, data []byte) SystemExclusive {
	buf := make([]byte, systemIDLen, systemIDLen+len(data))
	binary.BigEndian.PutUint16(buf, systemID)
	return SystemExclusive{buf: append(buf, data...)}
}

// SystemExclusiveFromBytes takes ownership of b as a raw payload.
func SystemExclusiveFromBytes(b []byte) SystemExclusive {
	return SystemExclusive{buf: b}
}

// Command implements Payload.
func (s SystemExclusive) Command() byte { return CommandSystemExclusive }

// Bytes returns the payload including the system id.
func (s SystemExclusive) Bytes() []byte { return s.buf }

// LenBytes returns the payload size including the system id.
func (s SystemExclusive) LenBytes() int { return len(s.buf) }

// SystemID returns the system id, or 0 if the payload is too short to hold one.
func (s SystemExclusive) SystemID() uint16 {
	if len(s.buf) < systemIDLen {
		return 0
	}
	return binary.BigEndian.Uint16(s.buf)
}

// Data returns the bytes after the system id.
func (s SystemExclusive) Data() []byte {
	if len(s.buf) < systemIDLen {
		return s.buf[:0:0]
	}
	return s.buf[systemIDLen:]
}

func (SystemExclusive) isPayload() {}
