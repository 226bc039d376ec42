package opc

import (
	"encoding/binary"
	"io"
)

// Wire layout constants.
const (
	// HeaderLen is the size of a frame header on the wire.
	HeaderLen = 4
	// MaxPayloadLen is the largest payload the 16-bit length field can describe.
	MaxPayloadLen = 0xffff
)

// Command bytes with a fixed payload interpretation.
// Any other value is carried as an opaque Other payload.
const (
	CommandSetPixelColours byte = 0
	CommandSystemExclusive byte = 255
)

// Header is the fixed 4-byte prefix of every frame:
// channel, command, then the payload length as big-endian uint16.
type Header struct {
	Channel byte
	Command byte
	Length  uint16
}

// ParseHeader reads a header from the first HeaderLen bytes of b.
// The caller must make sure b holds at least HeaderLen bytes.
func ParseHeader(b []byte) Header {
	return Header{
		Channel: b[0],
		Command: b[1],
		Length:  binary.BigEndian.Uint16(b[2:4]),
	}
}

// Bytes returns the wire encoding of h.
func (h Header) Bytes() [HeaderLen]byte {
	var b [HeaderLen]byte
	b[0] = h.Channel
	b[1] = h.Command
	binary.BigEndian.PutUint16(b[2:], h.Length)
	return b
}

// AppendTo appends the wire encoding of h to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, h.Channel, h.Command)
	return binary.BigEndian.AppendUint16(dst, h.Length)
}

// FrameLen returns the total size of the frame h describes.
func (h Header) FrameLen() int {
	return HeaderLen + int(h.Length)
}

// ReadHeader blocks until a full header has been read from r.
func ReadHeader(r io.Reader) (Header, error) {
	var b [HeaderLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Header{}, err
	}
	return ParseHeader(b[:]), nil
}

// WriteTo writes the header to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	b := h.Bytes()
	n, err := w.Write(b[:])
	return int64(n), err
}
