package opc

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrPayloadTooLarge is returned by a Strict codec when a payload does not fit
// in the 16-bit length field.
var ErrPayloadTooLarge = errors.New("payload too large")

// OversizePolicy selects what the encoder does with a payload longer than MaxPayloadLen.
type OversizePolicy int

const (
	// Truncate cuts oversize payloads down to MaxPayloadLen bytes.
	Truncate OversizePolicy = iota
	// Strict rejects oversize payloads with ErrPayloadTooLarge.
	Strict
)

// String implements fmt.Stringer.
func (p OversizePolicy) String() string {
	switch p {
	case Truncate:
		return "truncate"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// Codec turns a byte stream into Messages and back.
//
// A Codec keeps no state between calls; the only stateful piece is the
// buffer owned by the caller. It is safe for concurrent use.
type Codec struct {
	policy OversizePolicy
}

// NewCodec returns a Codec using the given oversize policy.
func NewCodec(policy OversizePolicy) *Codec {
	return &Codec{policy: policy}
}

// Policy returns the oversize policy the codec was built with.
func (c *Codec) Policy() OversizePolicy {
	return c.policy
}

// Decode parses one frame from the front of buf.
//
// If buf does not yet hold a whole frame, Decode returns ok == false and n == 0;
// the caller should append more input and try again. Otherwise n is the size of
// the frame that was parsed and bytes after it belong to the next frame.
// The payload is copied, so buf may be reused once Decode returns.
func (c *Codec) Decode(buf []byte) (msg Message, n int, ok bool) {
	if len(buf) < HeaderLen {
		return Message{}, 0, false
	}

	h := ParseHeader(buf)
	n = h.FrameLen()
	if len(buf) < n {
		return Message{}, 0, false
	}

	data := make([]byte, h.Length)
	copy(data, buf[HeaderLen:n])
	return NewMessage(h.Channel, NewPayload(h.Command, data)), n, true
}

// DecodeBuffer is like Decode but consumes the frame from buf.
// Nothing is read from buf unless a whole frame is available.
func (c *Codec) DecodeBuffer(buf *bytes.Buffer) (Message, bool) {
	msg, n, ok := c.Decode(buf.Bytes())
	if ok {
		buf.Next(n)
	}
	return msg, ok
}

// Append encodes msg and appends the frame to dst.
// On error dst is returned unchanged.
func (c *Codec) Append(dst []byte, msg Message) ([]byte, error) {
	body, err := c.body(msg)
	if err != nil {
		return dst, err
	}

	h := msg.Header()
	h.Length = uint16(len(body))
	dst = h.AppendTo(dst)
	return append(dst, body...), nil
}

// Encode returns the wire encoding of msg.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	return c.Append(make([]byte, 0, HeaderLen+min(msg.Length(), MaxPayloadLen)), msg)
}

// ReadMessage blocks until one whole frame has been read from r.
// A stream that ends inside a frame yields io.ErrUnexpectedEOF.
func (c *Codec) ReadMessage(r io.Reader) (Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Message{}, err
	}

	data := make([]byte, h.Length)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, errors.Wrapf(err, "read payload of %d bytes", h.Length)
	}

	return NewMessage(h.Channel, NewPayload(h.Command, data)), nil
}

// WriteMessage encodes msg and writes the frame to w.
func (c *Codec) WriteMessage(w io.Writer, msg Message) error {
	b, err := c.Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// body returns the payload bytes to put on the wire, applying the oversize policy.
func (c *Codec) body(msg Message) ([]byte, error) {
	body := msg.Body()
	if len(body) <= MaxPayloadLen {
		return body, nil
	}

	if c.policy == Strict {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes exceeds %d", len(body), MaxPayloadLen)
	}
	return body[:MaxPayloadLen], nil
}
