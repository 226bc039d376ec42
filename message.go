package opc

// Payload is the body of a Message. It is one of Pixels, SystemExclusive or Other.
type Payload interface {
	// Command returns the command byte that selects this payload kind on the wire.
	Command() byte
	// Bytes returns the payload as it is written after the header.
	Bytes() []byte
	// LenBytes returns len(Bytes()).
	LenBytes() int

	isPayload()
}

// Other is a payload for any command without a dedicated type.
// The command byte is preserved so it round-trips.
type Other struct {
	command byte
	data    []byte
}

// NewOther wraps data as an opaque payload for command.
func NewOther(command byte, data []byte) Other {
	return Other{command: command, data: data}
}

// Command implements Payload.
func (o Other) Command() byte { return o.command }

// Bytes returns the raw payload.
func (o Other) Bytes() []byte { return o.data }

// LenBytes returns the raw payload size.
func (o Other) LenBytes() int { return len(o.data) }

func (Other) isPayload() {}

// NewPayload returns the payload type that command selects, wrapping data.
// It is how the decoder classifies every frame.
func NewPayload(command byte, data []byte) Payload {
	switch command {
	case CommandSetPixelColours:
		return PixelsFromBytes(data)
	case CommandSystemExclusive:
		return SystemExclusiveFromBytes(data)
	default:
		return NewOther(command, data)
	}
}

// Message is one OPC frame: a channel and its payload.
// The header is always derived from these two fields.
//
// A nil Payload is treated as an empty set-pixel-colours payload.
type Message struct {
	Channel byte
	Payload Payload
}

// NewMessage returns a Message for channel carrying p.
func NewMessage(channel byte, p Payload) Message {
	return Message{Channel: channel, Payload: p}
}

// Header derives the frame header for m. A payload larger than MaxPayloadLen
// is reported as MaxPayloadLen, which is what the lenient encoder writes.
func (m Message) Header() Header {
	h := Header{Channel: m.Channel}
	if m.Payload == nil {
		return h
	}

	h.Command = m.Payload.Command()
	h.Length = uint16(min(m.Payload.LenBytes(), MaxPayloadLen))
	return h
}

// Body returns the payload bytes, untruncated.
func (m Message) Body() []byte {
	if m.Payload == nil {
		return nil
	}
	return m.Payload.Bytes()
}

// Length returns the payload size, untruncated.
func (m Message) Length() int {
	if m.Payload == nil {
		return 0
	}
	return m.Payload.LenBytes()
}
