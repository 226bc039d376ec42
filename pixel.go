package opc

import "iter"

// bytesPerPixel is the size of one RGB triple.
const bytesPerPixel = 3

// Pixel is a read-only view of one RGB triple inside a Pixels buffer.
type Pixel struct {
	b []byte
}

// R returns the red channel.
func (p Pixel) R() byte { return p.b[0] }

// G returns the green channel.
func (p Pixel) G() byte { return p.b[1] }

// B returns the blue channel.
func (p Pixel) B() byte { return p.b[2] }

// RGB returns all three channels.
func (p Pixel) RGB() (r, g, b byte) {
	return p.b[0], p.b[1], p.b[2]
}

// MutPixel is a writable view of one RGB triple inside a Pixels buffer.
// Writes go straight to the owning buffer.
type MutPixel struct {
	Pixel
}

// SetR sets the red channel.
func (p MutPixel) SetR(v byte) { p.b[0] = v }

// SetG sets the green channel.
func (p MutPixel) SetG(v byte) { p.b[1] = v }

// SetB sets the blue channel.
func (p MutPixel) SetB(v byte) { p.b[2] = v }

// SetRGB sets all three channels.
func (p MutPixel) SetRGB(r, g, b byte) {
	p.b[0], p.b[1], p.b[2] = r, g, b
}

// Pixels is a set-pixel-colours payload: a flat buffer of RGB triples.
// Its length is always a multiple of three.
type Pixels struct {
	buf []byte
}

// NewPixels allocates n pixels with every channel set to zero.
func NewPixels(n int) Pixels {
	if n < 0 {
		n = 0
	}
	return Pixels{buf: make([]byte, n*bytesPerPixel)}
}

// PixelsFromBytes takes ownership of b as pixel data.
// Trailing bytes that do not form a whole triple are dropped.
func PixelsFromBytes(b []byte) Pixels {
	return Pixels{buf: b[:len(b)-len(b)%bytesPerPixel]}
}

// Command implements Payload.
func (p Pixels) Command() byte { return CommandSetPixelColours }

// Bytes returns the underlying buffer.
func (p Pixels) Bytes() []byte { return p.buf }

// LenBytes returns the buffer size, three times Len.
func (p Pixels) LenBytes() int { return len(p.buf) }

// Len returns the number of pixels.
func (p Pixels) Len() int { return len(p.buf) / bytesPerPixel }

// At returns a read-only view of pixel i. It panics if i is out of range.
func (p Pixels) At(i int) Pixel {
	off := i * bytesPerPixel
	return Pixel{b: p.buf[off : off+bytesPerPixel : off+bytesPerPixel]}
}

// MutAt returns a writable view of pixel i. It panics if i is out of range.
func (p Pixels) MutAt(i int) MutPixel {
	return MutPixel{p.At(i)}
}

// All yields every pixel in order as a read-only view.
func (p Pixels) All() iter.Seq2[int, Pixel] {
	return func(yield func(int, Pixel) bool) {
		for i := range p.Len() {
			if !yield(i, p.At(i)) {
				return
			}
		}
	}
}

// AllMut yields every pixel in order as a writable view.
// Views never overlap.
func (p Pixels) AllMut() iter.Seq2[int, MutPixel] {
	return func(yield func(int, MutPixel) bool) {
		for i := range p.Len() {
			if !yield(i, p.MutAt(i)) {
				return
			}
		}
	}
}

// Fill sets every pixel to the same colour.
func (p Pixels) Fill(r, g, b byte) {
	for _, px := range p.AllMut() {
		px.SetRGB(r, g, b)
	}
}

func (Pixels) isPayload() {}
