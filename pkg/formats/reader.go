package formats

import (
	"encoding/binary"
	"math"

	"github.com/Faultbox/midgard-mmd/pkg/encoding"
)

// Reader is a little-endian cursor over an in-memory buffer.
//
// The first underrun is recorded and returned by Err; every read after that
// returns a zero value without moving the cursor, so a decoder can check Err
// once per record instead of after every field.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the cursor position.
func (r *Reader) Offset() int { return r.off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.off }

// Err returns the first underrun, if any.
func (r *Reader) Err() error { return r.err }

// take advances the cursor by n bytes and returns them, or nil on underrun.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Len() {
		r.err = &RangeError{Offset: r.off, Need: n, Remain: r.Len()}
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Int8 reads one signed byte.
func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Int16 reads a little-endian int16.
func (r *Reader) Int16() int16 { return int16(r.Uint16()) }

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int32 reads a little-endian int32.
func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

// Float32 reads an IEEE 754 single.
func (r *Reader) Float32() float32 { return math.Float32frombits(r.Uint32()) }

// Vec2 reads two float32 values.
func (r *Reader) Vec2() [2]float32 {
	return [2]float32{r.Float32(), r.Float32()}
}

// Vec3 reads three float32 values.
func (r *Reader) Vec3() [3]float32 {
	return [3]float32{r.Float32(), r.Float32(), r.Float32()}
}

// Vec4 reads four float32 values.
func (r *Reader) Vec4() [4]float32 {
	return [4]float32{r.Float32(), r.Float32(), r.Float32(), r.Float32()}
}

// Bytes returns the next n bytes. The slice aliases the underlying buffer.
func (r *Reader) Bytes(n int) []byte { return r.take(n) }

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) { r.take(n) }

// String reads an int32 byte count followed by that many bytes of text.
func (r *Reader) String(enc encoding.Text) string {
	n := r.Int32()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return encoding.Decode(enc, b)
}

// FixedString consumes a zero-padded field of exactly n bytes.
func (r *Reader) FixedString(n int, enc encoding.Text) string {
	b := r.take(n)
	if b == nil {
		return ""
	}
	return encoding.FixedStringToUTF8(enc, b)
}

// Count reads an int32 element count and checks that that many records of
// at least minSize bytes each still fit in the buffer.
func (r *Reader) Count(minSize int) int {
	off := r.off
	n := r.Int32()
	if r.err != nil {
		return 0
	}
	if n < 0 || int64(n)*int64(minSize) > int64(r.Len()) {
		r.err = &RangeError{Offset: off, Need: int(n) * minSize, Remain: r.Len()}
		return 0
	}
	return int(n)
}

// indexReader and uindexReader read one index field of a fixed width.
type (
	indexReader  func(r *Reader) int32
	uindexReader func(r *Reader) uint32
)

var (
	signedIndexReaders = map[uint8]indexReader{
		1: func(r *Reader) int32 { return int32(r.Int8()) },
		2: func(r *Reader) int32 { return int32(r.Int16()) },
		4: func(r *Reader) int32 { return r.Int32() },
	}
	unsignedIndexReaders = map[uint8]uindexReader{
		1: func(r *Reader) uint32 { return uint32(r.Uint8()) },
		2: func(r *Reader) uint32 { return uint32(r.Uint16()) },
		4: func(r *Reader) uint32 { return r.Uint32() },
	}
)

// validIndexWidth reports whether w is a supported index width.
func validIndexWidth(w uint8) bool {
	_, ok := signedIndexReaders[w]
	return ok
}

// Index reads a signed index of the given width (1, 2 or 4 bytes).
// -1 conventionally means "none".
func (r *Reader) Index(width uint8) int32 {
	read, ok := signedIndexReaders[width]
	if !ok {
		r.err = &RangeError{Offset: r.off, Need: int(width), Remain: r.Len()}
		return 0
	}
	return read(r)
}

// UIndex reads an unsigned index of the given width (1, 2 or 4 bytes).
func (r *Reader) UIndex(width uint8) uint32 {
	read, ok := unsignedIndexReaders[width]
	if !ok {
		r.err = &RangeError{Offset: r.off, Need: int(width), Remain: r.Len()}
		return 0
	}
	return read(r)
}
