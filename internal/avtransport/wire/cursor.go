// Package wire implements the AVTransport bytestream codec (spec §4.2): a
// bounds-checked cursor over a fixed byte range, plus the big-endian,
// deterministic encode/decode pair for every packet variant in §3.2/§6.1.
//
// The cursor mirrors the teacher's chunk.Writer/Reader pattern of building
// headers into small fixed-size scratch arrays rather than growing slices,
// but generalizes it to a single reusable {start, ptr, end} type shared by
// every packet variant's encoder and decoder, matching §4.2's contract that
// writes are bounds-checked (panicking on overflow, since a header that
// overflows its own layout is a programmer error, not a wire error) and
// reads zero-extend past the available bytes.
package wire

import "encoding/binary"

// Cursor is a bounds-checked read/write position over a fixed byte range.
type Cursor struct {
	start int
	ptr   int
	end   int
	buf   []byte
}

// NewCursor wraps buf for writing/reading starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{start: 0, ptr: 0, end: len(buf), buf: buf}
}

// Pos returns the number of bytes written/read so far.
func (c *Cursor) Pos() int { return c.ptr - c.start }

// Remaining returns the number of bytes left before the cursor's end.
func (c *Cursor) Remaining() int { return c.end - c.ptr }

// Bytes returns the bytes written so far (from start to the current ptr).
func (c *Cursor) Bytes() []byte { return c.buf[c.start:c.ptr] }

func (c *Cursor) requireWrite(n int) {
	if c.ptr+n > c.end {
		panic("wire: cursor write out of bounds")
	}
}

// WriteU8 writes a single byte.
func (c *Cursor) WriteU8(v uint8) {
	c.requireWrite(1)
	c.buf[c.ptr] = v
	c.ptr++
}

// WriteU16 writes a 16-bit big-endian value.
func (c *Cursor) WriteU16(v uint16) {
	c.requireWrite(2)
	binary.BigEndian.PutUint16(c.buf[c.ptr:], v)
	c.ptr += 2
}

// WriteU16LE writes a 16-bit little-endian value.
func (c *Cursor) WriteU16LE(v uint16) {
	c.requireWrite(2)
	binary.LittleEndian.PutUint16(c.buf[c.ptr:], v)
	c.ptr += 2
}

// WriteU32 writes a 32-bit big-endian value.
func (c *Cursor) WriteU32(v uint32) {
	c.requireWrite(4)
	binary.BigEndian.PutUint32(c.buf[c.ptr:], v)
	c.ptr += 4
}

// WriteU32LE writes a 32-bit little-endian value.
func (c *Cursor) WriteU32LE(v uint32) {
	c.requireWrite(4)
	binary.LittleEndian.PutUint32(c.buf[c.ptr:], v)
	c.ptr += 4
}

// WriteU64 writes a 64-bit big-endian value.
func (c *Cursor) WriteU64(v uint64) {
	c.requireWrite(8)
	binary.BigEndian.PutUint64(c.buf[c.ptr:], v)
	c.ptr += 8
}

// WriteRational writes a {num:i32, den:i32} pair, big-endian.
func (c *Cursor) WriteRational(num, den int32) {
	c.WriteU32(uint32(num))
	c.WriteU32(uint32(den))
}

// WriteRaw copies src verbatim.
func (c *Cursor) WriteRaw(src []byte) {
	c.requireWrite(len(src))
	copy(c.buf[c.ptr:], src)
	c.ptr += len(src)
}

// WriteZero writes n zero bytes (zero-padding).
func (c *Cursor) WriteZero(n int) {
	c.requireWrite(n)
	clear(c.buf[c.ptr : c.ptr+n])
	c.ptr += n
}

// WriteFixedString writes s as UTF-8 into exactly n bytes, truncating if too
// long and NUL-padding if shorter (producer_name[28] etc).
func (c *Cursor) WriteFixedString(s string, n int) {
	c.requireWrite(n)
	b := []byte(s)
	if len(b) > n {
		b = b[:n]
	}
	copy(c.buf[c.ptr:c.ptr+n], b)
	if len(b) < n {
		clear(c.buf[c.ptr+len(b) : c.ptr+n])
	}
	c.ptr += n
}

// --- Reading: zero-extends past the end of the underlying range, per §4.2's
// decoding contract ("decoding is total"); a truncated header still yields a
// fully-populated struct with trailing fields set to zero. ---

func (c *Cursor) avail(n int) []byte {
	if c.ptr >= c.end {
		return nil
	}
	want := c.ptr + n
	if want > c.end {
		want = c.end
	}
	b := c.buf[c.ptr:want]
	c.ptr = want
	return b
}

// ReadU8 reads one byte, or 0 if past the end.
func (c *Cursor) ReadU8() uint8 {
	b := c.avail(1)
	if len(b) < 1 {
		return 0
	}
	return b[0]
}

// ReadU16 reads a 16-bit big-endian value, zero-extended if truncated.
func (c *Cursor) ReadU16() uint16 {
	var tmp [2]byte
	b := c.avail(2)
	copy(tmp[:], b)
	return binary.BigEndian.Uint16(tmp[:])
}

// ReadU16LE reads a 16-bit little-endian value, zero-extended if truncated.
func (c *Cursor) ReadU16LE() uint16 {
	var tmp [2]byte
	b := c.avail(2)
	copy(tmp[:], b)
	return binary.LittleEndian.Uint16(tmp[:])
}

// ReadU32 reads a 32-bit big-endian value, zero-extended if truncated.
func (c *Cursor) ReadU32() uint32 {
	var tmp [4]byte
	b := c.avail(4)
	copy(tmp[:], b)
	return binary.BigEndian.Uint32(tmp[:])
}

// ReadU32LE reads a 32-bit little-endian value, zero-extended if truncated.
func (c *Cursor) ReadU32LE() uint32 {
	var tmp [4]byte
	b := c.avail(4)
	copy(tmp[:], b)
	return binary.LittleEndian.Uint32(tmp[:])
}

// ReadU64 reads a 64-bit big-endian value, zero-extended if truncated.
func (c *Cursor) ReadU64() uint64 {
	var tmp [8]byte
	b := c.avail(8)
	copy(tmp[:], b)
	return binary.BigEndian.Uint64(tmp[:])
}

// ReadRational reads a {num:i32, den:i32} pair.
func (c *Cursor) ReadRational() (int32, int32) {
	num := int32(c.ReadU32())
	den := int32(c.ReadU32())
	return num, den
}

// ReadRaw reads exactly n bytes into a fresh slice, zero-padded if truncated.
func (c *Cursor) ReadRaw(n int) []byte {
	out := make([]byte, n)
	b := c.avail(n)
	copy(out, b)
	return out
}

// ReadFixedString reads n bytes and trims at the first NUL (and trailing
// whitespace none — NUL-padded fixed strings only).
func (c *Cursor) ReadFixedString(n int) string {
	raw := c.ReadRaw(n)
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
