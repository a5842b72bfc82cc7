package ndef

import "encoding/binary"

// Cursor is a forward-only reader over a fixed byte buffer. Reads never
// modify the buffer and a failed read leaves the position unchanged.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() (byte, error) {
	if c.Remaining() < 1 {
		return 0, c.outOfBounds("Peek", 1)
	}
	return c.buf[c.off], nil
}

// ReadByte consumes one byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.Remaining() < 1 {
		return 0, c.outOfBounds("ReadByte", 1)
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

// ReadBytes consumes n bytes and returns a copy of them.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, c.outOfBounds("ReadBytes", n)
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	return out, nil
}

// ReadUint32 consumes a big-endian 32-bit value.
func (c *Cursor) ReadUint32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, c.outOfBounds("ReadUint32", 4)
	}
	v := binary.BigEndian.Uint32(c.buf[c.off : c.off+4])
	c.off += 4
	return v, nil
}

func (c *Cursor) outOfBounds(op string, want int) *Error {
	return newError(CodeOutOfBounds, op, c.off, "need %d bytes, %d remaining", want, c.Remaining())
}
