package midi

import "fmt"

// cursor walks an immutable byte buffer with bounds checked reads.
// Any read that would run past the end fails with ErrTruncatedData.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) offset() int { return c.pos }

func (c *cursor) seek(pos int) { c.pos = pos }

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) need(n int) error {
	if n < 0 || n > len(c.buf)-c.pos {
		return fmt.Errorf("%w: %d bytes at offset %d, %d left", ErrTruncatedData, n, c.pos, len(c.buf)-c.pos)
	}
	return nil
}

func (c *cursor) readByte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// uint7 reads a data byte, masking the reserved high bit.
func (c *cursor) uint7() (uint8, error) {
	b, err := c.readByte()
	if err != nil {
		return 0, err
	}
	return b & 0x7F, nil
}

func (c *cursor) readUint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := uint16(c.buf[c.pos])<<8 | uint16(c.buf[c.pos+1])
	c.pos += 2
	return v, nil
}

func (c *cursor) readUint24() (uint32, error) {
	if err := c.need(3); err != nil {
		return 0, err
	}
	v := uint32(c.buf[c.pos])<<16 | uint32(c.buf[c.pos+1])<<8 | uint32(c.buf[c.pos+2])
	c.pos += 3
	return v, nil
}

func (c *cursor) readUint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := uint32(c.buf[c.pos])<<24 | uint32(c.buf[c.pos+1])<<16 | uint32(c.buf[c.pos+2])<<8 | uint32(c.buf[c.pos+3])
	c.pos += 4
	return v, nil
}

func (c *cursor) readID() ([4]byte, error) {
	var id [4]byte
	if err := c.need(4); err != nil {
		return id, err
	}
	copy(id[:], c.buf[c.pos:])
	c.pos += 4
	return id, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// maxVarLen caps a variable length quantity at the four bytes the
// format allows, values up to 0x0FFFFFFF.
const maxVarLen = 4

// varLen reads a MIDI variable length quantity: seven value bits per
// byte, high bit set on every byte except the last.
func (c *cursor) varLen() (uint32, error) {
	var x uint32
	for i := 0; i < maxVarLen; i++ {
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		x = x<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return x, nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated variable length quantity at offset %d", ErrInvalidEventStream, c.pos)
}

// varBytes reads a variable length quantity and then that many payload
// bytes, the layout shared by meta and sysex event bodies.
func (c *cursor) varBytes() ([]byte, error) {
	n, err := c.varLen()
	if err != nil {
		return nil, err
	}
	return c.readBytes(int(n))
}
