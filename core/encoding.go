package core

import (
	"encoding/binary"
	"fmt"
)

// encBuf accumulates the canonical binary encoding used for both hashing and
// chain-store/wire serialization. Fixed-width integers are little-endian;
// variable-length fields are prefixed by a uint64 length; structs are
// written field-by-field in declaration order. This is the one scheme the
// core uses everywhere a hash or a stored/gossiped byte form is needed —
// encoding/json never participates in anything that is hashed or persisted,
// matching spec.md's "implementations must fix one scheme" requirement.
type encBuf struct {
	buf []byte
}

func newEncBuf() *encBuf {
	return &encBuf{buf: make([]byte, 0, 256)}
}

func (e *encBuf) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encBuf) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encBuf) writeByte(v byte) {
	e.buf = append(e.buf, v)
}

func (e *encBuf) writeBytes(b []byte) {
	e.writeUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encBuf) writeHash(h Hash) {
	e.buf = append(e.buf, h[:]...)
}

func (e *encBuf) bytes() []byte {
	return e.buf
}

// decReader walks a canonical-encoded byte slice, the mirror of encBuf.
type decReader struct {
	buf []byte
	pos int
}

func newDecReader(b []byte) *decReader {
	return &decReader{buf: b}
}

func (d *decReader) readUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("%w: truncated uint64", ErrSerialization)
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decReader) readUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, fmt.Errorf("%w: truncated uint32", ErrSerialization)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decReader) readByte() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, fmt.Errorf("%w: truncated byte", ErrSerialization)
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decReader) readBytes() ([]byte, error) {
	n, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, fmt.Errorf("%w: truncated bytes field", ErrSerialization)
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b, nil
}

func (d *decReader) readHash() (Hash, error) {
	var h Hash
	if d.pos+len(h) > len(d.buf) {
		return h, fmt.Errorf("%w: truncated hash", ErrSerialization)
	}
	copy(h[:], d.buf[d.pos:d.pos+len(h)])
	d.pos += len(h)
	return h, nil
}

// remaining reports whether unread bytes are left in the buffer.
func (d *decReader) remaining() int {
	return len(d.buf) - d.pos
}
