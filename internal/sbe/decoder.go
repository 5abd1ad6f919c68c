package sbe

import "encoding/binary"

// Decoder reads fixed-offset fields from a single message's byte slice,
// bounds-checking every access against the slice it was constructed
// over. A Decoder is not safe for concurrent use; decode one datagram
// per goroutine.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential, bounds-checked reads starting at
// offset 0. buf is not copied; the caller must not mutate it while the
// Decoder is in use.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) require(n int) error {
	if n < 0 || d.Remaining() < n {
		return ErrBufferUnderflow
	}
	return nil
}

// Header decodes the 8-byte message header at the current position.
func (d *Decoder) Header() (MessageHeader, error) {
	if err := d.require(HeaderSize); err != nil {
		return MessageHeader{}, err
	}
	h, err := DecodeHeader(d.buf[d.pos:])
	if err != nil {
		return MessageHeader{}, err
	}
	d.pos += HeaderSize
	return h, nil
}

// RootBlock windows the next blockLength bytes as a fresh Decoder over
// the message's fixed root block, advancing the parent cursor past it.
func (d *Decoder) RootBlock(blockLength uint16) (*Decoder, error) {
	n := int(blockLength)
	if err := d.require(n); err != nil {
		return nil, err
	}
	start := d.pos
	d.pos += n
	return &Decoder{buf: d.buf[start : start+n]}, nil
}

// Uint8 reads one byte.
func (d *Decoder) Uint8() (uint8, error) {
	if err := d.require(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

// Int8 reads one signed byte.
func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

// Uint16 reads a little-endian uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos : d.pos+2])
	d.pos += 2
	return v, nil
}

// Uint32 reads a little-endian uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// Int64 reads a little-endian int64.
func (d *Decoder) Int64() (int64, error) {
	if err := d.require(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8]))
	d.pos += 8
	return v, nil
}

// Uint64 reads a little-endian uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

// OptionalInt64 holds an optional fixed-width integer field: Present is
// false when the wire value equaled the schema's null sentinel.
type OptionalInt64 struct {
	Value   int64
	Present bool
}

// Int64Optional reads an int64 field and compares it against null,
// the schema-declared sentinel for "absent" (e.g. INT64_MAX).
func (d *Decoder) Int64Optional(null int64) (OptionalInt64, error) {
	v, err := d.Int64()
	if err != nil {
		return OptionalInt64{}, err
	}
	if v == null {
		return OptionalInt64{}, nil
	}
	return OptionalInt64{Value: v, Present: true}, nil
}

// Decimal64 is an SBE composite decimal: an int64 mantissa and an int8
// exponent, value = mantissa * 10^exponent.
type Decimal64 struct {
	Mantissa int64
	Exponent int8
}

// maxDecimalExponent bounds the exponent range this decoder accepts;
// values outside it are almost certainly a misframed buffer rather
// than a legitimate price scale.
const maxDecimalExponent = 18

// Decimal64 reads a 9-byte composite decimal (mantissa int64 LE,
// exponent int8).
func (d *Decoder) Decimal64() (Decimal64, error) {
	if err := d.require(9); err != nil {
		return Decimal64{}, err
	}
	m := int64(binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8]))
	e := int8(d.buf[d.pos+8])
	d.pos += 9
	if e > maxDecimalExponent || e < -maxDecimalExponent {
		return Decimal64{}, ErrMalformedComposite
	}
	return Decimal64{Mantissa: m, Exponent: e}, nil
}

// Float64 converts the decimal to a float64. Division (rather than
// multiplying by a negative power of ten) is used for negative
// exponents so that quotients with an exact binary representation,
// such as 23305/10 == 2330.5, round to that exact value.
func (dec Decimal64) Float64() float64 {
	if dec.Exponent >= 0 {
		return float64(dec.Mantissa) * pow10(dec.Exponent)
	}
	return float64(dec.Mantissa) / pow10(-dec.Exponent)
}

// OptionalDecimal64 holds an optional composite decimal field: Present
// is false when the wire mantissa equaled the schema's null sentinel.
type OptionalDecimal64 struct {
	Value   Decimal64
	Present bool
}

// Decimal64Optional reads a 9-byte composite decimal and compares its
// mantissa against null, the schema-declared sentinel for "absent"
// (e.g. 0x7FFFFFFFFFFFFFFF for an optional price). The exponent byte is
// still consumed off the wire when absent but is not validated, since a
// null field's exponent carries no meaning.
func (d *Decoder) Decimal64Optional(null int64) (OptionalDecimal64, error) {
	if err := d.require(9); err != nil {
		return OptionalDecimal64{}, err
	}
	m := int64(binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8]))
	if m == null {
		d.pos += 9
		return OptionalDecimal64{}, nil
	}
	dec, err := d.Decimal64()
	if err != nil {
		return OptionalDecimal64{}, err
	}
	return OptionalDecimal64{Value: dec, Present: true}, nil
}

func pow10(e int8) float64 {
	v := 1.0
	for i := int8(0); i < e; i++ {
		v *= 10
	}
	return v
}

// GroupHeader is the 4-byte header preceding a repeating group's
// entries: block_length and num_in_group, each a little-endian uint16.
type GroupHeader struct {
	BlockLength uint16
	NumInGroup  uint16
}

// GroupIterator walks the entries of one repeating group. Entries are
// windowed sub-Decoders over exactly BlockLength bytes each; a nested
// repeating group physically follows an entry's fixed block and is
// read by calling BeginGroup again on the iterator's parent Decoder
// before advancing to the next entry (iteration composes recursively).
type GroupIterator struct {
	dec       *Decoder
	remaining int
	entryLen  int
}

// BeginGroup reads a repeating group's 4-byte header and validates that
// block_length * num_in_group bytes remain before returning any
// entries: a group whose declared size exceeds the buffer fails
// atomically, with zero entries exposed to the caller.
func (d *Decoder) BeginGroup() (*GroupIterator, error) {
	if err := d.require(4); err != nil {
		return nil, err
	}
	bl := binary.LittleEndian.Uint16(d.buf[d.pos : d.pos+2])
	n := binary.LittleEndian.Uint16(d.buf[d.pos+2 : d.pos+4])
	d.pos += 4

	total := int(bl) * int(n)
	if err := d.require(total); err != nil {
		return nil, err
	}
	return &GroupIterator{dec: d, remaining: int(n), entryLen: int(bl)}, nil
}

// Remaining returns the number of entries not yet consumed by Next.
func (it *GroupIterator) Remaining() int { return it.remaining }

// Next returns the next entry as a Decoder windowed to exactly
// BlockLength bytes, or ok=false once every entry has been consumed.
func (it *GroupIterator) Next() (entry *Decoder, ok bool, err error) {
	if it.remaining == 0 {
		return nil, false, nil
	}
	if err := it.dec.require(it.entryLen); err != nil {
		return nil, false, err
	}
	start := it.dec.pos
	it.dec.pos += it.entryLen
	it.remaining--
	return &Decoder{buf: it.dec.buf[start : start+it.entryLen]}, true, nil
}
