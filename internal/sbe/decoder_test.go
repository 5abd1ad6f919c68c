package sbe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_FixedFields(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	d := NewDecoder(buf)

	v16, err := d.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v16)

	v32, err := d.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08070605), v32)

	assert.Equal(t, 0, d.Remaining())
}

func TestDecoder_Decimal64_PreservesExactFraction(t *testing.T) {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(23305))
	buf[8] = byte(int8(-1))

	d := NewDecoder(buf)
	dec, err := d.Decimal64()
	require.NoError(t, err)
	assert.Equal(t, Decimal64{Mantissa: 23305, Exponent: -1}, dec)
	assert.Equal(t, 2330.5, dec.Float64())
}

func TestDecoder_Decimal64_RejectsOutOfRangeExponent(t *testing.T) {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(1))
	buf[8] = byte(int8(-100))

	d := NewDecoder(buf)
	_, err := d.Decimal64()
	assert.ErrorIs(t, err, ErrMalformedComposite)
}

func TestDecoder_Int64Optional_NullSentinel(t *testing.T) {
	const null = int64(1<<63 - 1) // INT64_MAX
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(null))

	d := NewDecoder(buf)
	v, err := d.Int64Optional(null)
	require.NoError(t, err)
	assert.False(t, v.Present)
}

func TestDecoder_Int64Optional_PresentValue(t *testing.T) {
	const null = int64(1<<63 - 1)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(42))

	d := NewDecoder(buf)
	v, err := d.Int64Optional(null)
	require.NoError(t, err)
	assert.True(t, v.Present)
	assert.Equal(t, int64(42), v.Value)
}

// TestDecoder_Scenario_S11OptionalPriceNullSentinel pins the spec's
// literal null-price byte pattern: mantissa 0x7FFFFFFFFFFFFFFF (little
// endian FF FF FF FF FF FF FF 7F) decodes to Present == false regardless
// of the trailing exponent byte.
func TestDecoder_Scenario_S11OptionalPriceNullSentinel(t *testing.T) {
	const null = int64(1<<63 - 1) // 0x7FFFFFFFFFFFFFFF
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F, 0x00}

	d := NewDecoder(buf)
	v, err := d.Decimal64Optional(null)
	require.NoError(t, err)
	assert.False(t, v.Present)
	assert.Equal(t, 0, d.Remaining())
}

func TestDecoder_Decimal64Optional_PresentValue(t *testing.T) {
	const null = int64(1<<63 - 1)
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(23305))
	buf[8] = byte(int8(-1))

	d := NewDecoder(buf)
	v, err := d.Decimal64Optional(null)
	require.NoError(t, err)
	assert.True(t, v.Present)
	assert.Equal(t, Decimal64{Mantissa: 23305, Exponent: -1}, v.Value)
}

func TestDecoder_RootBlock_AdvancesParentCursor(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	d := NewDecoder(buf)

	root, err := d.RootBlock(4)
	require.NoError(t, err)
	assert.Equal(t, 4, root.Remaining())
	assert.Equal(t, 4, d.Remaining())
}

// buildGroup encodes a repeating group header (blockLength, numInGroup)
// followed by entries, each entries[i] padded/truncated to blockLength.
func buildGroup(blockLength, numInGroup uint16, entries [][]byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], blockLength)
	binary.LittleEndian.PutUint16(buf[2:4], numInGroup)
	for _, e := range entries {
		buf = append(buf, e...)
	}
	return buf
}

func TestDecoder_RepeatingGroup_DecodesEachEntry(t *testing.T) {
	entry1 := make([]byte, 8)
	binary.LittleEndian.PutUint32(entry1[0:4], 100)
	binary.LittleEndian.PutUint32(entry1[4:8], 5)

	entry2 := make([]byte, 8)
	binary.LittleEndian.PutUint32(entry2[0:4], 101)
	binary.LittleEndian.PutUint32(entry2[4:8], 7)

	buf := buildGroup(8, 2, [][]byte{entry1, entry2})
	d := NewDecoder(buf)

	it, err := d.BeginGroup()
	require.NoError(t, err)
	assert.Equal(t, 2, it.Remaining())

	var prices, qtys []uint32
	for {
		e, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		p, err := e.Uint32()
		require.NoError(t, err)
		q, err := e.Uint32()
		require.NoError(t, err)
		prices = append(prices, p)
		qtys = append(qtys, q)
	}

	assert.Equal(t, []uint32{100, 101}, prices)
	assert.Equal(t, []uint32{5, 7}, qtys)
	assert.Equal(t, 0, d.Remaining())
}

// TestDecoder_Scenario_S10RepeatingGroupDecode pins the spec's literal
// group header bytes (block_length=32, num_in_group=2) and checks the
// total advance of 4 + 32*2 = 68 bytes.
func TestDecoder_Scenario_S10RepeatingGroupDecode(t *testing.T) {
	entry := func(mdEntryType byte) []byte {
		e := make([]byte, 32)
		e[0] = mdEntryType
		return e
	}
	buf := buildGroup(32, 2, [][]byte{entry(0), entry(1)})
	require.Equal(t, []byte{0x20, 0x00, 0x02, 0x00}, buf[0:4])
	require.Equal(t, 68, len(buf))

	d := NewDecoder(buf)
	it, err := d.BeginGroup()
	require.NoError(t, err)

	e1, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	t1, err := e1.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), t1, "MDEntryType 0 is Bid")

	e2, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	t2, err := e2.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), t2, "MDEntryType 1 is Ask")

	assert.Equal(t, 68, d.pos)
}

func TestDecoder_RepeatingGroup_DeclaredSizeExceedsBuffer(t *testing.T) {
	// block_length=100, num_in_group=50 declares 5000 bytes; only 200
	// bytes of entry data actually follow the group header.
	buf := make([]byte, 4+200)
	binary.LittleEndian.PutUint16(buf[0:2], 100)
	binary.LittleEndian.PutUint16(buf[2:4], 50)

	d := NewDecoder(buf)
	it, err := d.BeginGroup()
	assert.ErrorIs(t, err, ErrBufferUnderflow)
	assert.Nil(t, it)
}

func TestDecoder_NestedGroup_ComposesViaParentCursor(t *testing.T) {
	// Outer group: 1 entry with a 4-byte fixed field, followed
	// immediately (on the shared parent cursor) by a nested group of 2
	// one-byte entries.
	nested := buildGroup(1, 2, [][]byte{{0xAA}, {0xBB}})

	outerEntry := make([]byte, 4)
	binary.LittleEndian.PutUint32(outerEntry, 7)

	buf := buildGroup(4, 1, [][]byte{outerEntry})
	buf = append(buf, nested...)

	d := NewDecoder(buf)
	outer, err := d.BeginGroup()
	require.NoError(t, err)

	e, ok, err := outer.Next()
	require.NoError(t, err)
	require.True(t, ok)
	v, err := e.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	inner, err := d.BeginGroup()
	require.NoError(t, err)
	var got []byte
	for {
		ie, ok, err := inner.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		b, err := ie.Uint8()
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, []byte{0xAA, 0xBB}, got)
}
