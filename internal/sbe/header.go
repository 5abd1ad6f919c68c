package sbe

import "encoding/binary"

// HeaderSize is the fixed 8-byte SBE message header: block_length,
// template_id, schema_id, and version, each a little-endian uint16.
const HeaderSize = 8

// MessageHeader is the decoded fixed header that precedes every SBE
// message on the wire.
type MessageHeader struct {
	BlockLength uint16
	TemplateID  uint16
	SchemaID    uint16
	Version     uint16
}

// DecodeHeader reads the 8-byte header from the front of buf. It
// returns ErrBufferUnderflow if fewer than HeaderSize bytes are
// available.
func DecodeHeader(buf []byte) (MessageHeader, error) {
	if len(buf) < HeaderSize {
		return MessageHeader{}, ErrBufferUnderflow
	}
	return MessageHeader{
		BlockLength: binary.LittleEndian.Uint16(buf[0:2]),
		TemplateID:  binary.LittleEndian.Uint16(buf[2:4]),
		SchemaID:    binary.LittleEndian.Uint16(buf[4:6]),
		Version:     binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}
