// Package sbe implements the Simple Binary Encoding framer/filter (C2)
// and decoder (C6): message header, fixed-offset root block, composite
// decimals, null sentinels, and recursive repeating groups, all with
// bounds checks before every read.
package sbe

import "errors"

// ErrBufferUnderflow means a declared size exceeds the bytes remaining
// in the buffer. Decoding aborts immediately with no partial state
// exposed to the caller.
var ErrBufferUnderflow = errors.New("sbe: buffer underflow")

// ErrUnknownTemplate means no decoder is registered for a template id.
var ErrUnknownTemplate = errors.New("sbe: unknown template")

// ErrSchemaMismatch means the schema id/version pair is not one this
// registry knows how to decode.
var ErrSchemaMismatch = errors.New("sbe: schema mismatch")

// ErrMalformedComposite means a composite field's encoding is outside
// the range this decoder supports (e.g. an out-of-range decimal
// exponent).
var ErrMalformedComposite = errors.New("sbe: malformed composite")
