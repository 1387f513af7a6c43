// Package snapshot implements the versioned, checksummed, atomically
// written binary container that durably persists a ChainedTable,
// RobinHoodTable, or AdaptiveMap, plus the post-load invariant verifier
// with safe repair.
package snapshot

import (
	"encoding/binary"

	"github.com/adhash-engine/adhash/internal/errs"
)

// Magic identifies an adhash snapshot file. It never changes across
// versions; Version distinguishes layout revisions instead.
const Magic = "ADHSNAP1"

// Version is the only header version this codec writes or accepts.
const Version uint16 = 1

// ChecksumLength is the BLAKE2b-256 digest size in bytes.
const ChecksumLength = 32

// FlagGzip marks the payload as gzip-compressed.
const FlagGzip uint8 = 1 << 0

// HeaderLength is the fixed byte length preceding the checksum:
// 8 (magic) + 2 (version) + 1 (flags) + 1 (reserved) + 2 (checksum_length)
// + 8 (payload_length).
const HeaderLength = 8 + 2 + 1 + 1 + 2 + 8

// Header is the fixed-layout prefix of a snapshot file.
type Header struct {
	Version        uint16
	Flags          uint8
	ChecksumLength uint16
	PayloadLength  uint64
}

// Gzip reports whether FlagGzip is set.
func (h Header) Gzip() bool { return h.Flags&FlagGzip != 0 }

// encodeHeader renders h into the fixed-width big-endian wire layout,
// magic first.
func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLength)
	copy(buf[0:8], Magic)
	binary.BigEndian.PutUint16(buf[8:10], h.Version)
	buf[10] = h.Flags
	buf[11] = 0 // reserved
	binary.BigEndian.PutUint16(buf[12:14], h.ChecksumLength)
	binary.BigEndian.PutUint64(buf[14:22], h.PayloadLength)

	return buf
}

// decodeHeader validates magic, version, and declared checksum length
// before returning the parsed Header. maxPayloadBytes <= 0 disables the
// payload-size ceiling check.
func decodeHeader(buf []byte, maxPayloadBytes int64) (Header, error) {
	if len(buf) < HeaderLength {
		return Header{}, errs.New(errs.KindInvariantViolation, "snapshot header truncated")
	}

	if string(buf[0:8]) != Magic {
		return Header{}, errs.New(errs.KindInvariantViolation, "snapshot magic mismatch, not an adhash snapshot")
	}

	h := Header{
		Version:        binary.BigEndian.Uint16(buf[8:10]),
		Flags:          buf[10],
		ChecksumLength: binary.BigEndian.Uint16(buf[12:14]),
		PayloadLength:  binary.BigEndian.Uint64(buf[14:22]),
	}

	if h.Version != Version {
		return Header{}, errs.New(errs.KindInvariantViolation, "unsupported snapshot version")
	}

	if h.Flags&^FlagGzip != 0 {
		return Header{}, errs.New(errs.KindInvariantViolation, "unknown snapshot flag bits set")
	}

	if h.ChecksumLength != ChecksumLength {
		return Header{}, errs.New(errs.KindInvariantViolation, "unsupported snapshot checksum length")
	}

	if maxPayloadBytes > 0 && h.PayloadLength > uint64(maxPayloadBytes) {
		return Header{}, errs.New(errs.KindPolicyViolation, "snapshot payload exceeds configured max_payload_bytes")
	}

	return h, nil
}
