// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm applied to a
// stored payload. The tag is persisted in each row's codec column —
// changing these values breaks existing databases.
type CompressionTag uint8

const (
	// CompressionNone stores the payload raw. Selected automatically
	// when compression does not shrink the payload, which is the
	// normal case for records under a hundred bytes or so.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: modest ratios at very
	// low CPU cost. A reasonable choice for stores written on a hot
	// path.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. Payloads are
	// JSON text, which zstd compresses well. This is the default.
	CompressionZstd CompressionTag = 2
)

// String returns the name used in configuration files.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression name from configuration.
// The empty string selects the default (zstd).
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "":
		return CompressionZstd, nil
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// maxPayloadSize caps the decompressed size a blob frame may declare.
// Payloads are JSON renderings of task fields and run results;
// anything near this limit means a corrupt or hostile database file,
// not a real record.
const maxPayloadSize = 256 << 20

// packBlob frames a payload for storage: a uvarint of the raw length
// followed by the (possibly compressed) body. When the preferred
// algorithm does not shrink the payload the frame falls back to
// CompressionNone, so callers must persist the returned tag rather
// than the one they asked for.
func packBlob(payload []byte, preferred CompressionTag) ([]byte, CompressionTag, error) {
	tag := preferred
	body, err := compressPayload(payload, preferred)
	if err != nil {
		if err != errIncompressible {
			return nil, 0, err
		}
		tag = CompressionNone
		body = payload
	}

	frame := make([]byte, 0, binary.MaxVarintLen64+len(body))
	frame = binary.AppendUvarint(frame, uint64(len(payload)))
	frame = append(frame, body...)
	return frame, tag, nil
}

// unpackBlob reverses packBlob, verifying that the decompressed size
// matches the declared length exactly.
func unpackBlob(frame []byte, tag CompressionTag) ([]byte, error) {
	rawSize, prefixLen := binary.Uvarint(frame)
	if prefixLen <= 0 {
		return nil, fmt.Errorf("blob frame is missing its length prefix")
	}
	if rawSize > maxPayloadSize {
		return nil, fmt.Errorf("blob frame declares %d bytes, limit is %d", rawSize, maxPayloadSize)
	}
	return decompressPayload(frame[prefixLen:], tag, int(rawSize))
}

func compressPayload(payload []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return payload, nil

	case CompressionLZ4:
		return compressLZ4(payload)

	case CompressionZstd:
		return compressZstd(payload)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func decompressPayload(compressed []byte, tag CompressionTag, rawSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != rawSize {
			return nil, fmt.Errorf("raw payload: size %d does not match declared %d", len(compressed), rawSize)
		}
		return compressed, nil

	case CompressionLZ4:
		return decompressLZ4(compressed, rawSize)

	case CompressionZstd:
		return decompressZstd(compressed, rawSize)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// LZ4 compression: block-mode LZ4.

func compressLZ4(payload []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(payload))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(payload, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the input is
	// incompressible. Output at least as large as the input is not
	// worth storing either.
	if written == 0 || written >= len(payload) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, rawSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
	}
	return destination, nil
}

// Zstd compression: the default level, good ratio on JSON without
// excessive CPU.

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(payload []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(payload, nil)
	if len(compressed) >= len(payload) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, 0, rawSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
	}
	return result, nil
}

// errIncompressible is returned by compression functions when the
// compressed output is not smaller than the input. packBlob reacts by
// storing the payload raw.
var errIncompressible = fmt.Errorf("data is incompressible")
