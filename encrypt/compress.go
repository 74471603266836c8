package encrypt

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how chunk plaintext is compressed before encryption.
type Compression uint8

const (
	CompressNone Compression = iota
	CompressGzip
	CompressZstd
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressGzip:
		return "gzip"
	case CompressZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return CompressNone, nil
	case "gzip":
		return CompressGzip, nil
	case "zstd":
		return CompressZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
	}
}

// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and one
// decoder serve every worker.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxChunkSize))
)

// Compress returns a frame of one scheme byte followed by the compressed data.
func Compress(data []byte, scheme Compression) ([]byte, error) {
	switch scheme {
	case CompressNone:
		frame := make([]byte, 0, 1+len(data))
		frame = append(frame, byte(CompressNone))
		return append(frame, data...), nil
	case CompressGzip:
		var buf bytes.Buffer
		buf.WriteByte(byte(CompressGzip))
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressZstd:
		return zstdEncoder.EncodeAll(data, []byte{byte(CompressZstd)}), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, scheme)
	}
}

// Decompress reverses Compress. Output longer than limit bytes is rejected.
func Decompress(frame []byte, limit int) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrUnsupportedCompression)
	}
	body := frame[1:]
	var out []byte
	switch Compression(frame[0]) {
	case CompressNone:
		out = append([]byte(nil), body...)
	case CompressGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		out, err = io.ReadAll(io.LimitReader(r, int64(limit)+1))
		if err != nil {
			return nil, err
		}
	case CompressZstd:
		var err error
		out, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, frame[0])
	}
	if len(out) > limit {
		return nil, ErrDecompressedTooLarge
	}
	return out, nil
}
