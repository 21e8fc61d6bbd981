// Package impex exports and imports the document store as JSON Lines,
// one wire-format document per line, optionally compressed.
package impex

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Codec selects the stream compression of an export
type Codec int

const (
	// CodecNone writes plain JSONL
	CodecNone Codec = iota
	// CodecGzip wraps the stream in gzip
	CodecGzip
	// CodecZstd wraps the stream in zstandard, the default for snapshots
	CodecZstd
)

// String returns the codec name used in filenames and query parameters
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCodec resolves a codec name; the empty string means none
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "gzip":
		return CodecGzip, nil
	case "zstd":
		return CodecZstd, nil
	}
	return CodecNone, fmt.Errorf("unknown codec %q", name)
}

// wrapWriter layers the codec onto w. The returned closer flushes the
// compressor and must be closed before the underlying writer.
func (c Codec) wrapWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecZstd:
		return zstd.NewWriter(w)
	}
	return nil, fmt.Errorf("unknown codec %d", c)
}

// wrapReader layers the codec onto r
func (c Codec) wrapReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip stream: %w", err)
		}
		return zr, nil
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("unknown codec %d", c)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
