package compress

import (
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
)

// Nop stores payloads as they are.
type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) Encode(data []byte) ([]byte, error) {
	return data, nil
}

func (Nop) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// NewGZip favors speed; rollups are small and rewritten every TTL.
func NewGZip() Compress {
	return stream{
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.BestSpeed)
		},
		reader: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		},
	}
}

func NewBrotli() Compress {
	return stream{
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
		},
		reader: func(r io.Reader) (io.Reader, error) {
			return brotli.NewReader(r), nil
		},
	}
}

func NewLZ4() Compress {
	return stream{
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return lz4.NewWriter(w), nil
		},
		reader: func(r io.Reader) (io.Reader, error) {
			return lz4.NewReader(r), nil
		},
	}
}
