package compress

import (
	"bytes"
	"fmt"
	"io"
)

// Compress encodes cache payloads.
type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// New returns the codec registered under name.
func New(name string) (Compress, error) {
	switch name {
	case "", "nop", "none":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %s", name)
	}
}

// stream adapts a streaming compressor to Compress.
type stream struct {
	writer func(w io.Writer) (io.WriteCloser, error)
	reader func(r io.Reader) (io.Reader, error)
}

func (s stream) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := s.writer(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (s stream) Decode(data []byte) ([]byte, error) {
	r, err := s.reader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return io.ReadAll(r)
}
