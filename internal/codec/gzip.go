package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/voxrow/voxrow/pkg/pipeline"
)

// CompressGzip compresses v at the maximum compression level. Byte slices and
// strings are compressed as is; any other value is compressed in its
// fmt.Sprint form.
func CompressGzip(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		raw = []byte(fmt.Sprint(v))
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, &pipeline.CodecError{Op: "gzip", Err: err}
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, &pipeline.CodecError{Op: "gzip", Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &pipeline.CodecError{Op: "gzip", Err: err}
	}
	return buf.Bytes(), nil
}

// DecompressGzip reverses CompressGzip.
func DecompressGzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &pipeline.CodecError{Op: "gunzip", Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &pipeline.CodecError{Op: "gunzip", Err: err}
	}
	return out, nil
}

// IsGzip reports whether b starts with the gzip magic number.
func IsGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}
