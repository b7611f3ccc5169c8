package columnar

import (
	"bytes"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/cuemby/wal-cas/internal/errs"
)

// Codec is a compression codec identifier.
type Codec string

const (
	CodecNone Codec = "none"
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

// compress encodes data with the named codec. An unknown codec is an
// error rather than a silent fallback.
func compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case "", CodecNone:
		return data, nil
	case CodecGzip:
		var buf bytes.Buffer
		w := kgzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		if err := w.Close(); err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown compression codec %q", codec)
	}
}

// decompress reverses compress.
func decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case "", CodecNone:
		return data, nil
	case CodecGzip:
		r, err := kgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		return out, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		return out, nil
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown compression codec %q", codec)
	}
}
