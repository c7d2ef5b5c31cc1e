package snapstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"time"
)

// CompressionCodec selects how snapshot bytes are compressed at rest.
type CompressionCodec string

const (
	CompressionNone CompressionCodec = ""
	CompressionGzip CompressionCodec = "gzip"
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("snapstore: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("snapstore: unsupported compression codec")
	ErrCorruptCompression = errors.New("snapstore: corrupt compressed payload")
)

// shapingStore applies compression and size limits on top of any Store.
type shapingStore struct {
	inner Store
	codec CompressionCodec
	max   int
}

func newShapingStore(inner Store, codec CompressionCodec, max int) Store {
	if codec == CompressionNone && max <= 0 {
		return inner
	}
	return &shapingStore{inner: inner, codec: codec, max: max}
}

func (s *shapingStore) Driver() Driver {
	return s.inner.Driver()
}

func (s *shapingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	decoded, err := decodeValue(body)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *shapingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeValue(s.codec, s.max, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, encoded, ttl)
}

func (s *shapingStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *shapingStore) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}

func (s *shapingStore) Close() error {
	return Close(s.inner)
}

// encodeValue enforces max on the raw value and again on the compressed body.
func encodeValue(codec CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	switch codec {
	case CompressionNone:
		return value, nil
	case CompressionGzip:
		var buf bytes.Buffer
		buf.Write(compressMagic)
		buf.WriteByte('g')
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		if max > 0 && buf.Len() > max {
			return nil, ErrValueTooLarge
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrUnsupportedCodec
	}
}

// decodeValue passes through bodies written without compression.
func decodeValue(in []byte) ([]byte, error) {
	if len(in) <= len(compressMagic) || !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	if in[len(compressMagic)] != 'g' {
		return nil, ErrUnsupportedCodec
	}
	gr, err := gzip.NewReader(bytes.NewReader(in[len(compressMagic)+1:]))
	if err != nil {
		return nil, ErrCorruptCompression
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, ErrCorruptCompression
	}
	return out, nil
}
