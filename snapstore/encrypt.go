package snapstore

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"time"
)

var (
	encryptionMagic = []byte("ENC1")

	ErrEncryptionKey = errors.New("snapstore: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("snapstore: decrypt failed")
)

// encryptingStore seals values with AES-GCM. Layout: magic, nonce length, nonce, ciphertext.
type encryptingStore struct {
	inner Store
	aead  cipher.AEAD
}

func newEncryptingStore(inner Store, key []byte) (Store, error) {
	if len(key) == 0 {
		return inner, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &encryptingStore{inner: inner, aead: aead}, nil
}

func (s *encryptingStore) Driver() Driver {
	return s.inner.Driver()
}

func (s *encryptingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	plain, err := s.open(body)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (s *encryptingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed, ttl)
}

func (s *encryptingStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *encryptingStore) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}

func (s *encryptingStore) Close() error {
	return Close(s.inner)
}

func (s *encryptingStore) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(encryptionMagic)+1+len(nonce)+len(plain)+s.aead.Overhead())
	out = append(out, encryptionMagic...)
	out = append(out, byte(len(nonce)))
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plain, nil), nil
}

// open rejects anything that is not a sealed value; a snapshot store with a key set
// never holds plaintext.
func (s *encryptingStore) open(in []byte) ([]byte, error) {
	head := len(encryptionMagic) + 1
	if len(in) < head || !bytes.Equal(in[:len(encryptionMagic)], encryptionMagic) {
		return nil, ErrDecryptFailed
	}
	nonceLen := int(in[len(encryptionMagic)])
	if nonceLen != s.aead.NonceSize() || len(in) < head+nonceLen {
		return nil, ErrDecryptFailed
	}
	plain, err := s.aead.Open(nil, in[head:head+nonceLen], in[head+nonceLen:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
