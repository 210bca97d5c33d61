package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Blob format: version(1) || nonce(24) || XChaCha20-Poly1305(zstd(plaintext)).
// Each namespace gets its own subkey derived from the master key with HKDF and the
// reference is bound as additional data, so a blob copied to another path fails to open.
//
// The master key lives only in process memory. Blobs written by one process cannot be
// read after a restart unless the same key is supplied to NewSealer.
const (
	blobVersion = 1
	headerSize  = 1 + chacha20poly1305.NonceSizeX
	subkeyInfo  = "securevault-blob-v1"
)

// Sealer compresses and encrypts blob contents.
type Sealer struct {
	masterKey [32]byte

	encoderPool sync.Pool
	decoderPool sync.Pool
}

// NewSealer creates a sealer for the given master key.
func NewSealer(masterKey [32]byte) *Sealer {
	s := &Sealer{masterKey: masterKey}
	s.encoderPool = sync.Pool{
		New: func() interface{} {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			return enc
		},
	}
	s.decoderPool = sync.Pool{
		New: func() interface{} {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}
	return s
}

// NewEphemeralSealer creates a sealer with a random process-lifetime key.
func NewEphemeralSealer() (*Sealer, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return NewSealer(key), nil
}

// Seal encrypts plaintext for storage under ref in namespace.
func (s *Sealer) Seal(namespace, ref string, plaintext []byte) ([]byte, error) {
	aead, err := s.aead(namespace)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	out[0] = blobVersion
	nonce := out[1:headerSize]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(out, nonce, s.compress(plaintext), []byte(ref)), nil
}

// Open reverses Seal. Any failure is reported as ErrCorruptBlob.
func (s *Sealer) Open(namespace, ref string, blob []byte) ([]byte, error) {
	if len(blob) < headerSize || blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptBlob)
	}
	aead, err := s.aead(namespace)
	if err != nil {
		return nil, err
	}

	compressed, err := aead.Open(nil, blob[1:headerSize], blob[headerSize:], []byte(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}
	data, err := s.decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}
	return data, nil
}

func (s *Sealer) aead(namespace string) (cipher.AEAD, error) {
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	var key [chacha20poly1305.KeySize]byte
	r := hkdf.New(sha256.New, s.masterKey[:], []byte(namespace), []byte(subkeyInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("derive subkey: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead, nil
}

func (s *Sealer) compress(data []byte) []byte {
	enc := s.encoderPool.Get().(*zstd.Encoder)
	defer s.encoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func (s *Sealer) decompress(data []byte) ([]byte, error) {
	dec := s.decoderPool.Get().(*zstd.Decoder)
	defer s.decoderPool.Put(dec)
	return dec.DecodeAll(data, nil)
}
