package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed seed layout:
//
//	version(1) | salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
const (
	sealVersion = 1
	SaltSize    = 32
	headerSize  = 1 + SaltSize + 4 + 4 + 1
)

// Bounds on Argon2id parameters, also applied to headers read from disk.
const (
	MaxKDFMemory     = 4 * 1024 * 1024 // KiB (4 GiB)
	MaxKDFIterations = 64
)

var (
	// ErrWrongPassword is returned when a sealed seed fails authentication.
	ErrWrongPassword = errors.New("wrong password or corrupted keystore")

	// ErrInvalidKDFParams is returned for Argon2id parameters out of bounds.
	ErrInvalidKDFParams = errors.New("invalid kdf parameters")
)

// KDFParams holds Argon2id parameters.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the Argon2id parameters used for new wallets.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// TestKDFParams returns cheap parameters for tests.
func TestKDFParams() KDFParams {
	return KDFParams{Memory: 1024, Iterations: 1, Parallelism: 1}
}

// Validate checks p against the bounds argon2 itself panics on and against
// allocations no wallet file should ask for.
func (p KDFParams) Validate() error {
	switch {
	case p.Parallelism == 0:
		return fmt.Errorf("%w: parallelism is 0", ErrInvalidKDFParams)
	case p.Iterations == 0 || p.Iterations > MaxKDFIterations:
		return fmt.Errorf("%w: iterations %d not in 1..%d", ErrInvalidKDFParams, p.Iterations, MaxKDFIterations)
	case p.Memory < 8*uint32(p.Parallelism) || p.Memory > MaxKDFMemory:
		return fmt.Errorf("%w: memory %d KiB not in %d..%d", ErrInvalidKDFParams, p.Memory, 8*uint32(p.Parallelism), MaxKDFMemory)
	}
	return nil
}

func (p KDFParams) key(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// Seal encrypts plaintext under password with Argon2id + XChaCha20-Poly1305.
// The header is bound to the ciphertext as associated data.
func Seal(plaintext, password []byte, params KDFParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	header := make([]byte, headerSize, headerSize+chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	header[0] = sealVersion
	salt := header[1 : 1+SaltSize]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	binary.LittleEndian.PutUint32(header[1+SaltSize:], params.Memory)
	binary.LittleEndian.PutUint32(header[1+SaltSize+4:], params.Iterations)
	header[headerSize-1] = params.Parallelism

	key := params.key(password, salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := append(header, nonce...)
	return aead.Seal(out, nonce, plaintext, header), nil
}

// Open decrypts data produced by Seal.
func Open(sealed, password []byte) ([]byte, error) {
	minSize := headerSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("sealed data too short: %d bytes, need at least %d", len(sealed), minSize)
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported seal version %d", sealed[0])
	}

	header := sealed[:headerSize]
	params := KDFParams{
		Memory:      binary.LittleEndian.Uint32(header[1+SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[1+SaltSize+4:]),
		Parallelism: header[headerSize-1],
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("sealed header: %w", err)
	}
	nonce := sealed[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[headerSize+chacha20poly1305.NonceSizeX:]

	key := params.key(password, header[1:1+SaltSize])
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// zero overwrites b with zeros.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
