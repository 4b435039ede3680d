package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// ed25519SeedKey is the SLIP-0010 domain separation key for ed25519.
var ed25519SeedKey = []byte("ed25519 seed")

// HDKey is an ed25519 SLIP-0010 extended private key.
//
// Every derivation step mixes 0x00 ‖ key ‖ index into the HMAC, whether or
// not the index carries HardenedOffset. Non-hardened indices are therefore
// accepted but produce keys no public-key derivation can reproduce.
type HDKey struct {
	key       [32]byte
	chainCode [32]byte
	depth     uint8
}

// NewMasterKey creates the master key from a seed of any length.
func NewMasterKey(seed []byte) *HDKey {
	mac := hmac.New(sha512.New, ed25519SeedKey)
	mac.Write(seed)
	return splitDigest(mac.Sum(nil), 0)
}

// DeriveChild derives the child at index. Add HardenedOffset for hardened
// derivation.
func (k *HDKey) DeriveChild(index uint32) *HDKey {
	var data [1 + 32 + 4]byte
	copy(data[1:33], k.key[:])
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data[:])
	zero(data[:])
	return splitDigest(mac.Sum(nil), k.depth+1)
}

// DerivePath derives a key along a parsed path.
func (k *HDKey) DerivePath(path Path) *HDKey {
	current := k
	for _, idx := range path {
		child := current.DeriveChild(idx)
		if current != k {
			current.Wipe()
		}
		current = child
	}
	return current
}

// DeriveEd25519Path derives the 32-byte private key seed for path from seed.
func DeriveEd25519Path(path string, seed []byte) ([32]byte, error) {
	p, err := ParsePath(path)
	if err != nil {
		return [32]byte{}, err
	}
	master := NewMasterKey(seed)
	child := master.DerivePath(p)
	out := child.key
	master.Wipe()
	child.Wipe()
	return out, nil
}

// Key returns the 32-byte private key material.
func (k *HDKey) Key() [32]byte {
	return k.key
}

// ChainCode returns the 32-byte chain code.
func (k *HDKey) ChainCode() [32]byte {
	return k.chainCode
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.depth
}

// PrivateKey expands the key into a 64-byte ed25519 private key.
func (k *HDKey) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(k.key[:])
}

// PublicKey returns the 32-byte ed25519 public key.
func (k *HDKey) PublicKey() ed25519.PublicKey {
	return k.PrivateKey().Public().(ed25519.PublicKey)
}

// Address returns the Solana address: the base58-encoded public key.
func (k *HDKey) Address() string {
	return base58.Encode(k.PublicKey())
}

// Sign signs msg with the derived ed25519 key.
func (k *HDKey) Sign(msg []byte) []byte {
	priv := k.PrivateKey()
	sig := ed25519.Sign(priv, msg)
	zero(priv)
	return sig
}

// Wipe zeroes the key material.
func (k *HDKey) Wipe() {
	zero(k.key[:])
	zero(k.chainCode[:])
}

// ParseSolanaAddress decodes a base58 Solana address into a public key.
func ParseSolanaAddress(addr string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("address must decode to %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func splitDigest(sum []byte, depth uint8) *HDKey {
	k := &HDKey{depth: depth}
	copy(k.key[:], sum[:32])
	copy(k.chainCode[:], sum[32:])
	zero(sum)
	return k
}
