package wallet

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
)

// EVMKey is a BIP-32 secp256k1 key used for EVM accounts. Unlike HDKey it
// follows standard BIP-32, including public-key mixing for non-hardened
// segments.
type EVMKey struct {
	key *bip32.Key
}

// DeriveSecp256k1Path derives the BIP-32 key for path from a BIP-39 seed.
func DeriveSecp256k1Path(path string, seed []byte) (*EVMKey, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	current := master
	for _, idx := range p {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
		current = child
	}
	return &EVMKey{key: current}, nil
}

// PrivateKeyBytes returns the raw 32-byte private key.
func (k *EVMKey) PrivateKeyBytes() []byte {
	// bip32 Key.Key may carry a leading 0x00 for private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *EVMKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// Address returns the EIP-55 checksummed EVM address.
func (k *EVMKey) Address() string {
	return EVMAddress(k.PrivateKeyBytes())
}

// EVMAddress computes the EIP-55 address for a raw secp256k1 private key.
func EVMAddress(priv []byte) string {
	pub := secp256k1.PrivKeyFromBytes(priv).PubKey().SerializeUncompressed()
	hash := crypto.Keccak256(pub[1:])
	return common.BytesToAddress(hash[12:]).Hex()
}
