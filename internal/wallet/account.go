package wallet

import "fmt"

// Chain identifies the key scheme of an account.
type Chain string

const (
	ChainSolana Chain = "solana"
	ChainEVM    Chain = "evm"
)

// Valid reports whether c is a supported chain.
func (c Chain) Valid() bool {
	return c == ChainSolana || c == ChainEVM
}

// AccountEntry stores metadata for a derived account. It never holds key
// material.
type AccountEntry struct {
	Chain   Chain  `json:"chain"`
	Path    string `json:"path"`
	Index   uint32 `json:"index"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// DeriveAccount derives the account at index for chain from a BIP-39 seed.
func DeriveAccount(seed []byte, chain Chain, index uint32) (AccountEntry, error) {
	switch chain {
	case ChainSolana:
		path := SolanaPath(index)
		master := NewMasterKey(seed)
		defer master.Wipe()
		key := master.DerivePath(path)
		defer key.Wipe()
		return AccountEntry{
			Chain:   chain,
			Path:    path.String(),
			Index:   index,
			Address: key.Address(),
		}, nil
	case ChainEVM:
		path := EVMPath(index)
		key, err := DeriveSecp256k1Path(path.String(), seed)
		if err != nil {
			return AccountEntry{}, err
		}
		return AccountEntry{
			Chain:   chain,
			Path:    path.String(),
			Index:   index,
			Address: key.Address(),
		}, nil
	default:
		return AccountEntry{}, fmt.Errorf("unsupported chain %q", chain)
	}
}
