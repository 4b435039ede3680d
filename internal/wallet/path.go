package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HardenedOffset is added to a path index to mark it hardened.
const HardenedOffset uint32 = 0x80000000

// BIP-44 constants used by the wallet.
const (
	PurposeBIP44    = 44
	CoinTypeSolana  = 501
	CoinTypeEther   = 60
	ChangeExternal  = 0
	maxPathSegments = 255
)

var (
	// ErrInvalidDerivationPath is the parent of every path parsing failure.
	ErrInvalidDerivationPath = errors.New("invalid derivation path")

	// ErrInvalidPathSegment is returned for a malformed path segment.
	ErrInvalidPathSegment = fmt.Errorf("%w: invalid path segment", ErrInvalidDerivationPath)
)

// Path is a parsed derivation path. Each element is the final child index,
// with HardenedOffset already applied to hardened segments.
type Path []uint32

// ParsePath parses a path of the form m/44'/501'/0'/0'. The leading "m" is
// required; every following segment is a decimal index below 2^31,
// optionally suffixed with ' for hardened derivation.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if parts[0] != "m" {
		return nil, fmt.Errorf("%w: path %q must start with \"m\"", ErrInvalidDerivationPath, s)
	}
	if len(parts)-1 > maxPathSegments {
		return nil, fmt.Errorf("%w: path has %d segments, max %d", ErrInvalidDerivationPath, len(parts)-1, maxPathSegments)
	}

	path := make(Path, 0, len(parts)-1)
	for i, seg := range parts[1:] {
		hardened := strings.HasSuffix(seg, "'")
		digits := strings.TrimSuffix(seg, "'")
		if digits == "" || strings.IndexFunc(digits, notDigit) >= 0 {
			return nil, fmt.Errorf("%w: segment %d %q", ErrInvalidPathSegment, i+1, seg)
		}
		n, err := strconv.ParseUint(digits, 10, 32)
		if err != nil || uint32(n) >= HardenedOffset {
			return nil, fmt.Errorf("%w: segment %d %q out of range", ErrInvalidPathSegment, i+1, seg)
		}
		idx := uint32(n)
		if hardened {
			idx += HardenedOffset
		}
		path = append(path, idx)
	}
	return path, nil
}

// MustParsePath is like ParsePath but panics on error. Intended for
// package-level constants.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String formats the path back into m/... notation.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		b.WriteByte('/')
		if idx >= HardenedOffset {
			b.WriteString(strconv.FormatUint(uint64(idx-HardenedOffset), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(idx), 10))
		}
	}
	return b.String()
}

// SolanaPath returns the Phantom/Solflare style path m/44'/501'/account'/0'.
func SolanaPath(account uint32) Path {
	return Path{
		HardenedOffset + PurposeBIP44,
		HardenedOffset + CoinTypeSolana,
		HardenedOffset + account,
		HardenedOffset + ChangeExternal,
	}
}

// EVMPath returns the MetaMask style path m/44'/60'/0'/0/index.
func EVMPath(index uint32) Path {
	return Path{
		HardenedOffset + PurposeBIP44,
		HardenedOffset + CoinTypeEther,
		HardenedOffset,
		ChangeExternal,
		index,
	}
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}
