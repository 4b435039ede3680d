// Package wallet implements non-custodial HD wallet functionality: BIP-39
// mnemonics, SLIP-0010 ed25519 derivation for Solana accounts, BIP-32
// secp256k1 derivation for EVM accounts and the encrypted keystore.
package wallet

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tyler-smith/go-bip39"
)

// Mnemonic entropy sizes.
const (
	Entropy12Words = 128
	Entropy24Words = 256
)

var (
	// ErrInvalidMnemonic is the parent of every mnemonic validation failure.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrInvalidWordCount is returned when a phrase is not 12 or 24 words.
	ErrInvalidWordCount = fmt.Errorf("%w: word count must be 12 or 24", ErrInvalidMnemonic)

	// ErrChecksumFailure is returned when a word is not in the wordlist or
	// the embedded checksum does not match.
	ErrChecksumFailure = fmt.Errorf("%w: checksum or wordlist validation failed", ErrInvalidMnemonic)
)

var apostrophes = strings.NewReplacer("‘", "'", "’", "'")

// NormalizeMnemonicInput turns raw user input into a canonical phrase:
// lowercase words separated by single spaces. Any run of non-letter
// characters acts as a separator.
func NormalizeMnemonicInput(input string) string {
	s := apostrophes.Replace(input)
	s = strings.TrimSpace(strings.ToLower(s))
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return strings.Join(words, " ")
}

// AssertValidMnemonic normalizes input and checks it is a 12 or 24 word
// BIP-39 phrase with a valid checksum. It returns the normalized phrase.
func AssertValidMnemonic(input string) (string, error) {
	phrase := NormalizeMnemonicInput(input)

	n := 0
	if phrase != "" {
		n = strings.Count(phrase, " ") + 1
	}
	if n != 12 && n != 24 {
		return "", fmt.Errorf("%w (got %d)", ErrInvalidWordCount, n)
	}

	if _, err := bip39.MnemonicToByteArray(phrase); err != nil {
		if errors.Is(err, bip39.ErrChecksumIncorrect) {
			return "", ErrChecksumFailure
		}
		return "", fmt.Errorf("%w: %v", ErrChecksumFailure, err)
	}
	return phrase, nil
}

// ValidateMnemonic reports whether input is a valid 12 or 24 word phrase
// after normalization.
func ValidateMnemonic(input string) bool {
	_, err := AssertValidMnemonic(input)
	return err == nil
}

// GenerateMnemonic creates a new BIP-39 mnemonic with the given word count
// (12 or 24).
func GenerateMnemonic(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = Entropy12Words
	case 24:
		bits = Entropy24Words
	default:
		return "", fmt.Errorf("%w (got %d)", ErrInvalidWordCount, words)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	zero(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}
