package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

const keystoreVersion = 2

var (
	// ErrWalletNotFound is returned when no wallet file exists for a name.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists is returned by Create when the name is taken.
	ErrWalletExists = errors.New("wallet already exists")

	walletNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version    int              `json:"version"`
	CreatedAt  time.Time        `json:"created_at"`
	SealedSeed []byte           `json:"sealed_seed"`
	Accounts   []AccountEntry   `json:"accounts"`
	NextIndex  map[Chain]uint32 `json:"next_index"`
}

// Keystore manages encrypted wallet files on disk. It is safe for
// concurrent use.
type Keystore struct {
	mu   sync.Mutex
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// ValidateWalletName rejects names that are not safe as file names.
func ValidateWalletName(name string) error {
	if !walletNameRe.MatchString(name) {
		return fmt.Errorf("wallet name %q must be 1-64 characters of [A-Za-z0-9_-]", name)
	}
	return nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create writes a new encrypted wallet holding seed, together with its
// initial accounts, in a single file write.
func (ks *Keystore) Create(name string, seed, password []byte, params KDFParams, accounts ...AccountEntry) error {
	if err := ValidateWalletName(name); err != nil {
		return err
	}

	kf := keystoreFile{
		Version:   keystoreVersion,
		CreatedAt: time.Now().UTC(),
		Accounts:  []AccountEntry{},
		NextIndex: map[Chain]uint32{},
	}
	for _, acct := range accounts {
		if err := kf.add(acct); err != nil {
			return err
		}
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	sealed, err := Seal(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	kf.SealedSeed = sealed
	return ks.writeFile(path, &kf)
}

// Load decrypts a wallet and returns the seed bytes. Callers must zero the
// returned slice when done.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	ks.mu.Lock()
	kf, err := ks.read(name)
	ks.mu.Unlock()
	if err != nil {
		return nil, err
	}
	seed, err := Open(kf.SealedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	return seed, nil
}

// AddAccount records a derived account in the wallet metadata. Adding the
// same path with the same address again is a no-op; reusing a path for a
// different address is an error. The chain's next index is advanced past
// the account's index.
func (ks *Keystore) AddAccount(name string, acct AccountEntry) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kf, err := ks.read(name)
	if err != nil {
		return err
	}
	if err := kf.add(acct); err != nil {
		return err
	}
	return ks.writeFile(ks.walletPath(name), kf)
}

// add records acct. Re-adding an identical entry is a no-op; a different
// address on a known path is an error.
func (kf *keystoreFile) add(acct AccountEntry) error {
	if !acct.Chain.Valid() {
		return fmt.Errorf("unsupported chain %q", acct.Chain)
	}
	for _, existing := range kf.Accounts {
		if existing.Chain == acct.Chain && existing.Path == acct.Path {
			if existing.Address == acct.Address {
				return nil
			}
			return fmt.Errorf("account path %s already exists with a different address", acct.Path)
		}
	}

	kf.Accounts = append(kf.Accounts, acct)
	if acct.Index >= kf.NextIndex[acct.Chain] {
		kf.NextIndex[acct.Chain] = acct.Index + 1
	}
	return nil
}

// Accounts returns the account entries for a wallet, optionally filtered
// by chain (empty chain returns all).
func (ks *Keystore) Accounts(name string, chain Chain) ([]AccountEntry, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	out := make([]AccountEntry, 0, len(kf.Accounts))
	for _, a := range kf.Accounts {
		if chain == "" || a.Chain == chain {
			out = append(out, a)
		}
	}
	return out, nil
}

// FindAccount returns the account with the given address.
func (ks *Keystore) FindAccount(name, address string) (AccountEntry, error) {
	accts, err := ks.Accounts(name, "")
	if err != nil {
		return AccountEntry{}, err
	}
	for _, a := range accts {
		if a.Address == address {
			return a, nil
		}
	}
	return AccountEntry{}, fmt.Errorf("address %s not found in wallet %q", address, name)
}

// NextIndex returns the next unused account index for chain.
func (ks *Keystore) NextIndex(name string, chain Chain) (uint32, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kf, err := ks.read(name)
	if err != nil {
		return 0, err
	}
	return kf.NextIndex[chain], nil
}

// List returns the sorted names of all wallets in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	if err := ValidateWalletName(name); err != nil {
		return err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()

	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func (ks *Keystore) read(name string) (*keystoreFile, error) {
	if err := ValidateWalletName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ks.walletPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	if kf.NextIndex == nil {
		kf.NextIndex = map[Chain]uint32{}
	}
	return &kf, nil
}

// writeFile writes atomically through a temp file in the same directory.
func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}
