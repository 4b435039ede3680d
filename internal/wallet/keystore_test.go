package wallet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatalf("NewKeystore() error: %v", err)
	}
	return ks
}

func testSeedBytes(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(vector12, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func TestKeystore_CreateAndLoad(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("test-password")

	if err := ks.Create("mywallet", seed, password, TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	loaded, err := ks.Load("mywallet", password)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !bytes.Equal(loaded, seed) {
		t.Error("loaded seed does not match original")
	}
}

func TestKeystore_CreateWithAccounts(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	sol, err := DeriveAccount(seed, ChainSolana, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	evm, err := DeriveAccount(seed, ChainEVM, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}

	bad := sol
	bad.Chain = "bitcoin"
	if err := ks.Create("w", seed, []byte("p"), TestKDFParams(), sol, bad); err == nil {
		t.Fatal("Create() with an unsupported chain should fail")
	}
	if _, err := os.Stat(ks.walletPath("w")); !os.IsNotExist(err) {
		t.Fatalf("failed Create() left a wallet file behind: %v", err)
	}
	if err := ks.Create("w", seed, []byte("p"), KDFParams{}, sol); err == nil {
		t.Fatal("Create() with zero kdf params should fail")
	}

	if err := ks.Create("w", seed, []byte("p"), TestKDFParams(), sol, evm); err != nil {
		t.Fatalf("Create() retry error: %v", err)
	}
	accts, err := ks.Accounts("w", "")
	if err != nil {
		t.Fatalf("Accounts() error: %v", err)
	}
	if len(accts) != 2 || accts[0].Address != sol.Address || accts[1].Address != evm.Address {
		t.Errorf("Accounts() = %+v", accts)
	}
	if n, _ := ks.NextIndex("w", ChainSolana); n != 1 {
		t.Errorf("NextIndex(solana) = %d, want 1", n)
	}
}

func TestKeystore_CreateDuplicate(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	if err := ks.Create("dup", seed, []byte("pass"), TestKDFParams()); err != nil {
		t.Fatalf("first Create() error: %v", err)
	}
	err := ks.Create("dup", seed, []byte("pass"), TestKDFParams())
	if !errors.Is(err, ErrWalletExists) {
		t.Errorf("second Create() error = %v, want ErrWalletExists", err)
	}
}

func TestKeystore_InvalidName(t *testing.T) {
	ks := testKeystore(t)
	for _, name := range []string{"", "../escape", "a b", "x.wallet"} {
		if err := ks.Create(name, testSeedBytes(t), []byte("p"), TestKDFParams()); err == nil {
			t.Errorf("Create(%q) should fail", name)
		}
	}
}

func TestKeystore_LoadWrongPassword(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("wallet", testSeedBytes(t), []byte("correct"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, err := ks.Load("wallet", []byte("wrong"))
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Load() error = %v, want ErrWrongPassword", err)
	}
}

func TestKeystore_LoadNonexistent(t *testing.T) {
	ks := testKeystore(t)
	_, err := ks.Load("doesnotexist", []byte("pass"))
	if !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Load() error = %v, want ErrWalletNotFound", err)
	}
}

func TestKeystore_List(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected 0 wallets, got %d", len(names))
	}

	for _, n := range []string{"beta", "alpha"} {
		if err := ks.Create(n, seed, []byte("p"), TestKDFParams()); err != nil {
			t.Fatalf("Create(%s) error: %v", n, err)
		}
	}

	names, err = ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List() = %v, want [alpha beta]", names)
	}
}

func TestKeystore_Delete(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("todelete", testSeedBytes(t), []byte("p"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := ks.Delete("todelete"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := ks.Load("todelete", []byte("p")); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Load() after Delete error = %v, want ErrWalletNotFound", err)
	}
	if err := ks.Delete("todelete"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("second Delete() error = %v, want ErrWalletNotFound", err)
	}
}

func TestKeystore_AddAccount(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	if err := ks.Create("wallet", seed, []byte("p"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	sol, err := DeriveAccount(seed, ChainSolana, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	sol.Name = "default"
	if err := ks.AddAccount("wallet", sol); err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}
	// Same path and address again is a no-op.
	if err := ks.AddAccount("wallet", sol); err != nil {
		t.Fatalf("AddAccount() repeat error: %v", err)
	}

	evm, err := DeriveAccount(seed, ChainEVM, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	if err := ks.AddAccount("wallet", evm); err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}

	all, err := ks.Accounts("wallet", "")
	if err != nil {
		t.Fatalf("Accounts() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(all))
	}
	solOnly, err := ks.Accounts("wallet", ChainSolana)
	if err != nil {
		t.Fatalf("Accounts() error: %v", err)
	}
	if len(solOnly) != 1 || solOnly[0].Name != "default" {
		t.Errorf("solana accounts = %+v", solOnly)
	}

	found, err := ks.FindAccount("wallet", evm.Address)
	if err != nil {
		t.Fatalf("FindAccount() error: %v", err)
	}
	if found.Chain != ChainEVM {
		t.Errorf("found chain = %s, want evm", found.Chain)
	}
	if _, err := ks.FindAccount("wallet", "nope"); err == nil {
		t.Error("FindAccount() for unknown address should fail")
	}
}

func TestKeystore_AddAccountConflictingPath(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("wallet", testSeedBytes(t), []byte("p"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	path := SolanaPath(0).String()
	if err := ks.AddAccount("wallet", AccountEntry{Chain: ChainSolana, Path: path, Address: "aa"}); err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}
	if err := ks.AddAccount("wallet", AccountEntry{Chain: ChainSolana, Path: path, Address: "bb"}); err == nil {
		t.Error("should reject a reused path with a different address")
	}
	if err := ks.AddAccount("wallet", AccountEntry{Chain: "btc", Path: path, Address: "cc"}); err == nil {
		t.Error("should reject an unsupported chain")
	}
}

func TestKeystore_NextIndex(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	if err := ks.Create("wallet", seed, []byte("p"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	idx, err := ks.NextIndex("wallet", ChainSolana)
	if err != nil {
		t.Fatalf("NextIndex() error: %v", err)
	}
	if idx != 0 {
		t.Errorf("initial NextIndex = %d, want 0", idx)
	}

	acct, err := DeriveAccount(seed, ChainSolana, 4)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	if err := ks.AddAccount("wallet", acct); err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}

	if idx, _ := ks.NextIndex("wallet", ChainSolana); idx != 5 {
		t.Errorf("NextIndex(solana) = %d, want 5", idx)
	}
	if idx, _ := ks.NextIndex("wallet", ChainEVM); idx != 0 {
		t.Errorf("NextIndex(evm) = %d, want 0 (independent of solana)", idx)
	}
}

func TestKeystore_FilePermissions(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("secure", testSeedBytes(t), []byte("p"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	info, err := os.Stat(filepath.Join(ks.path, "secure.wallet"))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("wallet file should be 0600, got %o", perm)
	}
}

func TestKeystore_ConcurrentAddAccount(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	if err := ks.Create("wallet", seed, []byte("p"), TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := uint32(0); i < 8; i++ {
		wg.Add(1)
		go func(i uint32) {
			defer wg.Done()
			acct, err := DeriveAccount(seed, ChainSolana, i)
			if err != nil {
				t.Errorf("DeriveAccount() error: %v", err)
				return
			}
			if err := ks.AddAccount("wallet", acct); err != nil {
				t.Errorf("AddAccount() error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	accts, err := ks.Accounts("wallet", ChainSolana)
	if err != nil {
		t.Fatalf("Accounts() error: %v", err)
	}
	if len(accts) != 8 {
		t.Errorf("expected 8 accounts, got %d", len(accts))
	}
}

func TestKeystore_FullFlow(t *testing.T) {
	ks := testKeystore(t)
	password := []byte("strong-password")

	mnemonic, err := GenerateMnemonic(24)
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	if err := ks.Create("main", seed, password, TestKDFParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	loaded, err := ks.Load("main", password)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	acct, err := DeriveAccount(loaded, ChainSolana, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	if err := ks.AddAccount("main", acct); err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}

	want, err := DeriveAccount(seed, ChainSolana, 0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	accounts, _ := ks.Accounts("main", ChainSolana)
	if len(accounts) != 1 || accounts[0].Address != want.Address {
		t.Error("account not persisted correctly")
	}
}
