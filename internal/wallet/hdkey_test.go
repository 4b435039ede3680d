package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode hex %q: %v", s, err)
	}
	return b
}

// SLIP-0010 ed25519 test vectors.
func TestDeriveEd25519Path_SLIP10Vectors(t *testing.T) {
	const seed1 = "000102030405060708090a0b0c0d0e0f"
	const seed2 = "fffcf9f6f3f0edeae7e4e1dedbd8d5d2cfccc9c6c3c0bdbab7b4b1aeaba8a5a29f9c999693908d8a8784817e7b7875726f6c696663605d5a5754514e4b484542"

	tests := []struct {
		seed string
		path string
		key  string
	}{
		{seed1, "m", "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7"},
		{seed1, "m/0'", "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3"},
		{seed1, "m/0'/1'", "b1d0bad404bf35da785a64ca1ac54b2617211d2777696fbffaf208f746ae84f2"},
		{seed1, "m/0'/1'/2'", "92a5b23c0b8a99e37d07df3fb9966917f5d06e02ddbd909c7e184371463e9fc9"},
		{seed1, "m/0'/1'/2'/2'", "30d1dc7e5fc04c31219ab25a27ae00b50f6fd66622f6e9c913253d6511d1e662"},
		{seed1, "m/0'/1'/2'/2'/1000000000'", "8f94d394a8e8fd6b1bc2f3f49f5c47e385281d5c17e65324b0f62483e37e8793"},
		{seed2, "m", "171cb88b1b3c1db25add599712e36245d75bc65a1a5c9e18d76f9f2b1eab4012"},
		{seed2, "m/0'", "1559eb2bbec5790b0c65d8693e4d0875b1747f4970ae8b650486ed7470845635"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DeriveEd25519Path(tt.path, mustHex(t, tt.seed))
			if err != nil {
				t.Fatalf("DeriveEd25519Path() error: %v", err)
			}
			if hex.EncodeToString(got[:]) != tt.key {
				t.Errorf("key = %x, want %s", got, tt.key)
			}
		})
	}
}

func TestNewMasterKey_ChainCode(t *testing.T) {
	master := NewMasterKey(mustHex(t, "000102030405060708090a0b0c0d0e0f"))
	cc := master.ChainCode()
	if want := "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb"; hex.EncodeToString(cc[:]) != want {
		t.Errorf("chain code = %x, want %s", cc, want)
	}
	if master.Depth() != 0 {
		t.Errorf("master depth = %d, want 0", master.Depth())
	}
	pub := master.PublicKey()
	if want := "a4b2856bfec510abab89753fac1ac0e1112364e7d250545963f135f2a33188ed"; hex.EncodeToString(pub) != want {
		t.Errorf("public key = %x, want %s", pub, want)
	}
}

func TestDeriveEd25519Path_Deterministic(t *testing.T) {
	seed, err := SeedFromMnemonic(vector12, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}

	k1, err := DeriveEd25519Path("m/44'/501'/0'/0'", seed)
	if err != nil {
		t.Fatalf("DeriveEd25519Path() error: %v", err)
	}
	k2, err := DeriveEd25519Path("m/44'/501'/0'/0'", seed)
	if err != nil {
		t.Fatalf("DeriveEd25519Path() error: %v", err)
	}
	if k1 != k2 {
		t.Error("same seed and path should produce the same key")
	}

	k3, err := DeriveEd25519Path("m/44'/501'/1'/0'", seed)
	if err != nil {
		t.Fatalf("DeriveEd25519Path() error: %v", err)
	}
	if k1 == k3 {
		t.Error("different paths should produce different keys")
	}
}

func TestDeriveEd25519Path_Concurrent(t *testing.T) {
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	want, err := DeriveEd25519Path("m/44'/501'/0'/0'", seed)
	if err != nil {
		t.Fatalf("DeriveEd25519Path() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := DeriveEd25519Path("m/44'/501'/0'/0'", seed)
			if err != nil || got != want {
				t.Errorf("concurrent derivation = %x, %v; want %x", got, err, want)
			}
		}()
	}
	wg.Wait()
}

func TestDeriveEd25519Path_InvalidPath(t *testing.T) {
	_, err := DeriveEd25519Path("44'/501'", []byte("seed"))
	if !errors.Is(err, ErrInvalidDerivationPath) {
		t.Fatalf("error = %v, want ErrInvalidDerivationPath", err)
	}
}

func TestDeriveEd25519Path_NonHardenedUsesSameMixing(t *testing.T) {
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	master := NewMasterKey(seed)

	// A non-hardened index is mixed as 0x00 || key || index, exactly like
	// a hardened one, only without the offset.
	soft := master.DeriveChild(7)
	got, err := DeriveEd25519Path("m/7", seed)
	if err != nil {
		t.Fatalf("DeriveEd25519Path() error: %v", err)
	}
	if soft.Key() != got {
		t.Error("m/7 should equal DeriveChild(7)")
	}

	hard, err := DeriveEd25519Path("m/7'", seed)
	if err != nil {
		t.Fatalf("DeriveEd25519Path() error: %v", err)
	}
	if hard == got {
		t.Error("m/7 and m/7' should differ")
	}
}

func TestHDKey_DerivePathMatchesSteps(t *testing.T) {
	master := NewMasterKey(mustHex(t, "000102030405060708090a0b0c0d0e0f"))

	step := master.DeriveChild(HardenedOffset + 44).DeriveChild(HardenedOffset + 501)
	combined := master.DerivePath(Path{HardenedOffset + 44, HardenedOffset + 501})

	if step.Key() != combined.Key() || step.ChainCode() != combined.ChainCode() {
		t.Error("DerivePath should equal sequential DeriveChild")
	}
	if combined.Depth() != 2 {
		t.Errorf("depth = %d, want 2", combined.Depth())
	}
}

func TestHDKey_AddressAndSign(t *testing.T) {
	seed, err := SeedFromMnemonic(vector12, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	key := NewMasterKey(seed).DerivePath(SolanaPath(0))

	addr := key.Address()
	pub, err := ParseSolanaAddress(addr)
	if err != nil {
		t.Fatalf("ParseSolanaAddress(%q) error: %v", addr, err)
	}
	if !bytes.Equal(pub, key.PublicKey()) {
		t.Error("decoded address should equal public key")
	}

	msg := []byte("klingpay login nonce 42")
	sig := key.Sign(msg)
	if !ed25519.Verify(pub, msg, sig) {
		t.Error("signature should verify against the derived public key")
	}
}

func TestParseSolanaAddress_Invalid(t *testing.T) {
	for _, addr := range []string{"", "0OIl", "3yZe7d"} {
		if _, err := ParseSolanaAddress(addr); err == nil {
			t.Errorf("ParseSolanaAddress(%q) should fail", addr)
		}
	}
}

func TestHDKey_Wipe(t *testing.T) {
	key := NewMasterKey([]byte("some seed"))
	key.Wipe()
	if key.Key() != [32]byte{} || key.ChainCode() != [32]byte{} {
		t.Error("Wipe should zero key and chain code")
	}
}
