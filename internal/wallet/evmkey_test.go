package wallet

import (
	"strings"
	"testing"
)

func TestDeriveSecp256k1Path_KnownAddress(t *testing.T) {
	seed, err := SeedFromMnemonic(vector12, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}

	key, err := DeriveSecp256k1Path("m/44'/60'/0'/0/0", seed)
	if err != nil {
		t.Fatalf("DeriveSecp256k1Path() error: %v", err)
	}
	if got, want := key.Address(), "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"; got != want {
		t.Errorf("Address() = %s, want %s", got, want)
	}
	if len(key.PrivateKeyBytes()) != 32 {
		t.Errorf("private key length = %d, want 32", len(key.PrivateKeyBytes()))
	}
	if len(key.PublicKeyBytes()) != 33 {
		t.Errorf("public key length = %d, want 33", len(key.PublicKeyBytes()))
	}
}

func TestDeriveSecp256k1Path_Errors(t *testing.T) {
	if _, err := DeriveSecp256k1Path("m/44'/60'", []byte("short")); err == nil {
		t.Error("short seed should fail")
	}
	seed := make([]byte, SeedSize)
	if _, err := DeriveSecp256k1Path("44/60", seed); err == nil {
		t.Error("path without m should fail")
	}
}

func TestEVMAddress_Format(t *testing.T) {
	priv := make([]byte, 32)
	priv[31] = 1
	addr := EVMAddress(priv)
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Errorf("EVMAddress() = %q", addr)
	}
	// Well-known address for private key 1.
	if want := "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"; addr != want {
		t.Errorf("EVMAddress(1) = %s, want %s", addr, want)
	}
}
