package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestSealOpen_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"seed", bytes.Repeat([]byte{0xAB}, SeedSize)},
		{"empty", []byte{}},
		{"large", bytes.Repeat([]byte("klingpay"), 8192)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(tt.data, []byte("password"), TestKDFParams())
			if err != nil {
				t.Fatalf("Seal() error: %v", err)
			}
			got, err := Open(sealed, []byte("password"))
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Error("opened data does not match original")
			}
		})
	}
}

func TestOpen_WrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("right"), TestKDFParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if _, err := Open(sealed, []byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Open() error = %v, want ErrWrongPassword", err)
	}
}

func TestOpen_TruncatedData(t *testing.T) {
	if _, err := Open(make([]byte, headerSize), []byte("pw")); err == nil {
		t.Error("Open() should reject truncated data")
	}
}

func TestOpen_TamperedHeader(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("pw"), TestKDFParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	// Salt is covered by the key derivation, parallelism by the AAD.
	for _, off := range []int{1, headerSize - 1, len(sealed) - 1} {
		bad := append([]byte(nil), sealed...)
		bad[off] ^= 0x01
		if _, err := Open(bad, []byte("pw")); err == nil {
			t.Errorf("Open() should fail with byte %d flipped", off)
		}
	}
}

func TestOpen_BadKDFHeader(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("pw"), TestKDFParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	memOff := 1 + SaltSize
	iterOff := memOff + 4

	tests := []struct {
		name  string
		patch func(b []byte)
	}{
		{"parallelism zero", func(b []byte) { b[headerSize-1] = 0 }},
		{"iterations zero", func(b []byte) { binary.LittleEndian.PutUint32(b[iterOff:], 0) }},
		{"iterations huge", func(b []byte) { binary.LittleEndian.PutUint32(b[iterOff:], 1<<20) }},
		{"memory zero", func(b []byte) { binary.LittleEndian.PutUint32(b[memOff:], 0) }},
		{"memory below 8 per lane", func(b []byte) {
			b[headerSize-1] = 4
			binary.LittleEndian.PutUint32(b[memOff:], 16)
		}},
		{"memory huge", func(b []byte) { binary.LittleEndian.PutUint32(b[memOff:], 0xFFFFFFFF) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := append([]byte(nil), sealed...)
			tt.patch(bad)
			_, err := Open(bad, []byte("pw"))
			if !errors.Is(err, ErrInvalidKDFParams) {
				t.Errorf("Open() error = %v, want ErrInvalidKDFParams", err)
			}
		})
	}
}

func TestSeal_RejectsBadParams(t *testing.T) {
	for _, p := range []KDFParams{
		{Memory: 1024, Iterations: 1, Parallelism: 0},
		{Memory: 1024, Iterations: 0, Parallelism: 1},
		{Memory: MaxKDFMemory + 1, Iterations: 1, Parallelism: 1},
	} {
		if _, err := Seal([]byte("x"), []byte("pw"), p); !errors.Is(err, ErrInvalidKDFParams) {
			t.Errorf("Seal(%+v) error = %v, want ErrInvalidKDFParams", p, err)
		}
	}
	if err := DefaultKDFParams().Validate(); err != nil {
		t.Errorf("DefaultKDFParams().Validate() error: %v", err)
	}
}

func TestOpen_UnsupportedVersion(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("pw"), TestKDFParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	sealed[0] = 9
	if _, err := Open(sealed, []byte("pw")); err == nil || errors.Is(err, ErrWrongPassword) {
		t.Errorf("Open() error = %v, want version error", err)
	}
}

func TestSeal_DifferentEachTime(t *testing.T) {
	a, err := Seal([]byte("same"), []byte("pw"), TestKDFParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	b, err := Seal([]byte("same"), []byte("pw"), TestKDFParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same data should differ")
	}
}

func TestDefaultKDFParams(t *testing.T) {
	p := DefaultKDFParams()
	if p.Memory != 64*1024 || p.Iterations != 3 || p.Parallelism != 4 {
		t.Errorf("DefaultKDFParams() = %+v", p)
	}
}
