package internal

import (
	"bytes"
	"hash"
	"testing"
)

type drng interface {
	Seed([]byte) error
	Generate([]byte) (int, error)
}

func TestDRNGs(t *testing.T) {
	tests := []struct {
		name string
		new  func() drng
	}{
		{"chacha20", func() drng { return NewChaCha20DRNG() }},
		{"aes-ctr", func() drng { return NewAESCTRDRNG() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.new(), tt.new()
			for _, d := range []drng{a, b} {
				if err := d.Seed([]byte("identical seed material")); err != nil {
					t.Fatalf("Seed() failed: %v", err)
				}
			}

			outA := make([]byte, 100)
			outB := make([]byte, 100)
			if n, err := a.Generate(outA); err != nil || n != len(outA) {
				t.Fatalf("Generate() = %d, %v", n, err)
			}
			if _, err := b.Generate(outB); err != nil {
				t.Fatalf("Generate() failed: %v", err)
			}
			if !bytes.Equal(outA, outB) {
				t.Error("equally seeded generators produced different output")
			}

			// Every request moves the state forward.
			next := make([]byte, 100)
			if _, err := a.Generate(next); err != nil {
				t.Fatalf("Generate() failed: %v", err)
			}
			if bytes.Equal(outA, next) {
				t.Error("consecutive requests produced the same output")
			}

			// Seeding changes the stream.
			if err := b.Seed([]byte("other")); err != nil {
				t.Fatalf("Seed() failed: %v", err)
			}
			other := make([]byte, 100)
			if _, err := b.Generate(other); err != nil {
				t.Fatalf("Generate() failed: %v", err)
			}
			if bytes.Equal(next, other) {
				t.Error("reseeding did not change the output")
			}
		})
	}
}

func TestChaCha20DRNGLongSeed(t *testing.T) {
	a, b := NewChaCha20DRNG(), NewChaCha20DRNG()
	seed := bytes.Repeat([]byte{0x5a}, 100)
	if err := a.Seed(seed); err != nil {
		t.Fatal(err)
	}
	seed[99] ^= 1
	if err := b.Seed(seed); err != nil {
		t.Fatal(err)
	}
	if a.key == b.key {
		t.Error("trailing seed bytes were ignored")
	}
}

func TestChaCha20DRNGNonceCarry(t *testing.T) {
	d := NewChaCha20DRNG()
	for i := 0; i < 8; i++ {
		d.nonce[i] = 0xff
	}
	d.incNonce()
	for i := 0; i < 8; i++ {
		if d.nonce[i] != 0 {
			t.Fatalf("nonce[%d] = %#x, want 0", i, d.nonce[i])
		}
	}
	if d.nonce[8] != 1 {
		t.Errorf("nonce[8] = %d, want 1", d.nonce[8])
	}
}

func TestHashes(t *testing.T) {
	tests := []struct {
		name string
		size int
		new  func() (hash.Hash, error)
	}{
		{"blake2b-256", Blake2b256DigestSize, NewBlake2b256},
		{"sha3-512", SHA3512DigestSize, NewSHA3512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.new()
			if err != nil {
				t.Fatalf("new hash: %v", err)
			}
			if got := len(h.Sum(nil)); got != tt.size {
				t.Errorf("digest size = %d, want %d", got, tt.size)
			}
		})
	}
}
