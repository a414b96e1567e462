package lrng

import (
	"errors"
	"fmt"
	"hash"

	"github.com/opd-ai/go-lrng/internal"
)

// Generator is the stream generator at the core of a DRBG. Implementations
// need not be safe for concurrent use.
type Generator interface {
	// Seed mixes seed into the generator state.
	Seed(seed []byte) error

	// Generate fills out and returns the number of bytes written.
	Generate(out []byte) (int, error)
}

// Primitive bundles the hash used to compress entropy pools with the
// generator used as DRBG core. A Primitive can be swapped at run time with
// RNG.SwapPrimitive.
type Primitive interface {
	// HashName names the hash, e.g. "blake2b-256".
	HashName() string

	// DigestSize returns the digest size of the hash in bytes. It must not
	// exceed MaxDigestSize.
	DigestSize() int

	// NewHash returns a freshly initialized hash state.
	NewHash() (hash.Hash, error)

	// GeneratorName names the generator, e.g. "chacha20".
	GeneratorName() string

	// NewGenerator returns an unseeded generator.
	NewGenerator() (Generator, error)
}

// primitive is a Primitive assembled from constructor functions.
type primitive struct {
	hashName   string
	digestSize int
	newHash    func() (hash.Hash, error)
	genName    string
	newGen     func() (Generator, error)
}

func (p *primitive) HashName() string { return p.hashName }
func (p *primitive) DigestSize() int { return p.digestSize }
func (p *primitive) NewHash() (hash.Hash, error) { return p.newHash() }
func (p *primitive) GeneratorName() string { return p.genName }
func (p *primitive) NewGenerator() (Generator, error) { return p.newGen() }

var (
	// ChaCha20Blake2b is the baseline primitive: Blake2b-256 compresses the
	// pools and a ChaCha20 DRNG generates output. The non-blocking DRBG
	// always runs on it.
	ChaCha20Blake2b Primitive = &primitive{
		hashName:   "blake2b-256",
		digestSize: internal.Blake2b256DigestSize,
		newHash:    internal.NewBlake2b256,
		genName:    "chacha20",
		newGen:     func() (Generator, error) { return internal.NewChaCha20DRNG(), nil },
	}

	// AESSHA3 compresses the pools with SHA3-512 and generates output with
	// an AES-256-CTR DRNG.
	AESSHA3 Primitive = &primitive{
		hashName:   "sha3-512",
		digestSize: internal.SHA3512DigestSize,
		newHash:    internal.NewSHA3512,
		genName:    "aes-256-ctr",
		newGen:     func() (Generator, error) { return internal.NewAESCTRDRNG(), nil },
	}
)

// primitiveName returns a printable name of p.
func primitiveName(p Primitive) string {
	return p.HashName() + "/" + p.GeneratorName()
}

// validatePrimitive checks the digest size of p.
func validatePrimitive(p Primitive) error {
	if p == nil {
		return errors.New("lrng: primitive must not be nil")
	}
	if ds := p.DigestSize(); ds <= 0 || ds > MaxDigestSize {
		return fmt.Errorf("lrng: %s: invalid digest size %d", primitiveName(p), ds)
	}
	return nil
}

// securityStrength returns the security strength in bits a hash with the
// given digest size can carry.
func securityStrength(digestSize int) uint32 {
	return min(SecurityStrengthBits, uint32(digestSize)*8)
}
