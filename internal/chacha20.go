package internal

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// ChaCha20DRNG is a deterministic random number generator built on the
// ChaCha20 stream cipher. After every request the key is replaced with
// fresh key stream so that a captured state cannot reproduce earlier
// output.
//
// ChaCha20DRNG is not safe for concurrent use; callers serialize access.
type ChaCha20DRNG struct {
	key   [chacha20.KeySize]byte
	nonce [chacha20.NonceSize]byte
}

// NewChaCha20DRNG returns an unseeded generator. Its output is predictable
// until Seed has been called with data carrying entropy.
func NewChaCha20DRNG() *ChaCha20DRNG {
	return &ChaCha20DRNG{}
}

// Seed mixes seed into the key, one key-sized block at a time, updating the
// state after each block.
func (d *ChaCha20DRNG) Seed(seed []byte) error {
	for len(seed) > 0 {
		n := min(len(seed), len(d.key))
		for i := 0; i < n; i++ {
			d.key[i] ^= seed[i]
		}
		seed = seed[n:]

		if err := d.update(); err != nil {
			return err
		}
	}
	return nil
}

// Generate fills out with key stream and rekeys the generator.
func (d *ChaCha20DRNG) Generate(out []byte) (int, error) {
	c, err := chacha20.NewUnauthenticatedCipher(d.key[:], d.nonce[:])
	if err != nil {
		return 0, err
	}
	clear(out)
	c.XORKeyStream(out, out)

	var next [chacha20.KeySize]byte
	c.XORKeyStream(next[:], next[:])
	d.key = next
	clear(next[:])
	d.incNonce()

	return len(out), nil
}

// update replaces the key with the first key stream block of the current
// state.
func (d *ChaCha20DRNG) update() error {
	c, err := chacha20.NewUnauthenticatedCipher(d.key[:], d.nonce[:])
	if err != nil {
		return err
	}
	var next [chacha20.KeySize]byte
	c.XORKeyStream(next[:], next[:])
	d.key = next
	clear(next[:])
	d.incNonce()
	return nil
}

func (d *ChaCha20DRNG) incNonce() {
	lo := binary.LittleEndian.Uint64(d.nonce[:8]) + 1
	binary.LittleEndian.PutUint64(d.nonce[:8], lo)
	if lo == 0 {
		hi := binary.LittleEndian.Uint32(d.nonce[8:]) + 1
		binary.LittleEndian.PutUint32(d.nonce[8:], hi)
	}
}
