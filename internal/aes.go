package internal

import (
	"crypto/aes"
	"crypto/cipher"
)

const aesKeySize = 32

// AESCTRDRNG is a deterministic random number generator running AES-256 in
// counter mode. Seeding hashes the current key and counter together with
// the seed; every request rekeys from the continued key stream.
//
// AESCTRDRNG is not safe for concurrent use; callers serialize access.
type AESCTRDRNG struct {
	key [aesKeySize]byte
	iv  [aes.BlockSize]byte
}

// NewAESCTRDRNG returns an unseeded generator.
func NewAESCTRDRNG() *AESCTRDRNG {
	return &AESCTRDRNG{}
}

// Seed derives a new key and counter block from the current state and seed.
func (d *AESCTRDRNG) Seed(seed []byte) error {
	buf := make([]byte, 0, aesKeySize+aes.BlockSize+len(seed))
	buf = append(buf, d.key[:]...)
	buf = append(buf, d.iv[:]...)
	buf = append(buf, seed...)

	digest := Blake2b512(buf)
	copy(d.key[:], digest[:aesKeySize])
	copy(d.iv[:], digest[aesKeySize:])

	clear(buf)
	clear(digest[:])
	return nil
}

// Generate fills out with AES-CTR key stream and rekeys the generator.
func (d *AESCTRDRNG) Generate(out []byte) (int, error) {
	block, err := aes.NewCipher(d.key[:])
	if err != nil {
		return 0, err
	}
	stream := cipher.NewCTR(block, d.iv[:])

	clear(out)
	stream.XORKeyStream(out, out)

	var next [aesKeySize + aes.BlockSize]byte
	stream.XORKeyStream(next[:], next[:])
	copy(d.key[:], next[:aesKeySize])
	copy(d.iv[:], next[aesKeySize:])
	clear(next[:])

	return len(out), nil
}
