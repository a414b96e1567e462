package internal

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

// SHA3512DigestSize is the output size of the alternative pool hash.
const SHA3512DigestSize = 64

// NewSHA3512 returns a fresh streaming SHA3-512 state.
func NewSHA3512() (hash.Hash, error) {
	return sha3.New512(), nil
}
