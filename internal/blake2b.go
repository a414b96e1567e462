// Package internal provides the cryptographic primitives and the timing
// noise collector used by lrng. It wraps golang.org/x/crypto and crypto/*
// packages.
package internal

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Blake2b256DigestSize is the output size of the baseline pool hash.
const Blake2b256DigestSize = blake2b.Size256

// NewBlake2b256 returns a fresh, unkeyed streaming Blake2b-256 state.
func NewBlake2b256() (hash.Hash, error) {
	return blake2b.New256(nil)
}

// Blake2b512 computes a 512-bit Blake2b hash (64 bytes).
func Blake2b512(data []byte) [64]byte {
	return blake2b.Sum512(data)
}
