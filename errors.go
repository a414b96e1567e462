package lrng

import "errors"

var (
	// ErrPrimitiveFault reports that a hash or generator operation failed.
	// It is never fatal: the affected DRBG reseeds early on its next use.
	ErrPrimitiveFault = errors.New("lrng: primitive fault")

	// ErrInsufficientEntropy reports that fewer entropy bits were available
	// than requested.
	ErrInsufficientEntropy = errors.New("lrng: insufficient entropy")

	// ErrClosed is returned by operations on a closed RNG.
	ErrClosed = errors.New("lrng: closed")

	// ErrInvalidDomain is returned for a domain index outside the
	// configured range.
	ErrInvalidDomain = errors.New("lrng: invalid domain")
)
