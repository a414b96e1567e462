package lrng

import (
	"math"
	"time"
)

const (
	// SecurityStrengthBytes is the security strength of every DRBG.
	SecurityStrengthBytes = 32

	// SecurityStrengthBits is SecurityStrengthBytes expressed in bits.
	SecurityStrengthBits = SecurityStrengthBytes * 8

	// MinSeedEntropyBits is the entropy a reseed must deliver for the
	// system to count as minimally seeded.
	MinSeedEntropyBits = 128

	// InitEntropyBits is the reseed trigger threshold after a reset.
	InitEntropyBits = 32

	// MaxDigestSize is the largest digest a pluggable hash may produce.
	MaxDigestSize = 64

	// DefaultEventsPerStrength is the number of events assumed to carry
	// SecurityStrengthBits of entropy with a high-resolution timer.
	DefaultEventsPerStrength = SecurityStrengthBits

	// DefaultOversamplingFactor scales DefaultEventsPerStrength when only a
	// low-resolution timer is available.
	DefaultOversamplingFactor = 10

	// DefaultReseedThreshold is the number of generate calls between
	// reseeds.
	DefaultReseedThreshold = 1 << 20

	// DefaultMaxRequestSize is the largest chunk handed to the generator in
	// a single call.
	DefaultMaxRequestSize = 1 << 12

	// DefaultMaxReseedInterval is the maximum age of a DRBG seed.
	DefaultMaxReseedInterval = 600 * time.Second

	// writeWakeupBits is the reseed trigger threshold once fully seeded.
	writeWakeupBits = SecurityStrengthBits

	// reseedStagger and reseedWiden space out domain reseeds after boot.
	reseedStagger = 100 * time.Second
	reseedWiden   = 100 * time.Second
)

// entropyRate converts between event counts and entropy bits. A rate of
// eventsPerStrength events is worth SecurityStrengthBits of entropy. Both
// conversions round down and saturate at math.MaxUint32, so converting back
// and forth never yields more than was put in.
type entropyRate struct {
	eventsPerStrength uint32
}

func newEntropyRate(eventsPerStrength uint32) entropyRate {
	if eventsPerStrength == 0 {
		eventsPerStrength = DefaultEventsPerStrength
	}
	return entropyRate{eventsPerStrength: eventsPerStrength}
}

// entropyToEvents returns the number of events needed to cover bits.
func (r entropyRate) entropyToEvents(bits uint32) uint32 {
	return saturate(uint64(bits) * uint64(r.eventsPerStrength) / SecurityStrengthBits)
}

// entropyToEventsCeil returns the fewest events worth at least bits.
func (r entropyRate) entropyToEventsCeil(bits uint32) uint32 {
	num := uint64(bits) * uint64(r.eventsPerStrength)
	return saturate((num + SecurityStrengthBits - 1) / SecurityStrengthBits)
}

// eventsToEntropy returns the entropy credited for events.
func (r entropyRate) eventsToEntropy(events uint32) uint32 {
	return saturate(uint64(events) * SecurityStrengthBits / uint64(r.eventsPerStrength))
}

func saturate(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// subSat returns a-b, or zero if b exceeds a.
func subSat(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}
