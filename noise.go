package lrng

import (
	"crypto/rand"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/go-lrng/internal"
	"golang.org/x/sys/cpu"
)

// NoiseSource is a fast entropy source consulted on every reseed.
type NoiseSource interface {
	// Get fills buf (SecurityStrengthBytes long) and returns the estimated
	// entropy in bits, or 0 if the source is unavailable or untrusted.
	Get(buf []byte) uint32

	// EntropyLevel returns the entropy Get would currently credit for a full
	// buffer.
	EntropyLevel() uint32
}

const (
	// cpuNoiseDefaultBits is the credit given to an untrusted CPU source.
	cpuNoiseDefaultBits = SecurityStrengthBits >> 5

	// cpuNoiseTrustedBits is the credit given when the CPU is trusted.
	cpuNoiseTrustedBits = SecurityStrengthBits

	// jitterDefaultBits is the credit given to the jitter source.
	jitterDefaultBits = 16
)

// cpuNoise reads the platform random source, which mixes the CPU's random
// number instructions where they exist.
type cpuNoise struct {
	bits atomic.Uint32
	read func([]byte) (int, error)
}

// hasHardwareRNG reports whether the CPU advertises random number
// instructions.
func hasHardwareRNG() bool {
	return cpu.X86.HasRDRAND || cpu.X86.HasRDSEED
}

func newCPUNoise(trust bool) *cpuNoise {
	n := &cpuNoise{read: rand.Read}
	switch {
	case !hasHardwareRNG():
	case trust:
		n.bits.Store(cpuNoiseTrustedBits)
	default:
		n.bits.Store(cpuNoiseDefaultBits)
	}
	return n
}

func (n *cpuNoise) EntropyLevel() uint32 {
	return min(n.bits.Load(), SecurityStrengthBits)
}

func (n *cpuNoise) Get(buf []byte) uint32 {
	bits := n.EntropyLevel()
	if bits == 0 {
		return 0
	}
	if _, err := n.read(buf); err != nil {
		n.bits.Store(0)
		zeroBytes(buf)
		return 0
	}
	return min(bits, uint32(len(buf))*8)
}

// jitterNoise credits the output of an internal.JitterCollector.
type jitterNoise struct {
	mu   sync.Mutex
	j    *internal.JitterCollector
	bits atomic.Uint32
}

func newJitterNoise() (*jitterNoise, error) {
	j, err := internal.NewJitterCollector()
	if err != nil {
		return nil, err
	}
	n := &jitterNoise{j: j}
	n.bits.Store(jitterDefaultBits)
	return n, nil
}

func (n *jitterNoise) EntropyLevel() uint32 {
	return n.bits.Load()
}

func (n *jitterNoise) Get(buf []byte) uint32 {
	bits := n.EntropyLevel()
	if bits == 0 {
		return 0
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := n.j.Read(buf); err != nil {
		n.bits.Store(0)
		zeroBytes(buf)
		return 0
	}
	return min(bits, uint32(len(buf))*8)
}
