package internal

import (
	"encoding/binary"
	"errors"
	"hash"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// jitterMemSize is the size of the scratch buffer walked between time
	// stamps to provoke cache and TLB timing variations.
	jitterMemSize = 2048

	// jitterOversampling is the number of time deltas folded into each
	// 32-byte output block.
	jitterOversampling = 256
)

// ErrJitterStuck is returned when the timer does not advance between
// measurements, in which case no timing noise can be collected.
var ErrJitterStuck = errors.New("jitter: timer does not provide usable variations")

// JitterCollector gathers noise from execution time variations of a memory
// walk and conditions it with Blake2b-256.
//
// JitterCollector is not safe for concurrent use.
type JitterCollector struct {
	mem  [jitterMemSize]byte
	pos  int
	prev int64
	h    hash.Hash
	now  func() int64
}

// NewJitterCollector creates a collector driven by the monotonic clock.
func NewJitterCollector() (*JitterCollector, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	return &JitterCollector{
		h:   h,
		now: func() int64 { return int64(time.Since(start)) },
	}, nil
}

// Read fills out with conditioned timing noise.
func (j *JitterCollector) Read(out []byte) (int, error) {
	var (
		block [blake2b.Size256]byte
		word  [8]byte
	)
	defer clear(block[:])

	n := 0
	for n < len(out) {
		j.h.Reset()
		j.h.Write(block[:])

		var stuck int
		for i := 0; i < jitterOversampling; i++ {
			delta := j.measure()
			if delta == 0 {
				stuck++
			}
			binary.LittleEndian.PutUint64(word[:], uint64(delta))
			j.h.Write(word[:])
		}
		if stuck == jitterOversampling {
			return n, ErrJitterStuck
		}

		j.h.Sum(block[:0])
		n += copy(out[n:], block[:])
	}
	return n, nil
}

// measure walks a few cache lines of the scratch buffer and returns the
// elapsed time since the previous measurement.
func (j *JitterCollector) measure() int64 {
	for i := 0; i < 64; i++ {
		j.pos = (j.pos + 67) % jitterMemSize
		j.mem[j.pos]++
	}
	now := j.now()
	delta := now - j.prev
	j.prev = now
	return delta
}
