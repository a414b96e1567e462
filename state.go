package lrng

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// seedState tracks the seed level of the system as a whole. Levels only
// rise until the next reset.
type seedState struct {
	minSeeded   atomic.Bool
	fullySeeded atomic.Bool
	operational atomic.Bool

	// threshold is the available entropy in bits needed before the
	// scheduler reseeds.
	threshold atomic.Uint32

	mu     sync.Mutex
	minCh  chan struct{}
	fullCh chan struct{}
}

func newSeedState() *seedState {
	s := &seedState{
		minCh:  make(chan struct{}),
		fullCh: make(chan struct{}),
	}
	s.threshold.Store(InitEntropyBits)
	return s
}

// reset drops all seed levels. Waiters that are still blocked keep waiting
// for the next transition.
func (s *seedState) reset(threshold uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.minSeeded.Swap(false) {
		s.minCh = make(chan struct{})
	}
	if s.fullySeeded.Swap(false) {
		s.fullCh = make(chan struct{})
	}
	s.operational.Store(false)
	s.threshold.Store(threshold)
}

func (s *seedState) markMinSeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markMinSeededLocked()
}

func (s *seedState) markMinSeededLocked() {
	if !s.minSeeded.Swap(true) {
		close(s.minCh)
	}
}

func (s *seedState) markFullySeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markMinSeededLocked()
	if !s.fullySeeded.Swap(true) {
		close(s.fullCh)
	}
}

func (s *seedState) wait(ctx context.Context, full bool) error {
	s.mu.Lock()
	ch := s.minCh
	if full {
		ch = s.fullCh
	}
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInsufficientEntropy, ctx.Err())
	}
}

// initOps advances the seed level after a reseed that delivered seedBits
// and moves the scheduler threshold to the next level.
func (r *RNG) initOps(seedBits uint32) {
	s := r.state
	if s.operational.Load() {
		return
	}

	strength := r.securityStrength()
	switch {
	case s.fullySeeded.Load():
		s.operational.Store(true)

	case seedBits >= strength:
		s.markFullySeeded()
		s.operational.Store(true)
		s.threshold.Store(min(writeWakeupBits, strength))
		r.log.Info().Uint32("bits", seedBits).Msg("fully seeded")

	case !s.minSeeded.Load() && seedBits >= MinSeedEntropyBits:
		s.markMinSeeded()
		s.threshold.Store(r.slowNoiseRequiredEntropy(strength))
		r.log.Info().Uint32("bits", seedBits).Msg("minimally seeded")

	case !s.minSeeded.Load() && seedBits >= InitEntropyBits:
		s.threshold.Store(r.slowNoiseRequiredEntropy(MinSeedEntropyBits))
		r.log.Info().Uint32("bits", seedBits).Msg("initial entropy level reached")
	}
}
