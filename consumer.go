package lrng

import (
	"context"
	"fmt"
	"hash"
	"time"
)

// GetRandom fills buf with random bytes. With mayBlock false the
// non-blocking DRBG serves the request and the caller never waits on a
// reseed. With mayBlock true a sleep-capable DRBG is used and may be
// reseeded inline. Output is produced whatever the seed level; use
// WaitUntilSeeded first where seeded output is required.
func (r *RNG) GetRandom(buf []byte, mayBlock bool) error {
	_, err := r.getRandom(buf, mayBlock)
	return err
}

// Read implements io.Reader on the sleep-capable DRBGs.
func (r *RNG) Read(p []byte) (int, error) {
	return r.getRandom(p, true)
}

func (r *RNG) getRandom(buf []byte, mayBlock bool) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	d := r.nonBlocking
	if mayBlock {
		d = r.selectDomain()
	}
	return r.generate(d, buf)
}

// selectDomain picks the next domain DRBG in turn, falling back to domain 0
// while the chosen one is not fully seeded.
func (r *RNG) selectDomain() *drbg {
	if len(r.domains) > 1 {
		node := int(r.next.Add(1) % uint32(len(r.domains)))
		if d := r.domains[node]; d.fullySeeded.Load() {
			return d
		}
	}
	return r.domains[0]
}

// WaitUntilSeeded blocks until the system is fully seeded, or minimally
// seeded if full is false. A canceled ctx yields an error wrapping
// ErrInsufficientEntropy and the context error.
func (r *RNG) WaitUntilSeeded(ctx context.Context, full bool) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.state.wait(ctx, full)
}

// IsFullySeeded reports whether a reseed has delivered the full security
// strength since the last reset.
func (r *RNG) IsFullySeeded() bool {
	return r.state.fullySeeded.Load()
}

// IsMinimallySeeded reports whether a reseed has delivered at least
// MinSeedEntropyBits since the last reset.
func (r *RNG) IsMinimallySeeded() bool {
	return r.state.minSeeded.Load()
}

// ForceReseedAll marks every DRBG for a reseed before its next output.
func (r *RNG) ForceReseedAll() {
	r.nonBlocking.forceReseed.Store(true)
	for _, d := range r.domains {
		d.forceReseed.Store(true)
	}
	r.log.Debug().Msg("reseed forced on all DRBGs")
}

// Reset drops all entropy credit and returns every DRBG and the seed level
// to the initial state. Pool contents are kept.
func (r *RNG) Reset() {
	now := r.now()
	threshold := int32(r.cfg.ReseedThreshold)

	resetOne := func(d *drbg) {
		g := r.lockDRBG(d)
		d.reset(threshold, now)
		g.unlock()
	}
	resetOne(r.nonBlocking)
	for _, d := range r.domains {
		resetOne(d)
	}

	r.allSeeded.Store(false)
	r.state.reset(InitEntropyBits)
	r.aux.reset()
	r.collectors.reset()
	r.log.Info().Msg("reset")
}

// SwapPrimitive replaces the primitive of the sleep-capable DRBG of domain.
// The new generator is seeded from the old generator's output and the
// collectors of the domain continue from their old digests; domain 0 also
// moves the aux pool. On error the previous primitive stays active.
func (r *RNG) SwapPrimitive(domain int, p Primitive) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if domain < 0 || domain >= len(r.domains) {
		return fmt.Errorf("%w: %d", ErrInvalidDomain, domain)
	}
	if err := validatePrimitive(p); err != nil {
		return err
	}

	r.swapMu.Lock()
	defer r.swapMu.Unlock()

	d := r.domains[domain]
	old := d.core.Load()
	if old.prim == p {
		return nil
	}

	gen, err := p.NewGenerator()
	if err != nil {
		return fmt.Errorf("lrng: swap: allocating %s: %w", p.GeneratorName(), err)
	}

	var members []*collector
	var hashes []hash.Hash
	for _, c := range r.collectors.all {
		if c.domain != domain {
			continue
		}
		h, err := p.NewHash()
		if err != nil {
			return fmt.Errorf("lrng: swap: allocating %s: %w", p.HashName(), err)
		}
		members = append(members, c)
		hashes = append(hashes, h)
	}

	var seed [MaxDigestSize]byte
	defer zeroBytes(seed[:])
	if _, err := r.generate(d, seed[:]); err != nil {
		return fmt.Errorf("lrng: swap: reading old generator: %w", err)
	}
	if err := gen.Seed(seed[:]); err != nil {
		return fmt.Errorf("lrng: swap: %w: %w", ErrPrimitiveFault, err)
	}

	d.hashMu.Lock()
	defer d.hashMu.Unlock()
	g := r.lockDRBG(d)
	defer g.unlock()

	for i, c := range members {
		if !c.online.Load() {
			continue
		}
		if err := c.rekey(p, hashes[i]); err != nil {
			r.warn(warnCollectorHash).Err(err).Int("worker", c.worker).Msg("re-keying collector failed, events dropped")
		}
	}
	if domain == 0 {
		r.aux.mu.Lock()
		err := r.aux.rekeyLocked(p)
		r.aux.mu.Unlock()
		if err != nil {
			r.warn(warnSeed).Err(err).Msg("re-keying aux pool failed")
		}
	}

	d.core.Store(&drbgCore{gen: gen, prim: p})
	d.forceReseed.Store(true)

	r.log.Info().
		Int("domain", domain).
		Str("old", primitiveName(old.prim)).
		Str("new", primitiveName(p)).
		Msg("primitive swapped")
	return nil
}

// Primitive returns the active primitive of domain.
func (r *RNG) Primitive(domain int) (Primitive, error) {
	if domain < 0 || domain >= len(r.domains) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDomain, domain)
	}
	return r.domains[domain].core.Load().prim, nil
}

// DomainStats describes one sleep-capable DRBG.
type DomainStats struct {
	Domain            int
	Primitive         string
	FullySeeded       bool
	RequestsRemaining int32
	LastSeeded        time.Time
}

// Stats is a snapshot of the RNG state.
type Stats struct {
	MinimallySeeded      bool
	FullySeeded          bool
	Operational          bool
	AvailableEntropyBits uint32
	AuxEntropyBits       uint32
	ReseedThresholdBits  uint32
	MaxReseedInterval    time.Duration
	Domains              []DomainStats
}

// Stats returns a snapshot of the seed level and entropy accounting.
func (r *RNG) Stats() Stats {
	s := Stats{
		MinimallySeeded:      r.state.minSeeded.Load(),
		FullySeeded:          r.state.fullySeeded.Load(),
		Operational:          r.state.operational.Load(),
		AvailableEntropyBits: r.availableEntropy(),
		AuxEntropyBits:       r.aux.available(),
		ReseedThresholdBits:  r.state.threshold.Load(),
		MaxReseedInterval:    time.Duration(r.maxReseedInterval.Load()),
		Domains:              make([]DomainStats, len(r.domains)),
	}
	for i, d := range r.domains {
		s.Domains[i] = DomainStats{
			Domain:            i,
			Primitive:         primitiveName(d.core.Load().prim),
			FullySeeded:       d.fullySeeded.Load(),
			RequestsRemaining: d.requests.Load(),
			LastSeeded:        time.Unix(0, d.lastSeeded.Load()),
		}
	}
	return s
}
