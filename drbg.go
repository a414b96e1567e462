package lrng

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// drbgCore is the generator a DRBG draws from, together with the primitive
// that created it. Two DRBGs holding the same core share generator state.
type drbgCore struct {
	gen  Generator
	prim Primitive
}

// drbg holds the state of one deterministic random bit generator.
type drbg struct {
	name        string
	domain      int
	nonBlocking bool

	core atomic.Pointer[drbgCore]

	// hashMu guards replacement of the primitive. It is always taken
	// before the DRBG lock.
	hashMu sync.RWMutex
	mu     sync.Mutex
	spin   spinLock

	requests    atomic.Int32
	lastSeeded  atomic.Int64
	fullySeeded atomic.Bool
	forceReseed atomic.Bool
}

func newDRBG(name string, domain int, nonBlocking bool, core *drbgCore) *drbg {
	d := &drbg{name: name, domain: domain, nonBlocking: nonBlocking}
	d.core.Store(core)
	return d
}

// prim returns the active primitive. Callers hold hashMu.
func (d *drbg) prim() Primitive {
	return d.core.Load().prim
}

// reset puts d back into the unseeded state with a pending forced reseed.
func (d *drbg) reset(threshold int32, now time.Time) {
	d.requests.Store(threshold)
	d.lastSeeded.Store(now.UnixNano())
	d.fullySeeded.Store(false)
	d.forceReseed.Store(true)
}

func (d *drbg) markSeeded(threshold int32, now time.Time) {
	d.lastSeeded.Store(now.UnixNano())
	d.requests.Store(threshold)
	d.forceReseed.Store(false)
}

// spinLock is a mutual exclusion lock that never parks the caller.
type spinLock struct {
	state atomic.Uint32
}

func (l *spinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.state.Store(0)
}

type lockKind uint8

const (
	lockBlocking lockKind = iota
	lockSpin
)

// drbgGuard is a held DRBG lock.
type drbgGuard struct {
	kind lockKind
	mu   *sync.Mutex
	spin *spinLock
}

func (g drbgGuard) unlock() {
	switch g.kind {
	case lockSpin:
		g.spin.Unlock()
	default:
		g.mu.Unlock()
	}
}

// sharesNonBlockingCore reports whether d currently draws from the
// non-blocking DRBG's generator.
func (r *RNG) sharesNonBlockingCore(d *drbg) bool {
	return d.core.Load() == r.nonBlocking.core.Load()
}

// lockDRBG locks d. A DRBG sharing the non-blocking core is guarded by the
// non-blocking spin lock, every other DRBG by its own mutex. The core is
// checked again once the lock is held; if a primitive swap changed it in
// the meantime the lock is dropped and the other kind is tried.
// Callers need not hold hashMu: it guards only the collector and aux pool
// hashes, while the core itself is covered by this re-check.
func (r *RNG) lockDRBG(d *drbg) drbgGuard {
	for {
		if r.sharesNonBlockingCore(d) {
			r.nonBlocking.spin.Lock()
			if r.sharesNonBlockingCore(d) {
				return drbgGuard{kind: lockSpin, spin: &r.nonBlocking.spin}
			}
			r.nonBlocking.spin.Unlock()
			continue
		}

		d.mu.Lock()
		if !r.sharesNonBlockingCore(d) {
			return drbgGuard{kind: lockBlocking, mu: &d.mu}
		}
		d.mu.Unlock()
	}
}

// stale reports whether the seed of d is older than the maximum interval.
func (r *RNG) stale(d *drbg) bool {
	return r.now().UnixNano()-d.lastSeeded.Load() > r.maxReseedInterval.Load()
}

// needsReseed reports whether d must be reseeded before further use.
func (r *RNG) needsReseed(d *drbg) bool {
	return d.forceReseed.Load() || d.requests.Load() <= 0 || r.stale(d)
}

// generate fills out from d, at most MaxRequestSize bytes per generator
// call. Before each chunk the reseed triggers are checked; a sleep-capable
// DRBG reseeds inline unless another reseed is running, in which case the
// reseed is left to the scheduler and the old state is used.
func (r *RNG) generate(d *drbg, out []byte) (int, error) {
	processed := 0
	for processed < len(out) {
		todo := min(len(out)-processed, r.cfg.MaxRequestSize)

		if d.requests.Add(-1) <= 0 || d.forceReseed.Load() || r.stale(d) {
			switch {
			case d.nonBlocking:
				d.requests.Store(0)
				r.sched.signal()
			case r.gate.tryLock():
				r.seedDRBG(d)
			default:
				d.requests.Store(1)
				r.sched.signal()
			}
		}

		g := r.lockDRBG(d)
		n, err := d.core.Load().gen.Generate(out[processed : processed+todo])
		g.unlock()

		if err == nil && n <= 0 {
			err = errors.New("generator returned no data")
		}
		if err != nil {
			d.requests.Store(1)
			r.warn(warnGenerate).Err(err).Str("drbg", d.name).Msg("getting random data from DRBG failed")
			return processed, fmt.Errorf("%w: %s: %w", ErrPrimitiveFault, d.name, err)
		}
		processed += n
	}
	return processed, nil
}

// injectSeed seeds the generator of d. On failure the next generate call
// retries the reseed.
func (r *RNG) injectSeed(d *drbg, seed []byte) bool {
	g := r.lockDRBG(d)
	defer g.unlock()

	core := d.core.Load()
	if err := core.gen.Seed(seed); err != nil {
		r.warn(warnSeed).Err(err).Str("drbg", d.name).Msg("seeding DRBG failed")
		d.requests.Store(1)
		return false
	}

	now := r.now()
	threshold := int32(r.cfg.ReseedThreshold)
	r.log.Debug().
		Str("drbg", d.name).
		Int("bytes", len(seed)).
		Dur("since_last_seed", now.Sub(time.Unix(0, d.lastSeeded.Load()))).
		Int32("generate_calls", threshold-d.requests.Load()).
		Msg("DRBG seeded")

	d.markSeeded(threshold, now)
	if nb := r.nonBlocking; d != nb && core == nb.core.Load() {
		nb.markSeeded(threshold, now)
	}
	return true
}

// seedFromPools reseeds d with a freshly assembled seed. The caller holds
// the reseed gate; it is released once the pools have been read.
func (r *RNG) seedFromPools(d *drbg) (uint32, bool) {
	buf := getSeedBuffer()
	defer putSeedBuffer(buf)

	total := r.fillSeedBuffer(buf)
	r.gate.unlock()
	r.initOps(total)

	ok := r.injectSeed(d, buf.bytes())
	if ok && total >= r.securityStrength() {
		d.fullySeeded.Store(true)
	}
	return total, ok
}

// seedDRBG reseeds d from the pools. When d is the sleep-capable DRBG of
// domain 0 and the non-blocking DRBG is due, the latter is reseeded from
// the output of d. The caller holds the reseed gate.
func (r *RNG) seedDRBG(d *drbg) bool {
	_, ok := r.seedFromPools(d)
	if !ok || d.nonBlocking || d.domain != 0 {
		return ok
	}

	nb := r.nonBlocking
	if r.sharesNonBlockingCore(d) || !r.needsReseed(nb) {
		return ok
	}

	var seed [SecurityStrengthBytes]byte
	defer zeroBytes(seed[:])

	// Drawn without the reseed triggers of generate, which would reseed d
	// again while the non-blocking DRBG is still due.
	g := r.lockDRBG(d)
	n, err := d.core.Load().gen.Generate(seed[:])
	g.unlock()
	if err == nil && n <= 0 {
		err = errors.New("generator returned no data")
	}
	if err != nil {
		d.requests.Store(1)
		r.warn(warnSeed).Err(err).Msg("generating seed for non-blocking DRBG failed")
		return ok
	}
	r.injectSeed(nb, seed[:n])
	return ok
}

// fillSeedBuffer assembles a seed from all sources. Once the system is fully
// seeded, the pools are left alone if they cannot deliver the minimum seed
// entropy anyway.
func (r *RNG) fillSeedBuffer(buf *seedBuffer) uint32 {
	d0 := r.domains[0]
	d0.hashMu.RLock()
	defer d0.hashMu.RUnlock()

	prim := d0.prim()
	fully := r.state.fullySeeded.Load()
	if fully && r.availableEntropy() < r.slowNoiseRequiredEntropy(MinSeedEntropyBits) {
		buf.setTimestamp(uint32(r.now().UnixNano()))
		r.log.Debug().Msg("not enough entropy for reseed, pools left untouched")
		return 0
	}

	total, err := r.assembler.assemble(buf, prim, securityStrength(prim.DigestSize()), fully)
	if err != nil {
		r.warn(warnSeed).Err(err).Msg("hashing entropy pools failed")
	}
	r.log.Debug().Uint32("bits", total).Msg("seed assembled")
	return total
}

// reseedGate makes reseeding single-flight: concurrent drains would find
// the pools empty and under-credit entropy.
type reseedGate struct {
	busy atomic.Bool
}

func (g *reseedGate) tryLock() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *reseedGate) unlock() {
	g.busy.Store(false)
}
