// Package lrng provides an entropy accumulation and random number generation
// engine in the style of the Linux Random Number Generator (LRNG).
//
// Concurrent workers record events (typically time stamps) into per-worker
// collectors. A seed assembler drains the collectors, an auxiliary pool fed
// by external injections and fast noise sources into seeds for a set of
// DRBGs: one non-blocking DRBG and one sleep-capable DRBG per domain.
// Consumers read random bytes from the DRBGs.
//
// Example usage:
//
//	rng, err := lrng.New(lrng.Config{Workers: runtime.NumCPU()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rng.Close()
//
//	rng.RecordTimestamp(worker)
//	...
//	buf := make([]byte, 32)
//	if err := rng.GetRandom(buf, true); err != nil {
//	    log.Fatal(err)
//	}
package lrng

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"
)

// Config specifies the configuration of an RNG. Zero values select the
// defaults.
type Config struct {
	// Domains is the number of sleep-capable DRBGs. Workers are assigned to
	// domains in contiguous blocks. Default 1.
	Domains int

	// Workers is the number of event producers, each owning a collector.
	// Default runtime.NumCPU(), raised to Domains if smaller.
	Workers int

	// EventsPerStrength is the number of events assumed to carry
	// SecurityStrengthBits of entropy. Default DefaultEventsPerStrength.
	EventsPerStrength uint32

	// LowResTimer marks event time stamps as coarse. EventsPerStrength is
	// multiplied by OversamplingFactor and RecordInterrupt mixes in
	// additional event data.
	LowResTimer bool

	// OversamplingFactor applies with LowResTimer. Default
	// DefaultOversamplingFactor.
	OversamplingFactor uint32

	// ReseedThreshold is the number of generate calls after which a DRBG
	// reseeds. Default DefaultReseedThreshold.
	ReseedThreshold int

	// MaxReseedInterval is the maximum age of a DRBG seed. Default
	// DefaultMaxReseedInterval.
	MaxReseedInterval time.Duration

	// MaxRequestSize is the largest number of bytes produced by a single
	// generator call. Default DefaultMaxRequestSize.
	MaxRequestSize int

	// TrustCPU credits the CPU noise source with full entropy.
	TrustCPU bool

	// CPUNoise replaces the built-in CPU noise source.
	CPUNoise NoiseSource

	// DisableCPUNoise removes the CPU noise source.
	DisableCPUNoise bool

	// Jitter replaces the built-in jitter noise source.
	Jitter NoiseSource

	// DisableJitter removes the jitter noise source.
	DisableJitter bool

	// Health classifies recorded events. Default passes every event.
	Health HealthClassifier

	// Primitive is the initial primitive of the sleep-capable DRBGs and of
	// the pools. Default ChaCha20Blake2b.
	Primitive Primitive

	// DisableScheduler turns off the background reseed goroutine. Reseeds
	// then happen only inline on sleep-capable reads.
	DisableScheduler bool

	// Logger receives diagnostics. Default is silent unless LRNG_DEBUG=1.
	Logger *zerolog.Logger

	// Clock returns the current time for seed ageing. Default time.Now.
	Clock func() time.Time
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Domains < 0 {
		return fmt.Errorf("lrng: invalid domain count: %d", c.Domains)
	}
	if c.Workers < 0 {
		return fmt.Errorf("lrng: invalid worker count: %d", c.Workers)
	}
	if c.Workers > 0 && c.Domains > c.Workers {
		return fmt.Errorf("lrng: %d domains need at least as many workers, have %d", c.Domains, c.Workers)
	}
	if c.ReseedThreshold < 0 || c.ReseedThreshold > math.MaxInt32 {
		return fmt.Errorf("lrng: invalid reseed threshold: %d", c.ReseedThreshold)
	}
	if c.MaxReseedInterval < 0 {
		return errors.New("lrng: max reseed interval must not be negative")
	}
	if c.MaxRequestSize < 0 {
		return fmt.Errorf("lrng: invalid max request size: %d", c.MaxRequestSize)
	}
	if c.Primitive != nil {
		if err := validatePrimitive(c.Primitive); err != nil {
			return err
		}
	}
	return nil
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Domains == 0 {
		c.Domains = 1
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	c.Workers = max(c.Workers, c.Domains)
	if c.EventsPerStrength == 0 {
		c.EventsPerStrength = DefaultEventsPerStrength
	}
	if c.OversamplingFactor == 0 {
		c.OversamplingFactor = DefaultOversamplingFactor
	}
	if c.ReseedThreshold == 0 {
		c.ReseedThreshold = DefaultReseedThreshold
	}
	if c.MaxReseedInterval == 0 {
		c.MaxReseedInterval = DefaultMaxReseedInterval
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = DefaultMaxRequestSize
	}
	if c.Health == nil {
		c.Health = passAll{}
	}
	if c.Primitive == nil {
		c.Primitive = ChaCha20Blake2b
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// eventsPerStrength returns the effective event rate.
func (c *Config) eventsPerStrength() uint32 {
	if !c.LowResTimer {
		return c.EventsPerStrength
	}
	return saturate(uint64(c.EventsPerStrength) * uint64(c.OversamplingFactor))
}

// RNG is an entropy accumulator with its DRBGs. It is safe for concurrent
// use.
type RNG struct {
	cfg     Config
	log     zerolog.Logger
	limiter *catrate.Limiter
	rate    entropyRate
	started time.Time

	collectors *collectorSet
	aux        *auxPool
	assembler  *seedAssembler
	cpu        NoiseSource
	jitter     NoiseSource

	// nonBlocking serves callers that must not wait. domains[0] shares its
	// core until a different primitive is swapped in.
	nonBlocking *drbg
	domains     []*drbg
	next        atomic.Uint32

	state             *seedState
	gate              reseedGate
	sched             *scheduler
	allSeeded         atomic.Bool
	maxReseedInterval atomic.Int64

	swapMu sync.Mutex
	closed atomic.Bool
}

// New creates an RNG with the specified configuration. The returned RNG must
// be closed with Close() to stop its background reseeding.
func New(config Config) (*RNG, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	r := &RNG{
		cfg:     cfg,
		limiter: newWarnLimiter(),
		rate:    newEntropyRate(cfg.eventsPerStrength()),
		started: time.Now(),
		state:   newSeedState(),
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	} else {
		r.log = defaultLogger()
	}

	r.collectors = newCollectorSet(cfg.Workers, cfg.Domains)
	r.aux = newAuxPool(cfg.Primitive.DigestSize())

	if err := r.initDRBGs(); err != nil {
		return nil, err
	}
	r.initNoiseSources()

	r.assembler = &seedAssembler{
		rate:       r.rate,
		aux:        r.aux,
		collectors: r.collectors,
		cpu:        r.cpu,
		jitter:     r.jitter,
		now:        r.now,
		logger:     &r.log,
		warn:       r.warn,
	}

	r.sched = newScheduler(r.seedWork)
	if !cfg.DisableScheduler {
		r.sched.start()
	}

	r.log.Debug().
		Int("domains", cfg.Domains).
		Int("workers", cfg.Workers).
		Uint32("events_per_strength", r.rate.eventsPerStrength).
		Str("primitive", primitiveName(cfg.Primitive)).
		Msg("initialized")
	return r, nil
}

// initDRBGs creates the DRBG cores and seeds each with a boot time stamp.
// The boot seed carries no entropy; every DRBG starts with a forced reseed.
func (r *RNG) initDRBGs() error {
	nbGen, err := ChaCha20Blake2b.NewGenerator()
	if err != nil {
		return fmt.Errorf("lrng: non-blocking DRBG initialization: %w", err)
	}
	nbCore := &drbgCore{gen: nbGen, prim: ChaCha20Blake2b}
	r.nonBlocking = newDRBG("non-blocking", 0, true, nbCore)

	cores := []*drbgCore{nbCore}
	r.domains = make([]*drbg, r.cfg.Domains)
	for i := range r.domains {
		core := nbCore
		if i != 0 || r.cfg.Primitive != ChaCha20Blake2b {
			gen, err := r.cfg.Primitive.NewGenerator()
			if err != nil {
				return fmt.Errorf("lrng: domain %d DRBG initialization: %w", i, err)
			}
			core = &drbgCore{gen: gen, prim: r.cfg.Primitive}
			cores = append(cores, core)
		}
		r.domains[i] = newDRBG(fmt.Sprintf("domain-%d", i), i, false, core)
	}

	var boot [16]byte
	for i, core := range cores {
		binary.LittleEndian.PutUint64(boot[:8], uint64(time.Now().UnixNano()))
		binary.LittleEndian.PutUint64(boot[8:], uint64(i))
		if err := core.gen.Seed(boot[:]); err != nil {
			return fmt.Errorf("lrng: boot seeding: %w", err)
		}
	}

	now := r.now()
	threshold := int32(r.cfg.ReseedThreshold)
	r.nonBlocking.reset(threshold, now)
	for _, d := range r.domains {
		d.reset(threshold, now)
	}
	r.maxReseedInterval.Store(int64(r.cfg.MaxReseedInterval))
	return nil
}

func (r *RNG) initNoiseSources() {
	switch {
	case r.cfg.DisableCPUNoise:
	case r.cfg.CPUNoise != nil:
		r.cpu = r.cfg.CPUNoise
	default:
		r.cpu = newCPUNoise(r.cfg.TrustCPU)
	}

	switch {
	case r.cfg.DisableJitter:
	case r.cfg.Jitter != nil:
		r.jitter = r.cfg.Jitter
	default:
		j, err := newJitterNoise()
		if err != nil {
			r.warn(warnNoise).Err(err).Msg("jitter noise source unavailable")
			return
		}
		r.jitter = j
	}
}

// Close stops background reseeding. Subsequent calls return ErrClosed.
func (r *RNG) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.sched.stop()
	return nil
}

// IsReady reports whether the RNG is open.
func (r *RNG) IsReady() bool {
	return !r.closed.Load()
}

func (r *RNG) now() time.Time {
	return r.cfg.Clock()
}

// securityStrength is the entropy in bits a seed must carry for a DRBG to
// count as fully seeded.
func (r *RNG) securityStrength() uint32 {
	return securityStrength(int(r.aux.digestSize.Load()))
}

// slowNoiseRequiredEntropy returns the entropy the collectors and the aux
// pool must deliver for a seed of required bits, given what the fast noise
// sources credit.
func (r *RNG) slowNoiseRequiredEntropy(required uint32) uint32 {
	var fast uint32
	if r.cpu != nil {
		fast += r.cpu.EntropyLevel()
	}
	if r.jitter != nil {
		fast += r.jitter.EntropyLevel()
	}
	return subSat(required, fast)
}

// SlowNoiseRequiredEntropy returns the entropy in bits the recorded events
// and injections must supply for a seed of required bits.
func (r *RNG) SlowNoiseRequiredEntropy(required uint32) uint32 {
	return r.slowNoiseRequiredEntropy(required)
}

func (r *RNG) availableEntropy() uint32 {
	events := r.collectors.availableEvents(r.rate)
	return saturate(uint64(r.rate.eventsToEntropy(events)) + uint64(r.aux.available()))
}

// AvailableEntropy returns the entropy in bits currently held by the aux
// pool and the collectors.
func (r *RNG) AvailableEntropy() uint32 {
	return r.availableEntropy()
}
