package lrng

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBroken = errors.New("broken")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	ns atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.ns.Store(time.Unix(1_700_000_000, 0).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.ns.Load()) }

func (c *fakeClock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

// countingGen counts Seed calls of a wrapped generator and can be made to
// fail.
type countingGen struct {
	Generator
	seeds        atomic.Int32
	failGenerate atomic.Bool
}

func (g *countingGen) Seed(b []byte) error {
	g.seeds.Add(1)
	return g.Generator.Seed(b)
}

func (g *countingGen) Generate(out []byte) (int, error) {
	if g.failGenerate.Load() {
		return 0, errBroken
	}
	return g.Generator.Generate(out)
}

// countingPrim is ChaCha20Blake2b with counting generators.
type countingPrim struct {
	Primitive

	mu   sync.Mutex
	gens []*countingGen
}

func newCountingPrim() *countingPrim {
	return &countingPrim{Primitive: ChaCha20Blake2b}
}

func (p *countingPrim) GeneratorName() string { return "counting" }

func (p *countingPrim) NewGenerator() (Generator, error) {
	g, err := p.Primitive.NewGenerator()
	if err != nil {
		return nil, err
	}
	cg := &countingGen{Generator: g}
	p.mu.Lock()
	p.gens = append(p.gens, cg)
	p.mu.Unlock()
	return cg, nil
}

func (p *countingPrim) gen(i int) *countingGen {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gens[i]
}

// brokenPrim fails to create generators.
type brokenPrim struct {
	Primitive
}

func (brokenPrim) NewGenerator() (Generator, error) { return nil, errBroken }

// fixedNoise is a fast noise source with a constant credit.
type fixedNoise struct {
	bits uint32
}

func (n fixedNoise) EntropyLevel() uint32 { return n.bits }

func (n fixedNoise) Get(buf []byte) uint32 {
	for i := range buf {
		buf[i] = 0xA5
	}
	return n.bits
}

// testConfig returns a deterministic configuration without fast noise
// sources and without the background scheduler.
func testConfig(clock *fakeClock) Config {
	return Config{
		Workers:          2,
		DisableCPUNoise:  true,
		DisableJitter:    true,
		DisableScheduler: true,
		Clock:            clock.Now,
	}
}

func newTestRNG(t *testing.T, cfg Config) *RNG {
	t.Helper()
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}
