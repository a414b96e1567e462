package lrng

import (
	"fmt"
	"time"
)

// RecordEvent records an event sample of worker, usually a time stamp.
// Only the low 8 bits are kept once the system is fully seeded. It never
// blocks on other workers and is meant to be called from the worker that
// owns the collector. Events of unknown workers are ignored.
func (r *RNG) RecordEvent(worker int, sample uint32) {
	c := r.onlineCollector(worker)
	if c == nil {
		return
	}

	boot := !r.state.fullySeeded.Load()
	if !boot {
		sample &= slotSizeMask
	}

	switch r.cfg.Health.Classify(sample) {
	case HealthFailDrop:
		return
	case HealthPass:
		c.events.Add(1)
	}

	var drained bool
	var err error
	if boot {
		drained, err = c.addWord(sample, true)
	} else {
		drained, err = c.addSlot(sample, false)
	}
	r.afterAdd(c, drained, err)
}

// RecordTimestamp records the current high-resolution time as an event of
// worker.
func (r *RNG) RecordTimestamp(worker int) {
	r.RecordEvent(worker, r.timestamp())
}

// RecordInterrupt records an interrupt-style event of worker. With a
// low-resolution timer the interrupt number, flags and instruction pointer
// are mixed in without entropy credit before the time stamp is recorded.
func (r *RNG) RecordInterrupt(worker int, irq, flags uint32, ip uint64) {
	if !r.cfg.LowResTimer {
		r.RecordTimestamp(worker)
		return
	}

	c := r.onlineCollector(worker)
	if c == nil {
		return
	}
	boot := !r.state.fullySeeded.Load()

	r.addUncredited(c, uint32(ip>>32)^uint32(ip), boot)
	r.RecordTimestamp(worker)

	ticks := uint32(time.Since(r.started) / time.Millisecond)
	r.addUncredited(c, ticks^irq^flags^uint32(ip), boot)
}

// addUncredited mixes all 32 bits of v into c without touching the event
// count.
func (r *RNG) addUncredited(c *collector, v uint32, boot bool) {
	drained, err := c.addWord(v, boot)
	r.afterAdd(c, drained, err)
}

func (r *RNG) afterAdd(c *collector, drained bool, err error) {
	if err != nil {
		r.warn(warnCollectorHash).Err(err).Int("worker", c.worker).Msg("compressing collector failed")
	}
	if drained {
		r.sched.signal()
	}
}

// onlineCollector returns the collector of worker, bringing it online on
// first use. It returns nil for unknown workers, after Close and when the
// collector cannot be initialized.
func (r *RNG) onlineCollector(worker int) *collector {
	c := r.collectors.get(worker)
	if c == nil || r.closed.Load() {
		return nil
	}
	if c.online.Load() {
		return c
	}

	d := r.domains[c.domain]
	d.hashMu.RLock()
	defer d.hashMu.RUnlock()

	prim := d.prim()
	if err := c.init(prim); err != nil {
		r.warn(warnCollectorInit).Err(err).Int("worker", worker).Msg("collector initialization failed")
		return nil
	}
	r.log.Debug().Int("worker", worker).Int("domain", c.domain).Str("hash", prim.HashName()).Msg("collector online")
	return c
}

func (r *RNG) timestamp() uint32 {
	return uint32(time.Since(r.started).Nanoseconds())
}

// InjectExternalSeed mixes seed into the aux pool and credits at most
// claimedBits of entropy, bounded by the pool's digest size. It returns the
// credited bits.
func (r *RNG) InjectExternalSeed(seed []byte, claimedBits uint32) (uint32, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}

	d0 := r.domains[0]
	d0.hashMu.RLock()
	credited, err := r.aux.inject(d0.prim(), seed, claimedBits)
	d0.hashMu.RUnlock()
	if err != nil {
		return 0, fmt.Errorf("lrng: inject: %w: %w", ErrPrimitiveFault, err)
	}

	r.log.Debug().Uint32("claimed", claimedBits).Uint32("credited", credited).Msg("external seed injected")
	r.sched.signal()
	return credited, nil
}
