package lrng

import (
	"encoding/binary"
	"time"

	"github.com/rs/zerolog"
)

const seedBufferSize = 3*SecurityStrengthBytes + 4

// seedBuffer is the transient seed handed to a generator: the pool digest,
// the CPU noise segment, the jitter segment and a time stamp. It must be
// zeroed as soon as it has been consumed.
type seedBuffer struct {
	b [seedBufferSize]byte
}

func (s *seedBuffer) pool() []byte {
	return s.b[:SecurityStrengthBytes]
}

func (s *seedBuffer) cpu() []byte {
	return s.b[SecurityStrengthBytes : 2*SecurityStrengthBytes]
}

func (s *seedBuffer) jitter() []byte {
	return s.b[2*SecurityStrengthBytes : 3*SecurityStrengthBytes]
}

func (s *seedBuffer) timestamp() uint32 {
	return binary.LittleEndian.Uint32(s.b[3*SecurityStrengthBytes:])
}

func (s *seedBuffer) setTimestamp(t uint32) {
	binary.LittleEndian.PutUint32(s.b[3*SecurityStrengthBytes:], t)
}

func (s *seedBuffer) bytes() []byte {
	return s.b[:]
}

// Zero wipes the buffer.
func (s *seedBuffer) Zero() {
	zeroBytes(s.b[:])
}

// seedAssembler drains the aux pool and the worker collectors into a seed
// buffer. Draining is destructive, so callers must hold the reseed gate.
type seedAssembler struct {
	rate       entropyRate
	aux        *auxPool
	collectors *collectorSet
	cpu        NoiseSource
	jitter     NoiseSource
	now        func() time.Time
	logger     *zerolog.Logger
	warn       func(category string) *zerolog.Event
}

// assemble fills buf and returns the entropy it carries in bits. requestedBits
// bounds what is taken from the pools; the fast noise sources add their own
// estimate on top. A non-nil error reports a pool hashing failure, in which
// case the pool segment carries no entropy.
func (a *seedAssembler) assemble(buf *seedBuffer, prim Primitive, requestedBits uint32, fullySeeded bool) (uint32, error) {
	buf.setTimestamp(uint32(a.now().UnixNano()))

	total, err := a.hashPools(buf.pool(), prim, requestedBits, fullySeeded)
	if err != nil {
		zeroBytes(buf.pool())
		total = 0
	}

	if a.cpu != nil {
		total += a.cpu.Get(buf.cpu())
	}
	if a.jitter != nil {
		total += a.jitter.Get(buf.jitter())
	}
	return total, err
}

// hashPools hashes the aux pool and every online collector into out. The
// result also becomes the new aux pool state.
func (a *seedAssembler) hashPools(out []byte, prim Primitive, requestedBits uint32, fullySeeded bool) (uint32, error) {
	var digest [MaxDigestSize]byte
	defer zeroBytes(digest[:])

	a.aux.mu.Lock()
	defer a.aux.mu.Unlock()

	h, err := prim.NewHash()
	if err != nil {
		return 0, err
	}

	n, collected, err := a.aux.drainLocked(prim, digest[:], requestedBits)
	if err != nil {
		return 0, err
	}
	if _, err := h.Write(digest[:n]); err != nil {
		return 0, err
	}
	a.debug().Uint32("bits", collected).Msg("entropy used from aux pool")

	// Every collector is hashed even once enough events were found.
	wantEvents := a.rate.entropyToEventsCeil(requestedBits - collected)
	var gotEvents uint32
	for _, c := range a.collectors.all {
		if !c.online.Load() {
			continue
		}

		n, found, err := c.readAndReset(digest[:], a.rate)
		if err != nil {
			a.warning(warnCollectorHash).Err(err).Int("worker", c.worker).Msg("reading collector failed")
			continue
		}
		if _, err := h.Write(digest[:n]); err != nil {
			return 0, err
		}

		gotEvents += found
		var unused uint32
		if gotEvents > wantEvents {
			unused = gotEvents - wantEvents
			c.events.Add(unused)
			gotEvents = wantEvents
		}
		a.debug().Int("worker", c.worker).Uint32("used", found-unused).Uint32("unused", unused).
			Msg("events used from collector")
	}

	final := h.Sum(digest[:0])
	a.aux.storeLocked(final)
	collected = min(collected+a.rate.eventsToEntropy(gotEvents), requestedBits)

	width := len(final)
	if !fullySeeded {
		width = int(collected / 8)
	}
	copy(out, final[:min(width, len(final))])
	return collected, nil
}

func (a *seedAssembler) debug() *zerolog.Event {
	if a.logger == nil {
		return nil
	}
	return a.logger.Debug()
}

func (a *seedAssembler) warning(category string) *zerolog.Event {
	if a.warn == nil {
		return nil
	}
	return a.warn(category)
}
