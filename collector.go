package lrng

import (
	"encoding/binary"
	"hash"
	"sync"
	"sync/atomic"
)

const (
	// slotSizeBits is the width of one event slot. At run time only the
	// low slotSizeBits of a time stamp are kept.
	slotSizeBits = 8
	slotSizeMask = 1<<slotSizeBits - 1

	// slotsPerWord is the number of slots packed into one array word.
	slotsPerWord = 32 / slotSizeBits

	// numSlots is the capacity of a collector ring in slots.
	numSlots = 1024

	// arrayWords is the size of a collector ring in 32-bit words.
	arrayWords = numSlots / slotsPerWord

	// bootCompressSlots is the compression interval used until the system
	// is fully seeded.
	bootCompressSlots = 32
)

// collector accumulates events of one worker. The ring is written by the
// worker's event path; the hash state is read by the reseed path. Both sides
// serialize on mu, which is never held across a blocking operation.
type collector struct {
	worker int
	domain int

	// events counts events believed to carry entropy since the last read.
	events atomic.Uint32
	online atomic.Bool

	mu     sync.Mutex
	array  [arrayWords]uint32
	cursor uint32
	prim   Primitive
	h      hash.Hash
	raw    [arrayWords * 4]byte
}

// collectorSet is the arena of collectors, indexed by worker id.
type collectorSet struct {
	all []*collector
}

// newCollectorSet creates collectors for workers workers spread over domains
// domains in contiguous blocks.
func newCollectorSet(workers, domains int) *collectorSet {
	s := &collectorSet{all: make([]*collector, workers)}
	for w := range s.all {
		s.all[w] = &collector{
			worker: w,
			domain: w * domains / workers,
		}
	}
	return s
}

// get returns the collector of worker, or nil if worker is out of range.
func (s *collectorSet) get(worker int) *collector {
	if worker < 0 || worker >= len(s.all) {
		return nil
	}
	return s.all[worker]
}

// availableEvents sums the pending events of all online collectors, each
// capped to what its digest can carry.
func (s *collectorSet) availableEvents(rate entropyRate) uint32 {
	var total uint64
	for _, c := range s.all {
		if !c.online.Load() {
			continue
		}
		total += uint64(min(c.events.Load(), c.capEvents(rate)))
	}
	return saturate(total)
}

// reset drops the entropy estimate of every collector. Pool contents stay.
func (s *collectorSet) reset() {
	for _, c := range s.all {
		c.events.Store(0)
	}
}

// capEvents returns the largest event count the collector's digest can
// carry.
func (c *collector) capEvents(rate entropyRate) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capEventsLocked(rate)
}

func (c *collector) capEventsLocked(rate entropyRate) uint32 {
	if c.prim == nil {
		return 0
	}
	return rate.entropyToEvents(uint32(c.prim.DigestSize()) * 8)
}

// init binds the collector to p and brings it online. The caller holds the
// read side of the domain's hash lock.
func (c *collector) init(p Primitive) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.online.Load() {
		return nil
	}
	h, err := p.NewHash()
	if err != nil {
		return err
	}
	c.prim = p
	c.h = h
	c.online.Store(true)
	return nil
}

// addSlot stores the low slotSizeBits of sample in the next slot. It
// reports whether the ring was compressed.
func (c *collector) addSlot(sample uint32, boot bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeSlotLocked(sample&slotSizeMask, boot)
}

// addWord stores all 32 bits of sample across slotsPerWord consecutive
// slots, compressing in between if the ring fills up.
func (c *collector) addWord(sample uint32, boot bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drained bool
	for i := 0; i < slotsPerWord; i++ {
		d, err := c.writeSlotLocked((sample>>(i*slotSizeBits))&slotSizeMask, boot)
		if err != nil {
			return drained, err
		}
		drained = drained || d
	}
	return drained, nil
}

func (c *collector) writeSlotLocked(v uint32, boot bool) (bool, error) {
	idx := c.cursor
	c.array[idx/slotsPerWord] |= v << ((idx % slotsPerWord) * slotSizeBits)
	c.cursor++

	if c.cursor == numSlots || (boot && c.cursor%bootCompressSlots == 0) {
		return true, c.drainLocked()
	}
	return false, nil
}

// drain folds the ring into the hash state and clears it.
func (c *collector) drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drainLocked()
}

func (c *collector) drainLocked() error {
	for i, w := range c.array {
		binary.LittleEndian.PutUint32(c.raw[i*4:], w)
	}

	var err error
	if c.h != nil {
		_, err = c.h.Write(c.raw[:])
	}

	zeroBytes(c.raw[:])
	for i := range c.array {
		c.array[i] = 0
	}
	c.cursor = 0
	return err
}

// readAndReset finalizes the hash state into digest and restarts the state
// with that digest. It returns the digest length and the pending events,
// capped to the digest size. digest must hold MaxDigestSize bytes.
func (c *collector) readAndReset(digest []byte, rate entropyRate) (int, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.h == nil {
		return 0, 0, nil
	}

	ds := c.prim.DigestSize()
	found := min(c.events.Swap(0), c.capEventsLocked(rate))

	c.h.Sum(digest[:0])
	c.h.Reset()
	if _, err := c.h.Write(digest[:ds]); err != nil {
		return 0, 0, err
	}
	return ds, found, nil
}

// rekey moves the collector to a new primitive: the digest of the old state
// seeds the new state h. On failure the pending events are dropped, since
// the pool contents they describe are lost.
func (c *collector) rekey(p Primitive, h hash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var digest [MaxDigestSize]byte
	defer zeroBytes(digest[:])

	n := 0
	if c.h != nil {
		c.h.Sum(digest[:0])
		n = c.prim.DigestSize()
	}

	c.prim = p
	c.h = h
	if _, err := h.Write(digest[:n]); err != nil {
		c.events.Store(0)
		return err
	}
	return nil
}
