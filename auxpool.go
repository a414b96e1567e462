package lrng

import (
	"sync"
	"sync/atomic"
)

// auxPool is the shared pool receiving externally supplied seed material.
// The pool bytes hold the digest of everything inserted so far. Writers
// serialize on mu; entropyBits may be read without it.
type auxPool struct {
	mu          sync.Mutex
	pool        [MaxDigestSize]byte
	entropyBits atomic.Uint32
	digestSize  atomic.Uint32
}

func newAuxPool(digestSize int) *auxPool {
	p := &auxPool{}
	p.digestSize.Store(uint32(digestSize))
	return p
}

// capBits returns the largest entropy credit the pool can hold.
func (p *auxPool) capBits() uint32 {
	return p.digestSize.Load() * 8
}

// available returns the current entropy credit.
func (p *auxPool) available() uint32 {
	return min(p.entropyBits.Load(), p.capBits())
}

// inject hashes in into the pool with prim and credits at most
// claimedBits, never exceeding the digest size. It returns the credited
// bits.
func (p *auxPool) inject(prim Primitive, in []byte, claimedBits uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, err := prim.NewHash()
	if err != nil {
		return 0, err
	}
	ds := int(p.digestSize.Load())
	if _, err := h.Write(p.pool[:ds]); err != nil {
		return 0, err
	}
	if _, err := h.Write(in); err != nil {
		return 0, err
	}
	h.Sum(p.pool[:0])

	credit := min(claimedBits, subSat(p.capBits(), p.entropyBits.Load()))
	p.entropyBits.Add(credit)
	return credit, nil
}

// drainLocked writes the digest of the pool into digest, which must hold
// MaxDigestSize bytes, and restarts the pool from that digest. It takes at
// most requestedBits of the entropy credit and leaves the rest in place.
// The caller holds mu.
func (p *auxPool) drainLocked(prim Primitive, digest []byte, requestedBits uint32) (int, uint32, error) {
	h, err := prim.NewHash()
	if err != nil {
		return 0, 0, err
	}
	ds := int(p.digestSize.Load())
	if _, err := h.Write(p.pool[:ds]); err != nil {
		return 0, 0, err
	}
	h.Sum(digest[:0])
	copy(p.pool[:], digest[:ds])

	found := min(p.entropyBits.Swap(0), p.capBits())
	if found > requestedBits {
		p.entropyBits.Add(found - requestedBits)
		found = requestedBits
	}
	return ds, found, nil
}

// storeLocked replaces the pool contents with digest. The caller holds mu.
func (p *auxPool) storeLocked(digest []byte) {
	zeroBytes(p.pool[:])
	copy(p.pool[:], digest)
}

// rekeyLocked hashes the pool contents with the new primitive and adopts
// its digest size, trimming the entropy credit to the new cap. The caller
// holds mu.
func (p *auxPool) rekeyLocked(prim Primitive) error {
	h, err := prim.NewHash()
	if err != nil {
		return err
	}
	if _, err := h.Write(p.pool[:p.digestSize.Load()]); err != nil {
		return err
	}

	var digest [MaxDigestSize]byte
	defer zeroBytes(digest[:])
	h.Sum(digest[:0])
	p.storeLocked(digest[:prim.DigestSize()])

	p.digestSize.Store(uint32(prim.DigestSize()))
	if capBits := p.capBits(); p.entropyBits.Load() > capBits {
		p.entropyBits.Store(capBits)
	}
	return nil
}

// reset drops the entropy credit. Pool contents stay.
func (p *auxPool) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entropyBits.Store(0)
}
