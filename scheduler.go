package lrng

import (
	"context"
	"sync"
)

// scheduler runs deferred reseeds on a single background goroutine. Event
// paths signal it without blocking; signals arriving while a reseed is
// pending collapse into one.
type scheduler struct {
	wake   chan struct{}
	work   func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newScheduler(work func()) *scheduler {
	return &scheduler{
		wake: make(chan struct{}, 1),
		work: work,
	}
}

// start launches the background goroutine. It is a no-op on a nil
// scheduler.
func (s *scheduler) start() {
	if s == nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.loop()
}

func (s *scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
			s.work()
		}
	}
}

// signal requests a reseed attempt. It never blocks.
func (s *scheduler) signal() {
	if s == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop terminates the background goroutine and waits for it.
func (s *scheduler) stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// seedWork is the scheduled reseed. It reseeds the first domain that is not
// yet fully seeded. Once every domain is, it keeps the non-blocking DRBG
// fresh through domain 0.
func (r *RNG) seedWork() {
	if r.closed.Load() {
		return
	}
	if r.allSeeded.Load() && !r.needsReseed(r.nonBlocking) {
		return
	}
	if r.availableEntropy() < min(r.state.threshold.Load(), r.securityStrength()) {
		return
	}
	if !r.gate.tryLock() {
		return
	}

	for node, d := range r.domains {
		if d.fullySeeded.Load() {
			continue
		}
		r.log.Debug().Int("domain", node).Msg("reseed triggered by entropy sources")
		r.seedDRBG(d)
		if d.fullySeeded.Load() {
			// Spread the periodic reseeds of the domains apart.
			d.lastSeeded.Add(int64(node) * int64(reseedStagger))
			r.maxReseedInterval.Add(int64(reseedWiden))
		}
		return
	}

	r.allSeeded.Store(true)
	if r.needsReseed(r.nonBlocking) {
		r.seedDRBG(r.domains[0])
		return
	}
	r.gate.unlock()
}

// poll runs seedWork once if a signal is pending. It drives reseeding when
// the background goroutine is disabled.
func (r *RNG) poll() bool {
	select {
	case <-r.sched.wake:
		r.seedWork()
		return true
	default:
		return false
	}
}
