package lrng

import (
	"math"
	"testing"
)

func TestEntropyConversion(t *testing.T) {
	tests := []struct {
		name       string
		rate       uint32
		bits       uint32
		wantEvents uint32
		events     uint32
		wantBits   uint32
	}{
		{"default rate", 256, 256, 256, 128, 128},
		{"oversampled", 2560, 1, 10, 2560, 256},
		{"oversampled floors", 2560, 0, 0, 9, 0},
		{"coarse rate", 64, 256, 64, 1, 4},
		{"saturates", 2560, math.MaxUint32, math.MaxUint32, math.MaxUint32, math.MaxUint32 / 10},
		{"zero rate uses default", 0, 256, 256, 256, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEntropyRate(tt.rate)
			if got := r.entropyToEvents(tt.bits); got != tt.wantEvents {
				t.Errorf("entropyToEvents(%d) = %d, want %d", tt.bits, got, tt.wantEvents)
			}
			if got := r.eventsToEntropy(tt.events); got != tt.wantBits {
				t.Errorf("eventsToEntropy(%d) = %d, want %d", tt.events, got, tt.wantBits)
			}
		})
	}
}

// Converting back and forth never credits more entropy than was put in.
func TestEntropyRoundTripNeverGains(t *testing.T) {
	for _, rate := range []uint32{1, 7, 64, 256, 300, 2560, 100000} {
		r := newEntropyRate(rate)
		for _, bits := range []uint32{0, 1, 3, 31, 128, 255, 256, 1000, 1 << 20, math.MaxUint32} {
			if got := r.eventsToEntropy(r.entropyToEvents(bits)); got > bits {
				t.Errorf("rate %d: eventsToEntropy(entropyToEvents(%d)) = %d", rate, bits, got)
			}
		}
	}
}

func TestSubSat(t *testing.T) {
	if got := subSat(10, 3); got != 7 {
		t.Errorf("subSat(10, 3) = %d, want 7", got)
	}
	if got := subSat(3, 10); got != 0 {
		t.Errorf("subSat(3, 10) = %d, want 0", got)
	}
}

func TestSlowNoiseRequiredEntropy(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(clock)
	cfg.DisableCPUNoise = false
	cfg.DisableJitter = false
	cfg.CPUNoise = fixedNoise{bits: 8}
	cfg.Jitter = fixedNoise{bits: 16}
	r := newTestRNG(t, cfg)

	if got := r.SlowNoiseRequiredEntropy(MinSeedEntropyBits); got != 104 {
		t.Errorf("SlowNoiseRequiredEntropy(128) = %d, want 104", got)
	}
	if got := r.SlowNoiseRequiredEntropy(16); got != 0 {
		t.Errorf("SlowNoiseRequiredEntropy(16) = %d, want 0", got)
	}
}

func TestEntropyToEventsCeil(t *testing.T) {
	r := newEntropyRate(100)
	if got := r.entropyToEventsCeil(56); got != 22 {
		t.Errorf("entropyToEventsCeil(56) = %d, want 22", got)
	}
	if got := r.entropyToEventsCeil(256); got != 100 {
		t.Errorf("entropyToEventsCeil(256) = %d, want 100", got)
	}
	for _, bits := range []uint32{0, 1, 55, 56, 129, 256} {
		if got := r.eventsToEntropy(r.entropyToEventsCeil(bits)); got < bits {
			t.Errorf("eventsToEntropy(entropyToEventsCeil(%d)) = %d", bits, got)
		}
	}
}
