package lrng

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAssembler(workers int) *seedAssembler {
	return &seedAssembler{
		rate:       newEntropyRate(DefaultEventsPerStrength),
		aux:        newAuxPool(ChaCha20Blake2b.DigestSize()),
		collectors: newCollectorSet(workers, 1),
		now:        time.Now,
	}
}

func TestAssembleFromAuxPool(t *testing.T) {
	tests := []struct {
		name      string
		injected  uint32
		requested uint32
		want      uint32
		left      uint32
	}{
		{"takes everything", 256, 256, 256, 0},
		{"leaves the excess", 256, 128, 128, 128},
		{"short pool", 64, 256, 64, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssembler(1)
			_, err := a.aux.inject(ChaCha20Blake2b, []byte("external"), tt.injected)
			require.NoError(t, err)

			var buf seedBuffer
			got, err := a.assemble(&buf, ChaCha20Blake2b, tt.requested, false)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.left, a.aux.available())
		})
	}
}

func TestAssembleReturnsUnusedEvents(t *testing.T) {
	a := newTestAssembler(2)
	for _, c := range a.collectors.all {
		require.NoError(t, c.init(ChaCha20Blake2b))
		c.events.Store(200)
	}

	var buf seedBuffer
	got, err := a.assemble(&buf, ChaCha20Blake2b, 256, false)
	require.NoError(t, err)
	require.Equal(t, uint32(256), got)

	require.Zero(t, a.collectors.all[0].events.Load())
	require.Equal(t, uint32(144), a.collectors.all[1].events.Load())
}

func TestAssembleTruncatesUntilFullySeeded(t *testing.T) {
	for _, fully := range []bool{false, true} {
		a := newTestAssembler(1)
		_, err := a.aux.inject(ChaCha20Blake2b, []byte("external"), 128)
		require.NoError(t, err)

		var buf seedBuffer
		got, err := a.assemble(&buf, ChaCha20Blake2b, 256, fully)
		require.NoError(t, err)
		require.Equal(t, uint32(128), got)

		tail := buf.pool()[16:]
		zero := make([]byte, len(tail))
		if fully {
			require.False(t, bytes.Equal(tail, zero), "fully seeded output must use the whole digest")
		} else {
			require.Equal(t, zero, tail, "bootstrap output must not exceed the credited entropy")
			require.False(t, bytes.Equal(buf.pool()[:16], zero[:16]))
		}
	}
}

// Every online collector contributes to the seed even when the entropy
// target was already reached.
func TestAssembleFoldsInAllCollectors(t *testing.T) {
	run := func(second uint32) []byte {
		a := newTestAssembler(2)
		for _, c := range a.collectors.all {
			require.NoError(t, c.init(ChaCha20Blake2b))
		}
		a.collectors.all[0].events.Store(256)
		_, err := a.collectors.all[1].addWord(second, false)
		require.NoError(t, err)
		require.NoError(t, a.collectors.all[1].drain())

		var buf seedBuffer
		_, err = a.assemble(&buf, ChaCha20Blake2b, 256, true)
		require.NoError(t, err)
		return append([]byte(nil), buf.pool()...)
	}

	require.NotEqual(t, run(1), run(2))
}

func TestAssembleFastSources(t *testing.T) {
	a := newTestAssembler(1)
	a.cpu = fixedNoise{bits: 8}
	a.jitter = fixedNoise{bits: 16}

	var buf seedBuffer
	got, err := a.assemble(&buf, ChaCha20Blake2b, 256, false)
	require.NoError(t, err)
	require.Equal(t, uint32(24), got)
	require.Equal(t, byte(0xA5), buf.cpu()[0])
	require.Equal(t, byte(0xA5), buf.jitter()[31])
	require.NotZero(t, buf.timestamp())
}

func TestSeedBufferPoolZeroes(t *testing.T) {
	buf := getSeedBuffer()
	for i := range buf.b {
		buf.b[i] = 0xff
	}
	putSeedBuffer(buf)

	for i, b := range buf.b {
		if b != 0 {
			t.Fatalf("byte %d = %#x after put, want 0", i, b)
		}
	}
}

func TestAssembleExactDelivery(t *testing.T) {
	a := newTestAssembler(2)
	_, err := a.aux.inject(ChaCha20Blake2b, []byte("external"), 100)
	require.NoError(t, err)
	for _, c := range a.collectors.all {
		require.NoError(t, c.init(ChaCha20Blake2b))
		c.events.Store(50)
	}

	var buf seedBuffer
	got, err := a.assemble(&buf, ChaCha20Blake2b, 256, false)
	require.NoError(t, err)
	require.Equal(t, uint32(200), got, "everything available is delivered when short")

	a = newTestAssembler(2)
	_, err = a.aux.inject(ChaCha20Blake2b, []byte("external"), 100)
	require.NoError(t, err)
	for _, c := range a.collectors.all {
		require.NoError(t, c.init(ChaCha20Blake2b))
		c.events.Store(200)
	}

	got, err = a.assemble(&buf, ChaCha20Blake2b, 256, false)
	require.NoError(t, err)
	require.Equal(t, uint32(256), got, "exactly the request when enough is available")
	require.Equal(t, uint32(44), a.collectors.all[0].events.Load())
	require.Equal(t, uint32(200), a.collectors.all[1].events.Load())
}

func TestAssembleExactDeliveryUnevenRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     uint32
		events   uint32
		wantLeft uint32
	}{
		{"100 events per strength", 100, 100, 78},
		{"300 events per strength", 300, 300, 234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssembler(1)
			a.rate = newEntropyRate(tt.rate)
			_, err := a.aux.inject(ChaCha20Blake2b, []byte("external"), 200)
			require.NoError(t, err)
			c := a.collectors.all[0]
			require.NoError(t, c.init(ChaCha20Blake2b))
			c.events.Store(tt.events)

			var buf seedBuffer
			got, err := a.assemble(&buf, ChaCha20Blake2b, 256, false)
			require.NoError(t, err)
			require.Equal(t, uint32(256), got)
			require.Equal(t, tt.wantLeft, c.events.Load())
		})
	}
}
