package lrng

import (
	"runtime"
	"sync"
)

// seedBufferPool recycles seed buffers. Buffers are zeroed before they are
// returned to the pool.
var seedBufferPool = sync.Pool{
	New: func() interface{} {
		return new(seedBuffer)
	},
}

// getSeedBuffer acquires a zeroed seed buffer from the pool.
func getSeedBuffer() *seedBuffer {
	return seedBufferPool.Get().(*seedBuffer)
}

// putSeedBuffer wipes buf and returns it to the pool.
func putSeedBuffer(buf *seedBuffer) {
	if buf != nil {
		buf.Zero()
		seedBufferPool.Put(buf)
	}
}

// zeroBytes clears a byte slice securely.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
