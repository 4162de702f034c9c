// Package mempool recycles the large float32 buffers used for model input.
package mempool

import "sync"

const bucketStep = 1024

var float32Pools sync.Map // bucket size -> *sync.Pool

func bucket(n int) int {
	if n <= bucketStep {
		return bucketStep
	}
	return (n + bucketStep - 1) / bucketStep * bucketStep
}

func poolFor(size int) *sync.Pool {
	p, _ := float32Pools.LoadOrStore(size, &sync.Pool{New: func() any { return make([]float32, size) }})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
// Return it with PutFloat32.
func GetFloat32(n int) []float32 {
	size := bucket(n)
	buf, ok := poolFor(size).Get().([]float32)
	if !ok || cap(buf) < size {
		buf = make([]float32, size)
	}
	return buf[:n]
}

// PutFloat32 hands buf back for reuse. nil is ignored.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	size := bucket(cap(buf))
	if size != cap(buf) {
		// Odd capacities did not come from GetFloat32.
		return
	}
	poolFor(size).Put(buf[:size]) //nolint:staticcheck // slices are small headers
}
