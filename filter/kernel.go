package filter

import (
	"math"
	"sync"

	"github.com/anthonynsimon/bild/convolution"
)

// gaussianKernel returns a normalized 1D gaussian kernel for sigma as a
// horizontal bild kernel. The kernel spans 2*ceil(3*sigma)+1 taps, which
// covers 99.7% of the distribution.
func gaussianKernel(sigma float64) convolution.Matrix {
	if k, ok := defaultKernelCache.get(sigma); ok {
		return k
	}

	half := int(math.Ceil(sigma * 3))
	size := half*2 + 1
	k := convolution.NewKernel(size, 1)
	twoSigmaSq := 2 * sigma * sigma
	for i := range size {
		x := float64(i - half)
		k.Matrix[i] = math.Exp(-(x * x) / twoSigmaSq)
	}
	nk := k.Normalized()

	defaultKernelCache.put(sigma, nk)
	return nk
}

// kernelCache caches gaussian kernels keyed by sigma*100.
type kernelCache struct {
	mu     sync.RWMutex
	cache  map[int]convolution.Matrix
	maxLen int
}

var defaultKernelCache = &kernelCache{cache: make(map[int]convolution.Matrix), maxLen: 64}

func (c *kernelCache) get(sigma float64) (convolution.Matrix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.cache[int(sigma*100)]
	return k, ok
}

func (c *kernelCache) put(sigma float64, k convolution.Matrix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= c.maxLen {
		// Drop everything; kernels are cheap to rebuild.
		c.cache = make(map[int]convolution.Matrix)
	}
	c.cache[int(sigma*100)] = k
}
