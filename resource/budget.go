package resource

import (
	"container/list"
	"fmt"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// Default memory limits.
const (
	// DefaultMemoryBudgetMB is the default texture memory budget (256 MB).
	DefaultMemoryBudgetMB = 256

	// DefaultMaxRecycled is the default number of freed textures kept for reuse.
	DefaultMaxRecycled = 32
)

// MemoryStats contains texture memory usage statistics.
type MemoryStats struct {
	// BudgetBytes is the memory budget in bytes.
	BudgetBytes uint64

	// UsedBytes is the memory held by live and recycled textures.
	UsedBytes uint64

	// RecycledBytes is the part of UsedBytes held by recycled textures.
	RecycledBytes uint64

	// TextureCount is the number of live textures.
	TextureCount int

	// RecycledCount is the number of textures waiting for reuse.
	RecycledCount int

	// EvictionCount is the total number of recycled textures deleted.
	EvictionCount uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	var utilization float64
	if s.BudgetBytes > 0 {
		utilization = float64(s.UsedBytes) / float64(s.BudgetBytes)
	}
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, %d textures, %d recycled, %d evictions]",
		utilization*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.TextureCount,
		s.RecycledCount,
		s.EvictionCount)
}

// recycledTexture is a freed texture kept for reuse by a later allocation of
// the same size and format.
type recycledTexture struct {
	texture gpu.TextureID
	size    geom.Size
	format  gpu.Format
	bytes   uint64
}

// textureBudget tracks texture memory and recycles freed textures in LRU
// order (front = most recently freed). Callers hold the provider lock.
type textureBudget struct {
	ctx gpu.Context

	budgetBytes uint64
	usedBytes   uint64
	liveCount   int
	maxRecycled int

	recycled      *list.List
	recycledBytes uint64
	evictions     uint64
}

func newTextureBudget(ctx gpu.Context, budgetBytes uint64, maxRecycled int) *textureBudget {
	return &textureBudget{
		ctx:         ctx,
		budgetBytes: budgetBytes,
		maxRecycled: maxRecycled,
		recycled:    list.New(),
	}
}

func textureBytes(size geom.Size, format gpu.Format) uint64 {
	//nolint:gosec // G115: sizes are validated against MaxTextureSize
	return uint64(size.Area() * format.BytesPerPixel())
}

// alloc returns a texture of exactly size and format, reusing a recycled
// texture when one matches. Recycled textures are evicted LRU-first to make
// room for new allocations.
func (b *textureBudget) alloc(size geom.Size, format gpu.Format) (gpu.TextureID, error) {
	for e := b.recycled.Front(); e != nil; e = e.Next() {
		r := e.Value.(*recycledTexture)
		if r.size == size && r.format == format {
			b.recycled.Remove(e)
			b.recycledBytes -= r.bytes
			b.liveCount++
			return r.texture, nil
		}
	}

	required := textureBytes(size, format)
	if b.budgetBytes > 0 {
		if required > b.budgetBytes {
			return InvalidTexture, fmt.Errorf("%w: texture %v needs %d MB of %d MB",
				ErrMemoryBudgetExceeded, size, required/(1024*1024), b.budgetBytes/(1024*1024))
		}
		b.evictUntil(b.budgetBytes - required)
		if b.usedBytes+required > b.budgetBytes {
			return InvalidTexture, fmt.Errorf("%w: %d bytes in use", ErrMemoryBudgetExceeded, b.usedBytes)
		}
	}

	tex, err := b.ctx.CreateTexture(size, format)
	if err != nil {
		return InvalidTexture, err
	}
	b.usedBytes += required
	b.liveCount++
	return tex, nil
}

// release returns a live texture to the recycle list.
func (b *textureBudget) release(tex gpu.TextureID, size geom.Size, format gpu.Format) {
	b.liveCount--
	r := &recycledTexture{texture: tex, size: size, format: format, bytes: textureBytes(size, format)}
	b.recycled.PushFront(r)
	b.recycledBytes += r.bytes
	for b.recycled.Len() > b.maxRecycled {
		b.evictOldest()
	}
}

// destroy deletes a live texture outright.
func (b *textureBudget) destroy(tex gpu.TextureID, size geom.Size, format gpu.Format) {
	b.liveCount--
	b.usedBytes -= textureBytes(size, format)
	b.ctx.DeleteTexture(tex)
}

// evictUntil deletes recycled textures until usedBytes <= limit or nothing
// is left to evict.
func (b *textureBudget) evictUntil(limit uint64) {
	for b.usedBytes > limit && b.recycled.Len() > 0 {
		b.evictOldest()
	}
}

func (b *textureBudget) evictOldest() {
	e := b.recycled.Back()
	r := e.Value.(*recycledTexture)
	b.recycled.Remove(e)
	b.recycledBytes -= r.bytes
	b.usedBytes -= r.bytes
	b.evictions++
	b.ctx.DeleteTexture(r.texture)
}

func (b *textureBudget) stats() MemoryStats {
	return MemoryStats{
		BudgetBytes:   b.budgetBytes,
		UsedBytes:     b.usedBytes,
		RecycledBytes: b.recycledBytes,
		TextureCount:  b.liveCount,
		RecycledCount: b.recycled.Len(),
		EvictionCount: b.evictions,
	}
}
