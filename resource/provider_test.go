package resource

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/gpu/soft"
)

type testFence struct{ passed bool }

func (f *testFence) HasPassed() bool { return f.passed }
func (f *testFence) Wait()           { f.passed = true }

func newTestProvider(t *testing.T, opts ...Option) (*Provider, *soft.Context) {
	t.Helper()
	ctx := soft.New(soft.WithSize(16, 16), soft.WithMaxTextureSize(512))
	p := NewProvider(ctx, opts...)
	t.Cleanup(p.Destroy)
	return p, ctx
}

func TestCreateAndDelete(t *testing.T) {
	p, _ := newTestProvider(t)
	size := geom.Size{Width: 8, Height: 4}

	id, err := p.CreateResource(size, gpu.FormatRGBA8)
	require.NoError(t, err)
	assert.True(t, p.Exists(id))
	got, ok := p.Size(id)
	assert.True(t, ok)
	assert.Equal(t, size, got)

	p.DeleteResource(id)
	assert.False(t, p.Exists(id))
	assert.Equal(t, 0, p.ResourceCount())

	stats := p.MemoryStats()
	assert.Equal(t, 1, stats.RecycledCount)
	assert.Equal(t, 0, stats.TextureCount)
}

func TestCreateRejectsBadSizes(t *testing.T) {
	p, _ := newTestProvider(t)
	tests := []geom.Size{
		{Width: 0, Height: 4},
		{Width: 4, Height: -1},
		{Width: 513, Height: 1},
	}
	for _, size := range tests {
		_, err := p.CreateResource(size, gpu.FormatRGBA8)
		assert.ErrorIs(t, err, ErrInvalidSize, "size %v", size)
	}
}

func TestRecycledTextureReused(t *testing.T) {
	p, ctx := newTestProvider(t)
	size := geom.Size{Width: 16, Height: 16}

	a, err := p.CreateResource(size, gpu.FormatRGBA8)
	require.NoError(t, err)
	texA, err := p.LockForRead(a)
	require.NoError(t, err)
	p.UnlockForRead(a)
	p.DeleteResource(a)

	b, err := p.CreateResource(size, gpu.FormatRGBA8)
	require.NoError(t, err)
	texB, err := p.LockForRead(b)
	require.NoError(t, err)
	p.UnlockForRead(b)

	assert.Equal(t, texA, texB, "same-sized texture should be recycled")
	assert.Equal(t, size, ctx.TextureSize(texB))
}

func TestDeleteDeferredWhileLocked(t *testing.T) {
	p, _ := newTestProvider(t)
	id, err := p.CreateResource(geom.Size{Width: 4, Height: 4}, gpu.FormatRGBA8)
	require.NoError(t, err)

	_, err = p.LockForRead(id)
	require.NoError(t, err)
	assert.True(t, p.IsLocked(id))

	p.DeleteResource(id)
	assert.False(t, p.Exists(id), "pending deletion hides the resource")
	assert.Equal(t, 1, p.ResourceCount(), "entry survives while locked")

	p.UnlockForRead(id)
	assert.Equal(t, 0, p.ResourceCount())
}

func TestDeleteWaitsForReadFence(t *testing.T) {
	p, _ := newTestProvider(t)
	id, err := p.CreateResource(geom.Size{Width: 4, Height: 4}, gpu.FormatRGBA8)
	require.NoError(t, err)

	fence := &testFence{}
	p.SetReadLockFence(fence)
	_, err = p.LockForRead(id)
	require.NoError(t, err)
	p.UnlockForRead(id)

	p.DeleteResource(id)
	assert.Equal(t, 1, p.ResourceCount(), "fence not passed")

	p.CollectGarbage()
	assert.Equal(t, 1, p.ResourceCount())

	fence.Wait()
	p.CollectGarbage()
	assert.Equal(t, 0, p.ResourceCount())
}

func TestWriteLockExclusive(t *testing.T) {
	p, ctx := newTestProvider(t)
	id, err := p.CreateResource(geom.Size{Width: 4, Height: 4}, gpu.FormatRGBA8)
	require.NoError(t, err)

	fb, err := p.LockForWrite(id)
	require.NoError(t, err)
	assert.NotEqual(t, gpu.DefaultFramebuffer, fb)

	_, err = p.LockForRead(id)
	assert.ErrorIs(t, err, ErrLocked)
	_, err = p.LockForWrite(id)
	assert.ErrorIs(t, err, ErrLocked)

	ctx.BindFramebuffer(fb)
	ctx.Viewport(geom.XYWH(0, 0, 4, 4))
	ctx.Clear(gputypes.Color{R: 1, A: 1})
	p.UnlockForWrite(id)

	fb2, err := p.LockForWrite(id)
	require.NoError(t, err)
	assert.Equal(t, fb, fb2, "framebuffer is created once")
	p.UnlockForWrite(id)

	_, err = p.LockForRead(InvalidID)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestMemoryBudget(t *testing.T) {
	// 1 MB holds four 256x256 RGBA textures.
	p, _ := newTestProvider(t, WithMemoryBudget(1))
	size := geom.Size{Width: 256, Height: 256}

	var ids []ID
	for range 4 {
		id, err := p.CreateResource(size, gpu.FormatRGBA8)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := p.CreateResource(size, gpu.FormatRGBA8)
	require.ErrorIs(t, err, ErrMemoryBudgetExceeded)

	p.DeleteResource(ids[0])
	assert.Equal(t, 1, p.MemoryStats().RecycledCount)

	// A different shape cannot reuse the recycled texture, so it is evicted.
	_, err = p.CreateResource(geom.Size{Width: 512, Height: 128}, gpu.FormatRGBA8)
	require.NoError(t, err)
	stats := p.MemoryStats()
	assert.Equal(t, uint64(1), stats.EvictionCount)
	assert.Equal(t, 0, stats.RecycledCount)
	assert.Equal(t, uint64(1024*1024), stats.UsedBytes)

	_, err = p.CreateResource(geom.Size{Width: 512, Height: 512}, gpu.FormatRGBA8)
	assert.ErrorIs(t, err, ErrMemoryBudgetExceeded, "no room left in the budget")
}

func TestMaxRecycled(t *testing.T) {
	p, _ := newTestProvider(t, WithMaxRecycled(2))
	for i := range 4 {
		id, err := p.CreateResource(geom.Size{Width: 8 + i, Height: 8}, gpu.FormatRGBA8)
		require.NoError(t, err)
		p.DeleteResource(id)
	}
	stats := p.MemoryStats()
	assert.Equal(t, 2, stats.RecycledCount)
	assert.Equal(t, uint64(2), stats.EvictionCount)
}

func TestEnforceMemoryPolicyInvisible(t *testing.T) {
	p, _ := newTestProvider(t)
	keep, err := p.CreateResource(geom.Size{Width: 8, Height: 8}, gpu.FormatRGBA8)
	require.NoError(t, err)
	drop, err := p.CreateResource(geom.Size{Width: 16, Height: 16}, gpu.FormatRGBA8)
	require.NoError(t, err)
	p.DeleteResource(drop)

	p.EnforceMemoryPolicy(true)
	assert.Equal(t, 1, p.MemoryStats().RecycledCount, "visible keeps recycled textures within budget")

	p.EnforceMemoryPolicy(false)
	stats := p.MemoryStats()
	assert.Equal(t, 0, stats.RecycledCount)
	assert.Equal(t, uint64(8*8*4), stats.UsedBytes)
	assert.True(t, p.Exists(keep))
}

func TestMailboxKeepsProducerAlive(t *testing.T) {
	p, _ := newTestProvider(t)
	id, err := p.CreateResource(geom.Size{Width: 4, Height: 4}, gpu.FormatRGBA8)
	require.NoError(t, err)

	m, err := p.ProduceMailbox(id)
	require.NoError(t, err)
	token, ok := p.MailboxSyncToken(m)
	assert.True(t, ok)
	assert.NotZero(t, token)

	consumer, err := p.ConsumeMailbox(m)
	require.NoError(t, err)
	src, err := p.LockForRead(id)
	require.NoError(t, err)
	p.UnlockForRead(id)
	dst, err := p.LockForRead(consumer)
	require.NoError(t, err)
	p.UnlockForRead(consumer)
	assert.Equal(t, src, dst, "consumer samples the producer texture")

	_, err = p.LockForWrite(consumer)
	assert.Error(t, err, "external resources are read-only")

	p.DeleteResource(id)
	assert.Equal(t, 2, p.ResourceCount(), "producer kept while exported")

	p.DeleteResource(consumer)
	p.ReleaseMailbox(m, false)
	assert.Equal(t, 0, p.ResourceCount())

	_, err = p.ConsumeMailbox(m)
	assert.ErrorIs(t, err, ErrUnknownMailbox)
}

func TestProduceTextureOwnership(t *testing.T) {
	p, ctx := newTestProvider(t)
	size := geom.Size{Width: 2, Height: 2}
	tex, err := ctx.CreateTexture(size, gpu.FormatRGBA8)
	require.NoError(t, err)

	m, token := p.ProduceTexture(tex, size, gpu.FormatRGBA8)
	assert.NotZero(t, token)
	assert.Equal(t, size, ctx.TextureSize(tex))

	p.ReleaseMailbox(m, false)
	assert.True(t, ctx.TextureSize(tex).IsEmpty(), "released mailbox deletes its texture")
}

func TestCreateFromImage(t *testing.T) {
	p, ctx := newTestProvider(t)

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})
	id, err := p.CreateFromImage(img)
	require.NoError(t, err)

	tex, err := p.LockForRead(id)
	require.NoError(t, err)
	p.UnlockForRead(id)
	pix, size, ok := ctx.TexturePixels(tex)
	require.True(t, ok)
	assert.Equal(t, geom.Size{Width: 2, Height: 1}, size)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, pix)

	big := image.NewRGBA(image.Rect(0, 0, 1024, 256))
	id, err = p.CreateFromImage(big)
	require.NoError(t, err)
	got, _ := p.Size(id)
	assert.Equal(t, geom.Size{Width: 512, Height: 128}, got, "scaled to the max texture size")

	_, err = p.CreateFromImage(image.NewRGBA(image.Rectangle{}))
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestUploadBGRA(t *testing.T) {
	p, ctx := newTestProvider(t)
	id, err := p.CreateResource(geom.Size{Width: 1, Height: 1}, gpu.FormatBGRA8)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 10, A: 255})
	require.NoError(t, p.Upload(id, img, geom.Point{}))

	tex, err := p.LockForRead(id)
	require.NoError(t, err)
	p.UnlockForRead(id)
	pix, _, _ := ctx.TexturePixels(tex)
	assert.Equal(t, []byte{255, 10, 0, 255}, pix, "stored channels are RGBA after round trip")
}

func TestScopedResource(t *testing.T) {
	p, _ := newTestProvider(t)
	s := NewScopedResource(p)
	assert.False(t, s.Allocated())

	size := geom.Size{Width: 4, Height: 4}
	require.NoError(t, s.Allocate(size, gpu.FormatRGBA8))
	assert.True(t, s.Allocated())
	assert.Equal(t, size, s.Size())
	assert.True(t, p.Exists(s.ID()))

	assert.ErrorIs(t, s.Allocate(size, gpu.FormatRGBA8), ErrAlreadyAllocated)

	id := s.ID()
	s.Free()
	assert.False(t, s.Allocated())
	assert.False(t, p.Exists(id))
	require.NoError(t, s.Allocate(size, gpu.FormatRGBA8))
}

func TestDestroy(t *testing.T) {
	ctx := soft.New()
	p := NewProvider(ctx)
	id, err := p.CreateResource(geom.Size{Width: 4, Height: 4}, gpu.FormatRGBA8)
	require.NoError(t, err)
	tex, _ := p.LockForRead(id)

	p.Destroy()
	assert.True(t, ctx.TextureSize(tex).IsEmpty())
	_, err = p.CreateResource(geom.Size{Width: 4, Height: 4}, gpu.FormatRGBA8)
	assert.ErrorIs(t, err, ErrProviderDestroyed)
	p.Destroy()
}
