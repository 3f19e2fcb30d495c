package resource

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// entry is one row of the resource table.
type entry struct {
	texture     gpu.TextureID
	framebuffer gpu.FramebufferID
	size        geom.Size
	format      gpu.Format

	readLocks   int
	writeLocked bool

	// readFence is the fence current when the last read lock was released.
	readFence Fence

	// exports counts mailboxes produced from this resource.
	exports int

	// external resources read a texture owned by a mailbox producer.
	external bool
	mailbox  Mailbox

	pendingDelete bool
}

func (e *entry) inUse() bool {
	return e.readLocks > 0 || e.writeLocked || e.exports > 0
}

type mailboxEntry struct {
	texture   gpu.TextureID
	size      geom.Size
	format    gpu.Format
	syncToken uint64

	// owner is the producing resource, or InvalidID when the mailbox owns
	// the texture itself.
	owner ID
}

// Option configures a Provider.
type Option func(*providerConfig)

type providerConfig struct {
	budgetMB    int
	maxRecycled int
}

// WithMemoryBudget sets the texture memory budget in megabytes.
// Zero or negative disables the budget.
func WithMemoryBudget(megabytes int) Option {
	return func(c *providerConfig) {
		c.budgetMB = megabytes
	}
}

// WithMaxRecycled sets how many freed textures are kept for reuse.
func WithMaxRecycled(n int) Option {
	return func(c *providerConfig) {
		if n >= 0 {
			c.maxRecycled = n
		}
	}
}

// Provider is the resource table over a gpu.Context.
//
// Provider is safe for concurrent use. Operations that touch the context
// must still follow the context's threading rules.
type Provider struct {
	mu sync.Mutex

	ctx    gpu.Context
	caps   gpu.Capabilities
	budget *textureBudget

	resources map[ID]*entry
	nextID    ID

	mailboxes   map[Mailbox]*mailboxEntry
	nextMailbox Mailbox

	readLockFence Fence
	destroyed     bool
}

// NewProvider creates a resource table drawing textures from ctx.
func NewProvider(ctx gpu.Context, opts ...Option) *Provider {
	cfg := providerConfig{
		budgetMB:    DefaultMemoryBudgetMB,
		maxRecycled: DefaultMaxRecycled,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	var budgetBytes uint64
	if cfg.budgetMB > 0 {
		//nolint:gosec // G115: budgetMB checked positive
		budgetBytes = uint64(cfg.budgetMB) * 1024 * 1024
	}
	return &Provider{
		ctx:           ctx,
		caps:          ctx.Capabilities(),
		budget:        newTextureBudget(ctx, budgetBytes, cfg.maxRecycled),
		resources:     make(map[ID]*entry),
		mailboxes:     make(map[Mailbox]*mailboxEntry),
		readLockFence: PassedFence,
	}
}

// Context returns the context textures are allocated from.
func (p *Provider) Context() gpu.Context {
	return p.ctx
}

// MaxTextureSize returns the largest supported texture dimension.
func (p *Provider) MaxTextureSize() int {
	return p.caps.MaxTextureSize
}

// BestTextureFormat returns the preferred render target format.
func (p *Provider) BestTextureFormat() gpu.Format {
	return p.caps.BestTextureFormat
}

func (p *Provider) validSize(size geom.Size) bool {
	return !size.IsEmpty() && size.Width <= p.caps.MaxTextureSize && size.Height <= p.caps.MaxTextureSize
}

// CreateResource allocates a resource with undefined contents.
func (p *Provider) CreateResource(size geom.Size, format gpu.Format) (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked(size, format)
}

func (p *Provider) createLocked(size geom.Size, format gpu.Format) (ID, error) {
	if p.destroyed {
		return InvalidID, ErrProviderDestroyed
	}
	if !p.validSize(size) {
		return InvalidID, fmt.Errorf("%w: %v (max %d)", ErrInvalidSize, size, p.caps.MaxTextureSize)
	}
	tex, err := p.budget.alloc(size, format)
	if err != nil {
		return InvalidID, err
	}
	p.nextID++
	id := p.nextID
	p.resources[id] = &entry{texture: tex, size: size, format: format}
	return id, nil
}

// CreateFromImage uploads img into a new RGBA resource. Images larger than
// MaxTextureSize are scaled down to fit, preserving aspect ratio.
func (p *Provider) CreateFromImage(img image.Image) (ID, error) {
	b := img.Bounds()
	size := geom.Size{Width: b.Dx(), Height: b.Dy()}
	if size.IsEmpty() {
		return InvalidID, fmt.Errorf("%w: empty image", ErrInvalidSize)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	if maxSize := p.caps.MaxTextureSize; size.Width > maxSize || size.Height > maxSize {
		scale := float64(maxSize) / float64(max(size.Width, size.Height))
		size.Width = max(1, int(float64(size.Width)*scale))
		size.Height = max(1, int(float64(size.Height)*scale))
		dst = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		compositor.Logger().Debug("resource: scaled oversized image",
			"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), "to", size.String())
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}

	id, err := p.CreateResource(size, gpu.FormatRGBA8)
	if err != nil {
		return InvalidID, err
	}
	if err := p.Upload(id, dst, geom.Point{}); err != nil {
		p.DeleteResource(id)
		return InvalidID, err
	}
	return id, nil
}

// Upload copies premultiplied src into the resource with its top-left
// corner at dst, converting to the resource's format.
func (p *Provider) Upload(id ID, src *image.RGBA, dst geom.Point) error {
	p.mu.Lock()
	e, ok := p.resources[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownResource, id)
	}
	if e.external {
		return fmt.Errorf("resource: upload to external resource %d", id)
	}

	b := src.Bounds()
	rect := geom.XYWH(dst.X, dst.Y, b.Dx(), b.Dy())
	pix := src.Pix[src.PixOffset(b.Min.X, b.Min.Y):]
	stride := src.Stride
	if e.format == gpu.FormatBGRA8 {
		converted := make([]byte, b.Dx()*b.Dy()*4)
		for y := range b.Dy() {
			copy(converted[y*b.Dx()*4:(y+1)*b.Dx()*4], pix[y*stride:y*stride+b.Dx()*4])
		}
		gpu.SwizzleRB(converted)
		pix, stride = converted, b.Dx()*4
	}
	return p.ctx.UploadTexture(e.texture, rect, pix, stride)
}

// DeleteResource removes id from the table. Deletion is deferred while the
// resource is locked, exported, or its last read fence has not passed.
func (p *Provider) DeleteResource(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return
	}
	e.pendingDelete = true
	p.maybeDeleteLocked(id, e)
}

func (p *Provider) maybeDeleteLocked(id ID, e *entry) {
	if !e.pendingDelete || e.inUse() {
		return
	}
	if e.readFence != nil && !e.readFence.HasPassed() {
		return
	}
	if e.framebuffer != gpu.InvalidID {
		p.ctx.DeleteFramebuffer(e.framebuffer)
	}
	if !e.external {
		p.budget.release(e.texture, e.size, e.format)
	}
	delete(p.resources, id)
}

// CollectGarbage deletes resources whose deferred deletion can now proceed.
func (p *Provider) CollectGarbage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.resources {
		p.maybeDeleteLocked(id, e)
	}
}

// Exists reports whether id is in the table and not pending deletion.
func (p *Provider) Exists(id ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	return ok && !e.pendingDelete
}

// Size returns the resource's texture size.
func (p *Provider) Size(id ID) (geom.Size, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return geom.Size{}, false
	}
	return e.size, true
}

// Format returns the resource's texture format.
func (p *Provider) Format(id ID) (gpu.Format, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return gpu.FormatRGBA8, false
	}
	return e.format, true
}

// ResourceCount returns the number of table entries, including entries
// pending deletion.
func (p *Provider) ResourceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}

// LockForRead takes a shared read lock and returns the texture to sample.
func (p *Provider) LockForRead(id ID) (gpu.TextureID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return InvalidTexture, fmt.Errorf("%w: %d", ErrUnknownResource, id)
	}
	if e.writeLocked {
		return InvalidTexture, fmt.Errorf("%w: %d is write locked", ErrLocked, id)
	}
	e.readLocks++
	return e.texture, nil
}

// UnlockForRead releases a read lock. The resource remembers the current
// read lock fence so a deferred deletion waits for the GPU.
func (p *Provider) UnlockForRead(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok || e.readLocks == 0 {
		compositor.Logger().Error("resource: unbalanced read unlock", "id", id)
		return
	}
	e.readLocks--
	e.readFence = p.readLockFence
	p.maybeDeleteLocked(id, e)
}

// LockForWrite takes the exclusive write lock and returns a framebuffer
// rendering into the resource.
func (p *Provider) LockForWrite(id ID) (gpu.FramebufferID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return gpu.DefaultFramebuffer, fmt.Errorf("%w: %d", ErrUnknownResource, id)
	}
	if e.external {
		return gpu.DefaultFramebuffer, fmt.Errorf("resource: write lock on external resource %d", id)
	}
	if e.writeLocked || e.readLocks > 0 {
		return gpu.DefaultFramebuffer, fmt.Errorf("%w: %d", ErrLocked, id)
	}
	if e.framebuffer == gpu.InvalidID {
		fb, err := p.ctx.CreateFramebuffer(e.texture)
		if err != nil {
			return gpu.DefaultFramebuffer, err
		}
		e.framebuffer = fb
	}
	e.writeLocked = true
	return e.framebuffer, nil
}

// UnlockForWrite releases the write lock.
func (p *Provider) UnlockForWrite(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok || !e.writeLocked {
		compositor.Logger().Error("resource: unbalanced write unlock", "id", id)
		return
	}
	e.writeLocked = false
	p.maybeDeleteLocked(id, e)
}

// IsLocked reports whether any lock is held on id.
func (p *Provider) IsLocked(id ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	return ok && (e.readLocks > 0 || e.writeLocked)
}

// SetReadLockFence installs the fence recorded by subsequent read unlocks.
// A nil fence is treated as already passed.
func (p *Provider) SetReadLockFence(f Fence) {
	if f == nil {
		f = PassedFence
	}
	p.mu.Lock()
	p.readLockFence = f
	p.mu.Unlock()
}

// ProduceMailbox names the resource's texture for another consumer. The
// resource is kept alive until the mailbox is released.
func (p *Provider) ProduceMailbox(id ID) (Mailbox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownResource, id)
	}
	e.exports++
	p.nextMailbox++
	m := p.nextMailbox
	p.mailboxes[m] = &mailboxEntry{
		texture:   e.texture,
		size:      e.size,
		format:    e.format,
		syncToken: p.ctx.InsertSyncToken(),
		owner:     id,
	}
	return m, nil
}

// ProduceTexture transfers ownership of tex to a new mailbox. The texture
// is deleted when the mailbox is released.
func (p *Provider) ProduceTexture(tex gpu.TextureID, size geom.Size, format gpu.Format) (Mailbox, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMailbox++
	m := p.nextMailbox
	token := p.ctx.InsertSyncToken()
	p.mailboxes[m] = &mailboxEntry{texture: tex, size: size, format: format, syncToken: token}
	return m, token
}

// ConsumeMailbox creates an external resource reading the mailbox texture.
func (p *Provider) ConsumeMailbox(m Mailbox) (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mb, ok := p.mailboxes[m]
	if !ok {
		return InvalidID, fmt.Errorf("%w: %d", ErrUnknownMailbox, m)
	}
	p.nextID++
	id := p.nextID
	p.resources[id] = &entry{
		texture:  mb.texture,
		size:     mb.size,
		format:   mb.format,
		external: true,
		mailbox:  m,
	}
	return id, nil
}

// MailboxSyncToken returns the sync token recorded when m was produced.
func (p *Provider) MailboxSyncToken(m Mailbox) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mb, ok := p.mailboxes[m]
	if !ok {
		return 0, false
	}
	return mb.syncToken, true
}

// ReleaseMailbox drops the mailbox. The producing resource may then be
// deleted; a texture owned by the mailbox is deleted immediately, or leaked
// to the context's teardown when lost is true.
func (p *Provider) ReleaseMailbox(m Mailbox, lost bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mb, ok := p.mailboxes[m]
	if !ok {
		return
	}
	delete(p.mailboxes, m)
	if mb.owner == InvalidID {
		if !lost {
			p.ctx.DeleteTexture(mb.texture)
		}
		return
	}
	if e, ok := p.resources[mb.owner]; ok {
		e.exports--
		p.maybeDeleteLocked(mb.owner, e)
	}
}

// MemoryStats returns current texture memory statistics.
func (p *Provider) MemoryStats() MemoryStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.budget.stats()
}

// EnforceMemoryPolicy applies the budget for the given visibility. An
// invisible compositor keeps no recycled textures.
func (p *Provider) EnforceMemoryPolicy(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if visible {
		if p.budget.budgetBytes > 0 {
			p.budget.evictUntil(p.budget.budgetBytes)
		}
		return
	}
	p.budget.evictUntil(p.budget.usedBytes - p.budget.recycledBytes)
}

// Destroy deletes every texture the table owns. Locks still held are
// ignored.
func (p *Provider) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	for id, e := range p.resources {
		if e.framebuffer != gpu.InvalidID {
			p.ctx.DeleteFramebuffer(e.framebuffer)
		}
		if !e.external {
			p.budget.destroy(e.texture, e.size, e.format)
		}
		delete(p.resources, id)
	}
	for m, mb := range p.mailboxes {
		if mb.owner == InvalidID {
			p.ctx.DeleteTexture(mb.texture)
		}
		delete(p.mailboxes, m)
	}
	p.budget.evictUntil(0)
	p.destroyed = true
}
