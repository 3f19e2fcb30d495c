// Package resource owns the GPU textures the compositor draws from and into.
//
// A [Provider] is a table of resources addressed by [ID]. Each entry owns a
// texture of the underlying gpu.Context, tracks read and write locks, and is
// deleted only once no lock is held and the GPU has finished reading it, as
// reported by the [Fence] installed with [Provider.SetReadLockFence].
//
// Freed textures are recycled for later allocations of the same size and
// format, within a memory budget enforced in LRU order.
//
// [ScopedResource] is an owning handle used for render pass textures: it
// allocates one resource and frees it explicitly.
//
// Mailboxes transfer a texture between consumers: [Provider.ProduceMailbox]
// names a resource's texture, [Provider.ConsumeMailbox] creates an external
// resource that reads the same texture.
package resource

import (
	"errors"

	"github.com/gogpu/compositor/gpu"
)

// ID identifies a resource within a Provider. Zero is invalid.
type ID uint32

// InvalidID is the zero ID.
const InvalidID ID = 0

// InvalidTexture is the zero texture handle.
const InvalidTexture gpu.TextureID = gpu.InvalidID

// Mailbox names a texture shared between consumers. Zero is invalid.
type Mailbox uint64

// Errors returned by the Provider.
var (
	// ErrUnknownResource is returned for IDs that are not in the table.
	ErrUnknownResource = errors.New("resource: unknown resource")

	// ErrLocked is returned when a lock conflicts with an existing one.
	ErrLocked = errors.New("resource: resource is locked")

	// ErrInvalidSize is returned for empty sizes or sizes beyond MaxTextureSize.
	ErrInvalidSize = errors.New("resource: invalid size")

	// ErrMemoryBudgetExceeded is returned when an allocation does not fit
	// the budget even after evicting recycled textures.
	ErrMemoryBudgetExceeded = errors.New("resource: memory budget exceeded")

	// ErrUnknownMailbox is returned when consuming a released mailbox.
	ErrUnknownMailbox = errors.New("resource: unknown mailbox")

	// ErrAlreadyAllocated is returned by ScopedResource.Allocate when the
	// handle already owns a resource.
	ErrAlreadyAllocated = errors.New("resource: already allocated")

	// ErrProviderDestroyed is returned after Destroy.
	ErrProviderDestroyed = errors.New("resource: provider destroyed")
)

// Fence reports whether the GPU has finished the commands issued before it
// was created.
type Fence interface {
	HasPassed() bool

	// Wait blocks until HasPassed returns true.
	Wait()
}

type passedFence struct{}

func (passedFence) HasPassed() bool { return true }
func (passedFence) Wait()           {}

// PassedFence is a Fence that has always passed.
var PassedFence Fence = passedFence{}
