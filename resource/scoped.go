package resource

import (
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// ScopedResource owns at most one resource of a Provider. The zero value is
// not usable; create handles with NewScopedResource.
type ScopedResource struct {
	provider *Provider
	id       ID
	size     geom.Size
	format   gpu.Format
}

// NewScopedResource returns an unallocated handle.
func NewScopedResource(p *Provider) *ScopedResource {
	return &ScopedResource{provider: p}
}

// Allocate creates the owned resource.
func (s *ScopedResource) Allocate(size geom.Size, format gpu.Format) error {
	if s.id != InvalidID {
		return ErrAlreadyAllocated
	}
	id, err := s.provider.CreateResource(size, format)
	if err != nil {
		return err
	}
	s.id, s.size, s.format = id, size, format
	return nil
}

// Free deletes the owned resource, if any. The handle can be allocated again.
func (s *ScopedResource) Free() {
	if s.id == InvalidID {
		return
	}
	s.provider.DeleteResource(s.id)
	s.id = InvalidID
	s.size = geom.Size{}
}

// ID returns the owned resource, or InvalidID.
func (s *ScopedResource) ID() ID { return s.id }

// Size returns the allocated size.
func (s *ScopedResource) Size() geom.Size { return s.size }

// Format returns the allocated format.
func (s *ScopedResource) Format() gpu.Format { return s.format }

// Allocated reports whether the handle owns a resource.
func (s *ScopedResource) Allocated() bool { return s.id != InvalidID }
