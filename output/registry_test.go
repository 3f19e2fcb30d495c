package output_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu/soft"
	"github.com/gogpu/compositor/output"
)

func offscreenFactory(opts output.Options) (output.Surface, error) {
	return output.NewOffscreen(soft.New(soft.WithSize(opts.Size.Width, opts.Size.Height))), nil
}

func TestRegistryRegister(t *testing.T) {
	r := output.NewRegistry()
	r.Register("test", 50, offscreenFactory, nil)

	b, ok := r.Get("test")
	if !ok {
		t.Fatal("registered backend not found")
	}
	if b.Name != "test" || b.Priority != 50 {
		t.Errorf("Get() = %+v", b)
	}
	if !b.Available() {
		t.Error("nil Available should mean always available")
	}

	r.Unregister("test")
	if _, ok := r.Get("test"); ok {
		t.Error("backend still registered after Unregister")
	}
}

func TestRegistryOrder(t *testing.T) {
	r := output.NewRegistry()
	r.Register("low", 10, offscreenFactory, nil)
	r.Register("high", 100, offscreenFactory, nil)
	r.Register("mid-b", 50, offscreenFactory, nil)
	r.Register("mid-a", 50, offscreenFactory, nil)
	r.Register("missing", 200, offscreenFactory, func() bool { return false })

	if got, want := r.List(), []string{"missing", "high", "mid-a", "mid-b", "low"}; !slices.Equal(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if got, want := r.Available(), []string{"high", "mid-a", "mid-b", "low"}; !slices.Equal(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}
}

func TestRegistryNewByName(t *testing.T) {
	r := output.NewRegistry()
	r.Register("off", 0, offscreenFactory, func() bool { return false })

	_, err := r.NewByName("nope", output.Options{})
	var notFound *output.BackendNotFoundError
	if !errors.As(err, &notFound) || notFound.Name != "nope" {
		t.Errorf("NewByName(nope) error = %v", err)
	}

	_, err = r.NewByName("off", output.Options{})
	var unavailable *output.BackendUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("NewByName(off) error = %v, want BackendUnavailableError", err)
	}
}

func TestRegistryNewFallsBack(t *testing.T) {
	r := output.NewRegistry()
	if _, err := r.New(output.Options{}); !errors.Is(err, output.ErrNoBackendAvailable) {
		t.Errorf("New() on empty registry error = %v", err)
	}

	broken := errors.New("no device")
	r.Register("gpu", 100, func(output.Options) (output.Surface, error) { return nil, broken }, nil)
	r.Register("cpu", 10, offscreenFactory, nil)

	s, err := r.New(output.Options{Size: geom.Size{Width: 2, Height: 2}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Destroy()
	if _, ok := s.(*output.Offscreen); !ok {
		t.Errorf("New() = %T, want the cpu surface", s)
	}

	r.Unregister("cpu")
	if _, err := r.New(output.Options{}); !errors.Is(err, broken) {
		t.Errorf("New() error = %v, want the factory error", err)
	}
}

func TestSoftBackendRegistered(t *testing.T) {
	if !slices.Contains(output.List(), soft.BackendName) {
		t.Fatalf("List() = %v, missing %q", output.List(), soft.BackendName)
	}
	s, err := output.NewByName(soft.BackendName, output.Options{Size: geom.Size{Width: 3, Height: 2}, PartialSwap: true})
	if err != nil {
		t.Fatalf("NewByName() error = %v", err)
	}
	defer s.Destroy()
	if !s.Capabilities().PartialSwap {
		t.Error("partial swap option ignored")
	}
	if _, err := output.NewByName(soft.BackendName, output.Options{}); err == nil {
		t.Error("empty size should fail")
	}
}
