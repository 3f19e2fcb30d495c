package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/output"
)

// BackendName is the name the hal surface registers under.
const BackendName = "hal"

func init() {
	output.Register(BackendName, 100, newOutput, hardwareAvailable)
}

// hardwareAvailable reports whether a backend other than the empty one is
// registered. The empty backend produces no pixels, so it is never picked
// automatically.
func hardwareAvailable() bool {
	for _, b := range hal.AvailableBackends() {
		if b != gputypes.BackendEmpty {
			return true
		}
	}
	return false
}

// newOutput creates an offscreen surface over the best hal device.
func newOutput(opts output.Options) (output.Surface, error) {
	if opts.Size.IsEmpty() {
		return nil, fmt.Errorf("halgpu: surface size %v", opts.Size)
	}
	ctx, err := OpenBest(WithSize(opts.Size.Width, opts.Size.Height))
	if err != nil {
		return nil, err
	}
	return output.NewOffscreen(ctx, output.WithPartialSwap(opts.PartialSwap)), nil
}
