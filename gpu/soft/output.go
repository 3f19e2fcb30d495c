package soft

import (
	"fmt"

	"github.com/gogpu/compositor/output"
)

// BackendName is the name the software surface registers under.
const BackendName = "soft"

func init() {
	output.Register(BackendName, 10, newOutput, nil)
}

// newOutput creates an offscreen surface over a software context.
func newOutput(opts output.Options) (output.Surface, error) {
	if opts.Size.IsEmpty() {
		return nil, fmt.Errorf("soft: surface size %v", opts.Size)
	}
	ctx := New(WithSize(opts.Size.Width, opts.Size.Height), WithWorkers(opts.Workers))
	return output.NewOffscreen(ctx, output.WithPartialSwap(opts.PartialSwap)), nil
}
