package bridge

import (
	"sync"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
)

// Function is a registered native function. It is immutable once registered;
// the prepared callable is bound lazily on first call and then reused.
type Function struct {
	Symbol ffibridge.Symbol
	sig    *ffibridge.Signature

	callable    ffibridge.Callable
	prepareErr  error
	prepareOnce sync.Once

	Name   string
	Args   []types.Descriptor
	Return types.Descriptor
}

// Signature returns the resolved signature.
func (f *Function) Signature() *ffibridge.Signature {
	return f.sig
}

func (f *Function) prepare(c ffibridge.CallInterface) (ffibridge.Callable, error) {
	f.prepareOnce.Do(func() {
		if c == nil {
			f.prepareErr = errors.NotInitialized(errors.PhaseInvoke, "call interface")
			return
		}
		callable, err := c.Prepare(f.Symbol, f.sig)
		if err != nil {
			f.prepareErr = errors.New(errors.PhaseInvoke, errors.KindInvocation).
				Path(f.Name).
				Detail("prepare call signature %s", f.sig).
				Cause(err).
				Build()
			return
		}
		f.callable = callable
	})
	return f.callable, f.prepareErr
}
