//go:build (darwin || freebsd || linux) && (amd64 || arm64)

package dynlib

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
)

// Library is a shared library opened with dlopen.
type Library struct {
	path   string
	handle uintptr
	mu     sync.Mutex
}

// Symbol is an exported function address.
type Symbol struct {
	name string
	addr uintptr
}

// Name returns the symbol name.
func (s *Symbol) Name() string { return s.name }

// Addr returns the resolved address.
func (s *Symbol) Addr() uintptr { return s.addr }

// Open loads the shared library at path. Symbols are bound immediately and
// made available to libraries loaded later.
func Open(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("purego dlopen %s", path), err)
	}
	Logger().Debug("library opened", zap.String("path", path))
	return &Library{path: path, handle: handle}, nil
}

// OpenFirst opens the first path that loads. It is meant for system
// libraries whose file name differs between platforms.
func OpenFirst(paths ...string) (*Library, error) {
	var lastErr error
	for _, p := range paths {
		lib, err := Open(p)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.InvalidInput(errors.PhaseLoad, "no library paths given")
	}
	return nil, lastErr
}

// Path returns the path the library was opened from.
func (l *Library) Path() string {
	return l.path
}

// Resolve looks name up with dlsym.
func (l *Library) Resolve(name string) (ffibridge.Symbol, error) {
	l.mu.Lock()
	handle := l.handle
	l.mu.Unlock()

	if handle == 0 {
		return nil, errors.Resolution(name, errors.NotInitialized(errors.PhaseResolve, "library "+l.path))
	}
	addr, err := purego.Dlsym(handle, name)
	if err != nil {
		return nil, errors.Resolution(name, err)
	}
	if addr == 0 {
		return nil, errors.Resolution(name, fmt.Errorf("symbol %s resolved to nil", name))
	}
	return &Symbol{name: name, addr: addr}, nil
}

// Prepare builds a libffi call interface for sig and binds it to sym.
// Struct parameters and results are passed by value with the ABI's rules.
func (l *Library) Prepare(sym ffibridge.Symbol, sig *ffibridge.Signature) (ffibridge.Callable, error) {
	s, ok := sym.(*Symbol)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseInvoke, fmt.Sprintf("symbol %q was not resolved by dynlib", sym.Name()))
	}

	params := make([]types.Layout, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Type
	}
	c, err := newCallable(s.name, s.addr, params, sig.Result.Type)
	if err != nil {
		kind := errors.KindUnsupported
		if errors.HasKind(err, errors.KindLayout) {
			kind = errors.KindLayout
		}
		return nil, errors.New(errors.PhaseInvoke, kind).
			Path(s.name).
			Detail("signature %s", sig).
			Cause(err).
			Build()
	}

	Logger().Debug("function bound",
		zap.String("name", s.name),
		zap.Stringer("signature", sig))
	return c, nil
}

// StructLayout lays structs out with Layout, so a registry built on the
// library agrees with the calls it prepares.
func (l *Library) StructLayout(fields []types.Info) ([]uint32, types.Info, error) {
	return Layout{}.StructLayout(fields)
}

// Close unloads the library. Symbols resolved from it must not be called
// afterwards.
func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	if err != nil {
		return errors.Load(fmt.Sprintf("purego dlclose %s", l.path), err)
	}
	return nil
}
