// Package host exposes the bridge as a flat, process-wide API: one registry,
// one active call target, typed write and read entry points.
//
// It is meant for embedders that cannot hold Go values across calls. Contract
// violations (unknown type codes, a width mismatch, writing past the last
// argument leaf, calling with no target) panic with the structured error.
// Symbol resolution failures and unknown targets are reported as false.
//
// The library is opened lazily on the first BuildFunction, from the path set
// by SetLibraryPath or, failing that, the FFIBRIDGE_LIBRARY environment
// variable. A path ending in .wasm is served by wasmlib, anything else by
// dynlib.
package host

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/bridge"
	"github.com/wippyai/ffi-bridge/dynlib"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/layout"
	"github.com/wippyai/ffi-bridge/types"
	"github.com/wippyai/ffi-bridge/wasmlib"
)

// EnvLibrary names the environment variable read when no library path has
// been set.
const EnvLibrary = "FFIBRIDGE_LIBRARY"

var (
	mu      sync.Mutex
	lib     *lazyLibrary
	reg     *bridge.Registry
	session *bridge.Session
)

// OpenLibrary opens path with the backend its extension selects.
func OpenLibrary(ctx context.Context, path string) (ffibridge.Library, error) {
	if strings.HasSuffix(path, ".wasm") {
		return wasmlib.OpenFile(ctx, path, &wasmlib.Config{EnableWASI: true})
	}
	l, err := dynlib.Open(path)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Init creates the process-wide registry. It is idempotent; every other
// entry point calls it.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	initLocked()
}

func initLocked() {
	if reg != nil {
		return
	}
	lib = &lazyLibrary{}
	// lib is also the registry's layout primitive.
	reg = bridge.New(lib)
	bridge.Logger().Debug("host bridge initialized")
}

// Shutdown drops the registry and the active target and closes a library the
// host opened itself. The next entry point starts from an empty table.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	if lib != nil {
		err = lib.close(ctx)
	}
	lib, reg, session = nil, nil, nil
	return err
}

// UseLibrary serves later function registrations from l. The caller keeps
// ownership of l.
func UseLibrary(l ffibridge.Library) {
	mu.Lock()
	defer mu.Unlock()
	initLocked()
	lib.use(l)
}

// SetLibraryPath sets the library opened on the next registration that needs
// one.
func SetLibraryPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	initLocked()
	lib.setPath(path)
}

// BuildStruct registers a struct of the given field codes and returns its
// new type code.
func BuildStruct(codes []uint32) int32 {
	mu.Lock()
	defer mu.Unlock()
	initLocked()

	code, err := reg.BuildStruct(toCodes(codes))
	if err != nil {
		panic(err)
	}
	return int32(code)
}

// BuildFunction resolves name and registers its signature. It returns false
// when the symbol cannot be resolved.
func BuildFunction(name string, args []uint32, ret uint32) bool {
	mu.Lock()
	defer mu.Unlock()
	initLocked()

	err := reg.BuildFunction(name, toCodes(args), types.Code(ret))
	if err == nil {
		return true
	}
	if errors.HasKind(err, errors.KindResolution) {
		bridge.Logger().Warn("function not registered", zap.String("name", name), zap.Error(err))
		return false
	}
	panic(err)
}

// SetTarget makes name the active call target with fresh buffers. It returns
// false when no function of that name is registered.
func SetTarget(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	initLocked()

	s, err := reg.SetTarget(name)
	if err != nil {
		if errors.HasKind(err, errors.KindNotFound) {
			return false
		}
		panic(err)
	}
	session = s
	return true
}

// Call invokes the active target. Both cursors are rewound afterwards.
func Call() {
	s := current()
	if err := s.Call(context.Background()); err != nil {
		panic(err)
	}
}

func current() *bridge.Session {
	mu.Lock()
	defer mu.Unlock()
	if session == nil {
		panic(errors.NotInitialized(errors.PhaseTarget, "call target"))
	}
	return session
}

func write[T bridge.Primitive](v T) {
	if err := bridge.Write(current(), v); err != nil {
		panic(err)
	}
}

func read[T bridge.Primitive]() T {
	v, err := bridge.Read[T](current())
	if err != nil {
		panic(err)
	}
	return v
}

func toCodes(in []uint32) []types.Code {
	out := make([]types.Code, len(in))
	for i, c := range in {
		out[i] = types.Code(c)
	}
	return out
}

// WriteU8 and its siblings store one value at the write cursor and advance it.
func WriteU8(v uint8)    { write(v) }
func WriteU16(v uint16)  { write(v) }
func WriteU32(v uint32)  { write(v) }
func WriteU64(v uint64)  { write(v) }
func WriteI8(v int8)     { write(v) }
func WriteI16(v int16)   { write(v) }
func WriteI32(v int32)   { write(v) }
func WriteI64(v int64)   { write(v) }
func WriteF32(v float32) { write(v) }
func WriteF64(v float64) { write(v) }
func WritePtr(v uintptr) { write(v) }

// ReadU8 and its siblings load one value at the read cursor and advance it.
func ReadU8() uint8    { return read[uint8]() }
func ReadU16() uint16  { return read[uint16]() }
func ReadU32() uint32  { return read[uint32]() }
func ReadU64() uint64  { return read[uint64]() }
func ReadI8() int8     { return read[int8]() }
func ReadI16() int16   { return read[int16]() }
func ReadI32() int32   { return read[int32]() }
func ReadI64() int64   { return read[int64]() }
func ReadF32() float32 { return read[float32]() }
func ReadF64() float64 { return read[float64]() }
func ReadPtr() uintptr { return read[uintptr]() }

// lazyLibrary opens its library on first use.
type lazyLibrary struct {
	lib   ffibridge.Library
	path  string
	owned bool
	mu    sync.Mutex
}

func (l *lazyLibrary) use(lib ffibridge.Library) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lib, l.owned = lib, false
}

func (l *lazyLibrary) setPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = path
	if l.owned {
		if err := l.lib.Close(context.Background()); err != nil {
			bridge.Logger().Warn("close replaced library", zap.Error(err))
		}
		l.lib, l.owned = nil, false
	}
}

func (l *lazyLibrary) library() (ffibridge.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lib != nil {
		return l.lib, nil
	}

	path := l.path
	if path == "" {
		path = os.Getenv(EnvLibrary)
	}
	if path == "" {
		return nil, errors.NotInitialized(errors.PhaseLoad, "library path (set "+EnvLibrary+")")
	}
	opened, err := OpenLibrary(context.Background(), path)
	if err != nil {
		return nil, err
	}
	bridge.Logger().Info("library loaded", zap.String("path", path))
	l.lib, l.owned = opened, true
	return opened, nil
}

func (l *lazyLibrary) Resolve(name string) (ffibridge.Symbol, error) {
	lib, err := l.library()
	if err != nil {
		return nil, errors.Resolution(name, err)
	}
	return lib.Resolve(name)
}

func (l *lazyLibrary) Prepare(sym ffibridge.Symbol, sig *ffibridge.Signature) (ffibridge.Callable, error) {
	lib, err := l.library()
	if err != nil {
		return nil, err
	}
	return lib.Prepare(sym, sig)
}

// StructLayout lays structs out with the primitive of the library in use.
// Before a library is open, dynlib's libffi layout serves native paths and
// layout.Native serves WebAssembly modules.
func (l *lazyLibrary) StructLayout(fields []types.Info) ([]uint32, types.Info, error) {
	return l.layout().StructLayout(fields)
}

func (l *lazyLibrary) layout() ffibridge.LayoutPrimitive {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.lib.(ffibridge.LayoutPrimitive); ok {
		return p
	}
	if l.lib != nil {
		return layout.Native{}
	}
	path := l.path
	if path == "" {
		path = os.Getenv(EnvLibrary)
	}
	if strings.HasSuffix(path, ".wasm") {
		return layout.Native{}
	}
	return dynlib.Layout{}
}

func (l *lazyLibrary) close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.owned || l.lib == nil {
		return nil
	}
	err := l.lib.Close(ctx)
	l.lib, l.owned = nil, false
	return err
}
