// Package nativetest provides an in-process library whose functions are Go
// closures over raw argument and return pointers. It stands in for a loaded
// shared library in tests.
package nativetest

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	ffibridge "github.com/wippyai/ffi-bridge"
)

// Func receives one pointer per declared argument and writes its result to ret.
type Func func(sig *ffibridge.Signature, ret unsafe.Pointer, args []unsafe.Pointer)

type symbol struct {
	fn   Func
	name string
}

func (s *symbol) Name() string { return s.name }

// Library is a map of named Go functions implementing ffibridge.Library.
type Library struct {
	funcs    map[string]Func
	prepared map[string]int
	calls    map[string]int
	mu       sync.Mutex
	closed   bool
}

// New creates an empty library.
func New() *Library {
	return &Library{
		funcs:    make(map[string]Func),
		prepared: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// Define adds or replaces a function.
func (l *Library) Define(name string, fn Func) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.funcs[name] = fn
	return l
}

// Resolve implements ffibridge.Loader.
func (l *Library) Resolve(name string) (ffibridge.Symbol, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("library closed")
	}
	fn, ok := l.funcs[name]
	if !ok {
		return nil, fmt.Errorf("undefined symbol: %s", name)
	}
	return &symbol{name: name, fn: fn}, nil
}

// Prepare implements ffibridge.CallInterface.
func (l *Library) Prepare(sym ffibridge.Symbol, sig *ffibridge.Signature) (ffibridge.Callable, error) {
	s, ok := sym.(*symbol)
	if !ok {
		return nil, fmt.Errorf("foreign symbol %T", sym)
	}
	l.mu.Lock()
	l.prepared[s.name]++
	l.mu.Unlock()
	return &callable{lib: l, sym: s, sig: sig}, nil
}

// Close implements ffibridge.Library.
func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Prepared reports how many times name was prepared.
func (l *Library) Prepared(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prepared[name]
}

// Calls reports how many times name was called.
func (l *Library) Calls(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[name]
}

type callable struct {
	lib *Library
	sym *symbol
	sig *ffibridge.Signature
}

func (c *callable) Call(ctx context.Context, ret unsafe.Pointer, args []unsafe.Pointer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lib.mu.Lock()
	c.lib.calls[c.sym.name]++
	c.lib.mu.Unlock()
	c.sym.fn(c.sig, ret, args)
	return nil
}

// Bytes views n bytes at p.
func Bytes(p unsafe.Pointer, n uint32) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// Identity copies the first argument to the result. The first argument's
// type must match the return type.
func Identity(sig *ffibridge.Signature, ret unsafe.Pointer, args []unsafe.Pointer) {
	n := sig.Result.Type.Info.Size
	copy(Bytes(ret, n), Bytes(args[0], n))
}

// Concat copies every argument's leaves into the result's leaves, in order.
// The result must have as many leaves, of the same widths, as all arguments
// together.
func Concat(sig *ffibridge.Signature, ret unsafe.Pointer, args []unsafe.Pointer) {
	out := sig.Result.Leaves
	k := 0
	for i, p := range sig.Params {
		for _, l := range p.Leaves {
			w := l.Kind.Info().Size
			src := Bytes(unsafe.Add(args[i], l.Offset), w)
			copy(Bytes(unsafe.Add(ret, out[k].Offset), w), src)
			k++
		}
	}
}

// StructA mirrors struct { uint32 a; uint16 b; uint32 c; uint16 d; }.
type StructA struct {
	A uint32
	B uint16
	C uint32
	D uint16
}

// SwapStructA swaps the halves of a StructA: {c, d, a, b}.
func SwapStructA(_ *ffibridge.Signature, ret unsafe.Pointer, args []unsafe.Pointer) {
	in := *(*StructA)(args[0])
	*(*StructA)(ret) = StructA{A: in.C, B: in.D, C: in.A, D: in.B}
}

// AddI32 returns the sum of two int32 arguments.
func AddI32(_ *ffibridge.Signature, ret unsafe.Pointer, args []unsafe.Pointer) {
	*(*int32)(ret) = *(*int32)(args[0]) + *(*int32)(args[1])
}
