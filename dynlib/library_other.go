//go:build !((darwin || freebsd || linux) && (amd64 || arm64))

package dynlib

import (
	"context"
	"runtime"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/layout"
)

// Library is unavailable on this platform.
type Library struct{}

// Layout falls back to the built-in C layout where libffi is not bound.
type Layout struct {
	layout.Native
}

// Open always fails on this platform.
func Open(path string) (*Library, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "dynamic libraries on "+runtime.GOOS+"/"+runtime.GOARCH)
}

// OpenFirst always fails on this platform.
func OpenFirst(paths ...string) (*Library, error) {
	return Open("")
}

// Path returns an empty string.
func (l *Library) Path() string { return "" }

// Resolve always fails on this platform.
func (l *Library) Resolve(name string) (ffibridge.Symbol, error) {
	return nil, errors.Resolution(name, errors.Unsupported(errors.PhaseResolve, runtime.GOOS))
}

// Prepare always fails on this platform.
func (l *Library) Prepare(sym ffibridge.Symbol, sig *ffibridge.Signature) (ffibridge.Callable, error) {
	return nil, errors.Unsupported(errors.PhaseInvoke, runtime.GOOS)
}

// Close is a no-op.
func (l *Library) Close(context.Context) error { return nil }
