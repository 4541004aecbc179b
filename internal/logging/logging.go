// Package logging holds the package-level zap loggers of the bridge
// packages.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var nop = zap.NewNop()

// Var is a replaceable logger. The zero value logs nothing.
type Var struct {
	l atomic.Pointer[zap.Logger]
}

// Get returns the logger last passed to Set, or a no-op logger.
func (v *Var) Get() *zap.Logger {
	if l := v.l.Load(); l != nil {
		return l
	}
	return nop
}

// Set replaces the logger. A nil logger restores the no-op default.
func (v *Var) Set(l *zap.Logger) {
	v.l.Store(l)
}
