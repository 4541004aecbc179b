package dynlib

import (
	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/internal/logging"
)

var pkgLogger logging.Var

// Logger returns the logger for library loads and function binding.
func Logger() *zap.Logger {
	return pkgLogger.Get()
}

// SetLogger replaces the dynlib logger. It is safe to call at any time.
func SetLogger(l *zap.Logger) {
	pkgLogger.Set(l)
}
