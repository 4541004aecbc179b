package wasmlib

import (
	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/internal/logging"
)

var pkgLogger logging.Var

// Logger returns the logger used while loading and calling modules. The
// default is a no-op logger.
func Logger() *zap.Logger {
	return pkgLogger.Get()
}

// SetLogger replaces the wasmlib logger.
func SetLogger(l *zap.Logger) {
	pkgLogger.Set(l)
}
