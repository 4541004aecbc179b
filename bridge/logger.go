package bridge

import (
	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/internal/logging"
)

var pkgLogger logging.Var

// Logger returns the logger registries use when created without WithLogger.
// It discards everything until SetLogger is called.
func Logger() *zap.Logger {
	return pkgLogger.Get()
}

// SetLogger sets the default registry logger. Registries capture it when
// they are created, so set it first.
func SetLogger(l *zap.Logger) {
	pkgLogger.Set(l)
}
