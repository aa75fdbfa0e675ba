package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// NewObserverLogger creates a logger that records entries in memory, for
// asserting on log output in tests.
func NewObserverLogger(level string) (Logger, *observer.ObservedLogs) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	observerCore, logs := observer.New(lvl)
	return &ZapLogger{zap.New(observerCore)}, logs
}
