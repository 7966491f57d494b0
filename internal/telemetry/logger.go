// Package telemetry wires up the structured logger every package in
// this module logs through, grounded on the pack's zoekt log package but
// scaled down to what a single-process storage library needs: no
// remote-resource fields, no OpenTelemetry plumbing, just a
// *zap.Logger configured once per process and handed to whatever
// component asks for it.
package telemetry

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Component returns a named child of the process-wide logger (creating a
// default development logger on first use, so tests and short-lived
// tools never have to call Init explicitly).
func Component(name string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = newDefault()
	}
	return global.Named(name)
}

// Init installs a production-mode logger at the given level for the rest
// of the process's lifetime, for callers (cmd/bonsaidemo) that want JSON
// output instead of the human-readable default. It returns a sync func
// that should run before process exit.
func Init(level zapcore.Level) (sync func() error) {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	global = l
	return l.Sync
}

func newDefault() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	l, err := cfg.Build()
	if err != nil {
		// zap's development config never fails to build against stderr;
		// fall back to a no-op logger rather than panic a library caller.
		return zap.NewNop()
	}
	_ = os.Stderr
	return l
}
