// Package framework activates the external casting framework exactly once
// and hands out the configured SDK handle to every caller.
package framework

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"go2tv.app/castsync/coordinator"
)

// AutoJoinPolicy governs whether an existing session is silently rejoined.
type AutoJoinPolicy string

// AutoJoinOriginScoped rejoins a session created from the same origin
// without user action.
const AutoJoinOriginScoped AutoJoinPolicy = "ORIGIN_SCOPED"

// Config carries the fixed framework configuration applied on activation.
type Config struct {
	AppID    string
	AutoJoin AutoJoinPolicy
}

// Runtime is the external runtime the loader activates. Implementations live
// in castprotocol; tests provide fakes.
type Runtime interface {
	// Bootstrap performs the one-time side-effecting activation and signals
	// readiness through onAvailable. The hook is handed over before the
	// side effect starts, so a fast runtime cannot race the registration.
	Bootstrap(onAvailable func(available bool)) error
	// Configure applies the application identifier and auto-join policy
	// once the runtime signaled availability.
	Configure(Config) (coordinator.SDK, error)
}

// Loader memoizes the framework activation. Any number of callers, concurrent
// or sequential, share the same in-flight or completed result; the bootstrap
// side effect happens exactly once. If the runtime only ever signals
// availability=false the shared result never resolves and callers return on
// their own context.
type Loader struct {
	runtime Runtime
	cfg     Config

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	mu      sync.Mutex
	started bool
	ready   chan struct{}
	resolve sync.Once
	sdk     coordinator.SDK
	err     error
}

func NewLoader(rt Runtime, cfg Config) *Loader {
	return &Loader{
		runtime: rt,
		cfg:     cfg,
		ready:   make(chan struct{}),
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (l *Loader) Log() *zerolog.Logger {
	if l.LogOutput != nil {
		l.initLogOnce.Do(func() {
			l.Logger = zerolog.New(l.LogOutput).With().Timestamp().Logger()
		})
	}
	return &l.Logger
}

// Load activates the framework on first call and returns the configured SDK
// handle. Safe for concurrent use.
func (l *Loader) Load(ctx context.Context) (coordinator.SDK, error) {
	l.mu.Lock()
	if !l.started {
		l.started = true
		l.Log().Debug().Str("Method", "Load").Str("AppID", l.cfg.AppID).Msg("bootstrapping casting framework")
		if err := l.runtime.Bootstrap(l.handleAvailability); err != nil {
			l.fail(err)
		}
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ready:
		return l.sdk, l.err
	}
}

func (l *Loader) handleAvailability(available bool) {
	if !available {
		// The runtime may flip to available later; until then callers
		// keep waiting on their own contexts.
		l.Log().Debug().Str("Method", "Load").Msg("runtime reported unavailable")
		return
	}

	l.resolve.Do(func() {
		sdk, err := l.runtime.Configure(l.cfg)
		if err != nil {
			l.Log().Error().Str("Method", "Load").Err(err).Msg("framework configuration failed")
			l.err = err
		} else {
			l.Log().Debug().Str("Method", "Load").Msg("framework ready")
			l.sdk = sdk
		}
		close(l.ready)
	})
}

func (l *Loader) fail(err error) {
	l.resolve.Do(func() {
		l.Log().Error().Str("Method", "Load").Err(err).Msg("framework bootstrap failed")
		l.err = err
		close(l.ready)
	})
}
