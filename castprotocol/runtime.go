package castprotocol

import (
	"context"
	"fmt"
	"sync"

	"go2tv.app/castsync/coordinator"
	"go2tv.app/castsync/framework"
)

// Runtime implements framework.Runtime over the statically linked
// go-chromecast stack. Availability is signaled as soon as the hook is
// registered; there is no runtime to download.
type Runtime struct{}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) Bootstrap(onAvailable func(available bool)) error {
	// Signal asynchronously so the loader observes the same ordering a slow
	// runtime would produce.
	go onAvailable(true)
	return nil
}

func (r *Runtime) Configure(cfg framework.Config) (coordinator.SDK, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("castprotocol configure: empty application id")
	}
	return &SDK{appID: cfg.AppID, autoJoin: cfg.AutoJoin}, nil
}

// SDK is the configured framework handle. It owns the single current session
// and fans the coordinator's handlers out to protocol events.
type SDK struct {
	appID    string
	autoJoin framework.AutoJoinPolicy

	mu          sync.Mutex
	cfg         coordinator.APIConfig
	initialized bool
	current     *Session
}

func (s *SDK) Available() bool {
	return true
}

func (s *SDK) Initialize(cfg coordinator.APIConfig) error {
	s.mu.Lock()
	s.cfg = cfg
	s.initialized = true
	s.mu.Unlock()

	if cfg.OnSuccess != nil {
		cfg.OnSuccess()
	}
	return nil
}

// CurrentSession returns the live session, if any.
func (s *SDK) CurrentSession() (coordinator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}

// NotifyReceivers feeds an availability edge from the devices watcher into
// the registered receiver listener.
func (s *SDK) NotifyReceivers(available bool) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if cfg.ReceiverListener == nil {
		return
	}
	av := coordinator.ReceiverUnavailable
	if available {
		av = coordinator.ReceiverAvailable
	}
	cfg.ReceiverListener(av)
}

// RequestSession connects to the receiver at deviceAddr and hands the session
// to the registered session listener. When the receiver is already running a
// session started by us and the auto-join policy allows it, that session is
// rejoined rather than replaced; the listener then sees its attached media.
func (s *SDK) RequestSession(ctx context.Context, deviceAddr string) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return fmt.Errorf("castprotocol: request session before initialize")
	}
	cfg := s.cfg
	s.mu.Unlock()

	client, err := NewCastClient(deviceAddr)
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}

	rejoin := s.autoJoin == framework.AutoJoinOriginScoped && client.HasMedia()
	session := newSession(ctx, client, rejoin)

	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	session.onEnded = func() {
		s.mu.Lock()
		if s.current == session {
			s.current = nil
		}
		s.mu.Unlock()
	}

	if cfg.SessionListener != nil {
		cfg.SessionListener(session)
	}
	return nil
}
