package castprotocol

import (
	"context"
	"sync"
	"time"

	"go2tv.app/castsync/coordinator"
)

const (
	sessionPollInterval = 4 * time.Second
	// Consecutive status failures before the session is declared stopped.
	sessionMaxPollErrors = 3
)

// Session implements coordinator.Session over a connected CastClient. A
// background poll loop translates receiver status into the listener calls
// the coordinator expects.
type Session struct {
	client *CastClient

	mu        sync.Mutex
	statusFns []func(status string)
	mediaFns  []func(coordinator.Media)
	media     *Media
	stopped   bool

	onEnded func()
	cancel  context.CancelFunc
}

func newSession(ctx context.Context, client *CastClient, rejoin bool) *Session {
	pollCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		client: client,
		cancel: cancel,
	}
	if rejoin {
		// Rejoined sessions carry their media from the start, so the
		// coordinator can adopt the authoritative player state.
		s.media = newMedia(s)
	}
	go s.poll(pollCtx)
	return s
}

// Media returns the media item attached to the session, if any.
func (s *Session) Media() (coordinator.Media, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return nil, false
	}
	return s.media, true
}

func (s *Session) OnMediaAttached(fn func(coordinator.Media)) {
	s.mu.Lock()
	s.mediaFns = append(s.mediaFns, fn)
	s.mu.Unlock()
}

func (s *Session) OnStatusChanged(fn func(status string)) {
	s.mu.Lock()
	s.statusFns = append(s.statusFns, fn)
	s.mu.Unlock()
}

// Load issues a load request and returns the fresh media handle.
func (s *Session) Load(ctx context.Context, ref, contentType string) (coordinator.Media, error) {
	if err := s.client.Load(ref, contentType); err != nil {
		return nil, err
	}

	m := newMedia(s)
	s.mu.Lock()
	s.media = m
	fns := append([]func(coordinator.Media){}, s.mediaFns...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
	return m, nil
}

// Stop ends the session on the receiver and reports the teardown.
func (s *Session) Stop() error {
	err := s.client.Stop()
	s.end()
	return err
}

// end fires the stopped status exactly once and tears the session down.
func (s *Session) end() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	media := s.media
	fns := append([]func(string){}, s.statusFns...)
	s.mu.Unlock()

	s.cancel()
	if media != nil {
		media.notify(false)
	}
	for _, fn := range fns {
		fn(coordinator.SessionStopped)
	}
	if s.onEnded != nil {
		s.onEnded()
	}
	_ = s.client.Close(false)
}

func (s *Session) poll(ctx context.Context) {
	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	errCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, alive, err := s.client.PlayerStatus()
		if err != nil {
			errCount++
			if errCount >= sessionMaxPollErrors {
				s.end()
				return
			}
			continue
		}
		errCount = 0

		s.mu.Lock()
		media := s.media
		s.mu.Unlock()
		if media != nil {
			media.setState(toPlayerState(state))
			media.notify(alive)
		}
	}
}

// Media implements coordinator.Media for a loaded item.
type Media struct {
	session *Session

	mu        sync.Mutex
	state     coordinator.PlayerState
	updateFns []func(alive bool)
}

func newMedia(s *Session) *Media {
	state := coordinator.PlayerIdle
	if st, alive, err := s.client.PlayerStatus(); err == nil && alive {
		state = toPlayerState(st)
	}
	return &Media{session: s, state: state}
}

func (m *Media) PlayerState() coordinator.PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Media) OnUpdate(fn func(alive bool)) {
	m.mu.Lock()
	m.updateFns = append(m.updateFns, fn)
	m.mu.Unlock()
}

func (m *Media) setState(state coordinator.PlayerState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Media) notify(alive bool) {
	m.mu.Lock()
	fns := append([]func(bool){}, m.updateFns...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(alive)
	}
}

func toPlayerState(s string) coordinator.PlayerState {
	switch s {
	case "PLAYING":
		return coordinator.PlayerPlaying
	case "PAUSED":
		return coordinator.PlayerPaused
	case "BUFFERING":
		return coordinator.PlayerBuffering
	default:
		return coordinator.PlayerIdle
	}
}
