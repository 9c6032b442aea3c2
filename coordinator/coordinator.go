package coordinator

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Media is an opaque handle to a loaded playable item on the receiver.
type Media interface {
	// PlayerState returns the state the media object itself reports.
	PlayerState() PlayerState
	// OnUpdate registers the status listener. The listener receives false
	// once the media session is no longer alive on the receiver.
	OnUpdate(func(alive bool))
}

// Session is an opaque handle to a live connection with a receiver.
type Session interface {
	// Media returns the media item already attached to the session, if any.
	// A rejoined session may come with one mid-playback.
	Media() (Media, bool)
	// OnMediaAttached registers the listener invoked when the session
	// acquires a new media object after connection.
	OnMediaAttached(func(Media))
	// OnStatusChanged registers the session-level status listener.
	OnStatusChanged(func(status string))
	// Load issues a load request for the given resource on the session and
	// returns the media object the receiver reports back.
	Load(ctx context.Context, ref, contentType string) (Media, error)
}

// LoadResult is what a successful cast reports back.
type LoadResult struct {
	Media Media
}

// APIConfig binds the coordinator's handlers to the SDK's callback slots.
type APIConfig struct {
	AppID            string
	SessionListener  func(Session)
	ReceiverListener func(ReceiverAvailability)
	OnSuccess        func()
	OnError          func(error)
}

// SDK is the surface of the external casting framework the coordinator needs.
type SDK interface {
	// Available reports whether the host environment carries the casting
	// capability at all.
	Available() bool
	Initialize(APIConfig) error
	// CurrentSession is the framework's own session accessor. CastResource
	// reads it at point of use instead of trusting the cached field.
	CurrentSession() (Session, bool)
}

// CredentialRotator issues a fresh single-use credential, revoking any
// previously issued one of the same purpose first.
type CredentialRotator interface {
	Rotate(ctx context.Context, name string, permissions []string) (secret string, err error)
}

// ContentTypeResolver determines the content type of a remote resource.
type ContentTypeResolver interface {
	ResolveURL(ctx context.Context, rawURL string) (string, error)
}

// Status is a snapshot of the coordinator's externally visible state.
type Status struct {
	DeviceState  DeviceState
	PlayerState  PlayerState
	HasReceivers bool
}

// Coordinator owns the local view of the casting session. One per process,
// created at startup and passed by reference to whoever needs it.
type Coordinator struct {
	sdk   SDK
	creds CredentialRotator
	types ContentTypeResolver
	appID string

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	// initMu serializes Initialize so concurrent startup calls cannot both
	// reach the SDK.
	initMu sync.Mutex

	mu           sync.Mutex
	initialized  bool
	deviceState  DeviceState
	castState    PlayerState
	hasReceivers bool
	session      Option[Session]
	media        Option[Media]
}

// New builds the coordinator. It does not talk to the SDK until Initialize.
func New(sdk SDK, creds CredentialRotator, types ContentTypeResolver, appID string) *Coordinator {
	return &Coordinator{
		sdk:         sdk,
		creds:       creds,
		types:       types,
		appID:       appID,
		deviceState: DeviceIdle,
		castState:   PlayerIdle,
		session:     None[Session](),
		media:       None[Media](),
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
// Same pattern as CastClient.Log() in castprotocol.
func (c *Coordinator) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// Initialize wires the coordinator's handlers into the SDK and runs the
// framework's initialize operation. If the host lacks the casting capability
// it logs a warning and leaves the coordinator uninitialized; every casting
// operation is then a silent no-op.
func (c *Coordinator) Initialize() {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.IsInitialized() {
		return
	}

	if c.sdk == nil || !c.sdk.Available() {
		c.Log().Warn().Str("Method", "Initialize").Msg("casting framework not available in this environment")
		return
	}

	cfg := APIConfig{
		AppID:            c.appID,
		SessionListener:  c.HandleSessionAvailable,
		ReceiverListener: c.HandleReceiverAvailability,
		OnSuccess: func() {
			c.Log().Debug().Str("Method", "Initialize").Msg("framework initialized")
		},
		OnError: func(err error) {
			c.Log().Error().Str("Method", "Initialize").Err(err).Msg("framework initialization failed")
		},
	}

	if err := c.sdk.Initialize(cfg); err != nil {
		c.Log().Error().Str("Method", "Initialize").Err(err).Msg("sdk initialize call failed")
		return
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
}

// IsInitialized reports whether the SDK wiring succeeded.
func (c *Coordinator) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Status returns a snapshot of the current casting state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		DeviceState:  c.deviceState,
		PlayerState:  c.castState,
		HasReceivers: c.hasReceivers,
	}
}

// HandleReceiverAvailability records whether any receiver is reachable.
// Pure assignment, nothing else moves.
func (c *Coordinator) HandleReceiverAvailability(av ReceiverAvailability) {
	c.mu.Lock()
	c.hasReceivers = av == ReceiverAvailable
	c.mu.Unlock()
}

// HandleSessionAvailable runs when the SDK hands us a session, either because
// this client just created one or because an existing session is being
// rejoined. The media check has to happen before the connect transition:
// a rediscovered player's authoritative state must be established before the
// generic became-active transition runs, onSessionConnected alone cannot know
// whether a playing item already exists.
func (c *Coordinator) HandleSessionAvailable(s Session) {
	if m, ok := s.Media(); ok {
		c.handleMediaDiscovered(CauseActiveSession, m)
	}
	c.handleSessionConnected(s)
}

func (c *Coordinator) handleMediaDiscovered(cause DiscoveryCause, m Media) {
	c.mu.Lock()
	held, ok := c.media.Get()
	alreadyHeld := ok && held == m
	c.media = Some(m)
	switch cause {
	case CauseLoadMedia:
		// We just issued the load ourselves, the state is known before
		// any update event arrives.
		c.castState = PlayerPlaying
	case CauseActiveSession:
		// Pre-existing, possibly mid-playback session. The media object
		// is authoritative.
		c.castState = m.PlayerState()
	}
	c.mu.Unlock()

	// Media we already track has its listener attached, attaching again
	// would deliver every update twice.
	if !alreadyHeld {
		m.OnUpdate(c.handleMediaUpdate)
	}
}

func (c *Coordinator) handleMediaUpdate(alive bool) {
	if alive {
		return
	}
	c.mu.Lock()
	c.castState = PlayerIdle
	c.mu.Unlock()
}

func (c *Coordinator) handleSessionConnected(s Session) {
	c.mu.Lock()
	c.session = Some(s)
	c.deviceState = DeviceActive
	c.mu.Unlock()

	s.OnMediaAttached(c.handleSessionMedia)
	s.OnStatusChanged(c.handleSessionUpdate)
}

// handleSessionMedia runs when the session acquires a new media object after
// connection, distinct from any item seen at discovery time. The player state
// is left alone, the update listener will report it.
func (c *Coordinator) handleSessionMedia(m Media) {
	c.mu.Lock()
	c.media = Some(m)
	c.mu.Unlock()

	m.OnUpdate(c.handleMediaUpdate)
}

func (c *Coordinator) handleSessionUpdate(status string) {
	if status != SessionStopped {
		return
	}
	c.mu.Lock()
	c.session = None[Session]()
	c.deviceState = DeviceIdle
	c.castState = PlayerIdle
	c.media = None[Media]()
	c.mu.Unlock()
}
