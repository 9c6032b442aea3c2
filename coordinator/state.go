package coordinator

// DeviceState tracks whether a receiver device is currently engaged.
// Transitions happen only through session lifecycle events.
type DeviceState int

const (
	DeviceIdle DeviceState = iota
	DeviceActive
	DeviceWarning
	DeviceError
)

func (d DeviceState) String() string {
	switch d {
	case DeviceIdle:
		return "IDLE"
	case DeviceActive:
		return "ACTIVE"
	case DeviceWarning:
		return "WARNING"
	case DeviceError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// PlayerState mirrors the receiver's reported player state. The coordinator
// only holds the last-known value, the receiver owns the real one.
type PlayerState string

const (
	PlayerIdle      PlayerState = "IDLE"
	PlayerPlaying   PlayerState = "PLAYING"
	PlayerPaused    PlayerState = "PAUSED"
	PlayerBuffering PlayerState = "BUFFERING"
)

// DiscoveryCause tags why a media object became known. A fresh load and the
// rediscovery of an already running session need different state handling.
type DiscoveryCause int

const (
	CauseLoadMedia DiscoveryCause = iota
	CauseActiveSession
)

// ReceiverAvailability is the raw availability signal from the SDK.
type ReceiverAvailability string

const (
	ReceiverAvailable   ReceiverAvailability = "AVAILABLE"
	ReceiverUnavailable ReceiverAvailability = "UNAVAILABLE"
)

// SessionStatus is the session-level status string reported by the SDK.
const SessionStopped = "STOPPED"

// Option is an explicit present/absent wrapper for the single session and
// media handles. Consumers have to handle the absent case, there is no nil
// propagation.
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the wrapped value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is held.
func (o Option[T]) Present() bool {
	return o.ok
}
