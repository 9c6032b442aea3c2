// Package castprotocol adapts the go-chromecast stack to the framework and
// coordinator interfaces. Everything receiver-protocol specific lives here.
package castprotocol

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

// CastClient wraps a go-chromecast Application for simplified API
type CastClient struct {
	app         *application.Application
	conn        cast.Conn
	mu          sync.RWMutex
	host        string
	port        int
	connected   bool
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

func NewCastClient(deviceAddr string) (*CastClient, error) {
	host := deviceAddr
	port := 8009 // default Chromecast port

	// Accept both URL-shaped addresses and bare host[:port].
	if u, err := url.Parse(deviceAddr); err == nil && u.Hostname() != "" {
		host = u.Hostname()
		if u.Port() != "" {
			fmt.Sscanf(u.Port(), "%d", &port)
		}
	} else if h, p, err := net.SplitHostPort(deviceAddr); err == nil {
		host = h
		fmt.Sscanf(p, "%d", &port)
	}

	if host == "" {
		return nil, fmt.Errorf("parse device addr: empty host in %q", deviceAddr)
	}

	conn := cast.NewConnection()
	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(5),
	)

	return &CastClient{
		app:  app,
		conn: conn,
		host: host,
		port: port,
	}, nil
}

// Connect establishes the connection to the receiver.
func (c *CastClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")
	if err := c.app.Start(c.host, c.port); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}
	c.connected = true
	return nil
}

// Load issues a standard load request for the given URL.
func (c *CastClient) Load(mediaURL, contentType string) error {
	c.Log().Debug().Str("Method", "Load").Str("URL", mediaURL).Str("ContentType", contentType).Msg("loading media")
	if err := c.app.Load(mediaURL, 0, contentType, false, false, false); err != nil {
		c.Log().Error().Str("Method", "Load").Err(err).Msg("load failed")
		return fmt.Errorf("chromecast load: %w", err)
	}
	return nil
}

// PlayerStatus refreshes and returns the receiver's player state plus whether
// a media session is currently alive.
func (c *CastClient) PlayerStatus() (state string, alive bool, err error) {
	if err := c.app.Update(); err != nil {
		return "", false, fmt.Errorf("chromecast status: %w", err)
	}
	_, media, _ := c.app.Status()
	if media == nil {
		return "IDLE", false, nil
	}
	return media.PlayerState, true, nil
}

// HasMedia reports whether the receiver currently carries a media session.
func (c *CastClient) HasMedia() bool {
	if err := c.app.Update(); err != nil {
		return false
	}
	_, media, _ := c.app.Status()
	return media != nil
}

// Stop stops playback and closes the media session on the receiver.
func (c *CastClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Stop").Msg("stopping playback")
	if err := c.app.Stop(); err != nil {
		c.Log().Error().Str("Method", "Stop").Err(err).Msg("failed")
		return err
	}
	return nil
}

// Close disconnects from the receiver.
func (c *CastClient) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	c.connected = false
	return c.app.Close(stopMedia)
}

// IsConnected returns whether the client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Host returns the hostname of the connected receiver.
func (c *CastClient) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}
