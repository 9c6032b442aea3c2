// Package devices watches the local network for cast receivers and reports
// availability edges to the session coordinator.
package devices

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	googlecastService = "_googlecast._tcp"

	// mDNS query timeout per request
	queryTimeout = 750 * time.Millisecond
	// Faster polling while no receiver is known for quick first discovery
	pollIntervalFast = 1 * time.Second
	// Slower polling once at least one receiver is known to reduce network load
	pollIntervalSlow = 4 * time.Second
	// Receivers not seen for this long are dropped from the cache
	receiverTTL = 20 * time.Second
)

// Receiver is one discovered cast device.
type Receiver struct {
	Name     string
	Address  string
	lastSeen time.Time
}

// Watcher browses for receivers and calls OnChange whenever overall
// availability flips. The first report is sent after the first query cycle,
// whatever its value.
type Watcher struct {
	OnChange func(available bool)
	Iface    *net.Interface

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	// query is swapped out in tests.
	query   func(entries chan<- *mdns.ServiceEntry) error
	limiter *rate.Limiter

	mu        sync.Mutex
	receivers map[string]Receiver
	available bool
	reported  bool
}

func NewWatcher(onChange func(available bool)) *Watcher {
	w := &Watcher{
		OnChange:  onChange,
		receivers: make(map[string]Receiver),
		// One query burst per second at most, regardless of poll cadence.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	w.query = w.mdnsQuery
	return w
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (w *Watcher) Log() *zerolog.Logger {
	if w.LogOutput != nil {
		w.initLogOnce.Do(func() {
			w.Logger = zerolog.New(w.LogOutput).With().Timestamp().Logger()
		})
	}
	return &w.Logger
}

// Run browses until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	pollTimer := time.NewTimer(0)
	defer pollTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTimer.C:
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		w.pollOnce()
		w.expireStale()
		w.reportAvailability()

		pollTimer.Reset(w.pollInterval())
	}
}

// Receivers returns a snapshot of the currently known receivers.
func (w *Watcher) Receivers() []Receiver {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Receiver, 0, len(w.receivers))
	for _, r := range w.receivers {
		out = append(out, r)
	}
	return out
}

func (w *Watcher) pollOnce() {
	entriesCh := make(chan *mdns.ServiceEntry, 256)

	var g errgroup.Group
	g.Go(func() error {
		defer close(entriesCh)
		return w.query(entriesCh)
	})

	for entry := range entriesCh {
		w.upsertFromEntry(entry)
	}

	if err := g.Wait(); err != nil {
		w.Log().Debug().Str("Method", "Run").Err(err).Msg("mdns query failed")
	}
}

func (w *Watcher) mdnsQuery(entries chan<- *mdns.ServiceEntry) error {
	params := mdns.DefaultParams(googlecastService)
	params.Entries = entries
	params.Timeout = queryTimeout
	params.DisableIPv6 = true
	params.WantUnicastResponse = true
	params.Logger = log.New(io.Discard, "", 0)
	params.Interface = w.Iface
	return mdns.Query(params)
}

func (w *Watcher) upsertFromEntry(entry *mdns.ServiceEntry) {
	if entry == nil || entry.AddrV4 == nil {
		return
	}
	if !strings.Contains(entry.Name, "_googlecast") {
		return
	}

	address := fmt.Sprintf("%s:%d", entry.AddrV4, entry.Port)
	friendlyName := entry.Name

	for _, txt := range entry.InfoFields {
		if after, ok := strings.CutPrefix(txt, "fn="); ok {
			friendlyName = after
			break
		}
	}

	if idx := strings.Index(friendlyName, "._googlecast"); idx > 0 {
		friendlyName = friendlyName[:idx]
	}

	w.mu.Lock()
	w.receivers[address] = Receiver{
		Name:     friendlyName,
		Address:  address,
		lastSeen: time.Now(),
	}
	w.mu.Unlock()
}

func (w *Watcher) expireStale() {
	cutoff := time.Now().Add(-receiverTTL)

	w.mu.Lock()
	for addr, r := range w.receivers {
		if r.lastSeen.Before(cutoff) {
			delete(w.receivers, addr)
		}
	}
	w.mu.Unlock()
}

func (w *Watcher) reportAvailability() {
	w.mu.Lock()
	available := len(w.receivers) > 0
	changed := !w.reported || available != w.available
	w.available = available
	w.reported = true
	w.mu.Unlock()

	if changed && w.OnChange != nil {
		w.Log().Debug().Str("Method", "Run").Bool("Available", available).Msg("receiver availability changed")
		w.OnChange(available)
	}
}

func (w *Watcher) pollInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.receivers) > 0 {
		return pollIntervalSlow
	}
	return pollIntervalFast
}
