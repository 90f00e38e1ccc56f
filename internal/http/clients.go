package http

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessiongate/internal/gate"
	"sessiongate/internal/session"
)

// Client is one browser: its session store and the gate guarding its views.
type Client struct {
	ID    string
	store *session.Store
	gate  *gate.Gate

	mu       sync.Mutex
	lastSeen time.Time
}

// Store returns the client's session store.
func (c *Client) Store() *session.Store {
	return c.store
}

// Gate returns the client's session gate.
func (c *Client) Gate() *gate.Gate {
	return c.gate
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// ClientGauge observes the registry size.
type ClientGauge interface {
	SetActiveClients(n int)
}

// ClientRegistry holds the per-client stores and gates, keyed by the client cookie.
type ClientRegistry struct {
	verifier gate.Verifier
	gateOpts []gate.Option
	idleTTL  time.Duration
	gauge    ClientGauge
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

// NewClientRegistry creates a registry whose gates verify through verifier.
func NewClientRegistry(verifier gate.Verifier, idleTTL time.Duration, logger *slog.Logger, gateOpts ...gate.Option) *ClientRegistry {
	return &ClientRegistry{
		verifier: verifier,
		gateOpts: gateOpts,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		clients:  make(map[string]*Client),
	}
}

// WithGauge reports the registry size to gauge after every change.
func (r *ClientRegistry) WithGauge(gauge ClientGauge) *ClientRegistry {
	r.gauge = gauge
	return r
}

// Resolve returns the client for id, creating a fresh one when id is unknown.
// The returned bool is true when a new client was created.
func (r *ClientRegistry) Resolve(id string) (*Client, bool) {
	now := r.now()

	r.mu.Lock()
	if c, ok := r.clients[id]; ok && id != "" {
		r.mu.Unlock()
		c.touch(now)
		return c, false
	}

	store := session.NewStore()
	c := &Client{
		ID:       uuid.NewString(),
		store:    store,
		gate:     gate.New(r.verifier, store, r.gateOpts...),
		lastSeen: now,
	}
	r.clients[c.ID] = c
	size := len(r.clients)
	r.mu.Unlock()

	r.report(size)
	return c, true
}

// Len returns the number of live clients.
func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep drops clients idle for longer than the TTL and returns how many were removed.
func (r *ClientRegistry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	removed := 0
	for id, c := range r.clients {
		if c.idleSince().Before(cutoff) {
			delete(r.clients, id)
			removed++
		}
	}
	size := len(r.clients)
	r.mu.Unlock()

	if removed > 0 {
		r.report(size)
	}
	return removed
}

// Run sweeps idle clients every interval until ctx is cancelled.
func (r *ClientRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.Sweep(); removed > 0 && r.logger != nil {
				r.logger.Debug("swept idle clients", "removed", removed)
			}
		}
	}
}

func (r *ClientRegistry) report(size int) {
	if r.gauge != nil {
		r.gauge.SetActiveClients(size)
	}
}
