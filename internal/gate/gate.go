// Package gate decides, for each protected navigation, whether to render the nested
// view or redirect to the entry point.
//
// Every navigation mounts the gate once. A mount moves from Verifying to exactly one
// of Authorized or Unauthorized and never transitions again. Mounts are numbered; when
// several are in flight, only the most recently issued one may write the store, so a
// slow verification can never overwrite the outcome of a newer navigation. A stale
// mount settles against the store instead of its own result.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sessiongate/internal/identity"
	"sessiongate/internal/session"
)

// DefaultEntryPoint is the public page unauthenticated visitors are sent to.
const DefaultEntryPoint = "/login"

// State is the lifecycle state of a single mount.
type State int

const (
	StateVerifying State = iota
	StateAuthorized
	StateUnauthorized
)

func (s State) String() string {
	switch s {
	case StateVerifying:
		return "verifying"
	case StateAuthorized:
		return "authorized"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Verifier resolves the user behind a session token. identity.Service satisfies it.
type Verifier interface {
	GetCurrentUser(ctx context.Context, token string) identity.Verification
}

// Recorder receives one call per settled mount.
type Recorder interface {
	RecordVerification(state string, stale bool, duration time.Duration)
}

// Redirect tells the navigation layer where to send an unauthorized visitor.
type Redirect struct {
	Target string
	Intent Intent
}

// Decision is the settled outcome of a mount.
type Decision struct {
	Seq      uint64
	State    State
	User     *identity.User
	Redirect *Redirect
	// Stale is set when a newer mount was issued before this one settled.
	// Stale decisions do not touch the store, and they are authorized only when the
	// store already holds the same user.
	Stale bool
}

// Gate guards the protected views of one client.
type Gate struct {
	verifier   Verifier
	store      *session.Store
	entryPoint string
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time

	mu            sync.Mutex
	latest        uint64
	latestSettled bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithEntryPoint sets the redirect target for unauthorized mounts.
func WithEntryPoint(path string) Option {
	return func(g *Gate) {
		if path != "" {
			g.entryPoint = path
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(g *Gate) {
		g.recorder = recorder
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a gate that writes verification results into store.
func New(verifier Verifier, store *session.Store, opts ...Option) *Gate {
	g := &Gate{
		verifier:      verifier,
		store:         store,
		entryPoint:    DefaultEntryPoint,
		logger:        slog.Default(),
		now:           time.Now,
		latestSettled: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the store this gate writes to.
func (g *Gate) Store() *session.Store {
	return g.store
}

// EntryPoint returns the public entry point path.
func (g *Gate) EntryPoint() string {
	return g.entryPoint
}

// Verifying reports whether the most recent mount is still waiting on the provider.
func (g *Gate) Verifying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.latestSettled
}

// Mount starts a new navigation through the gate. The returned mount is Verifying
// until Verify settles it.
func (g *Gate) Mount(path string) *Mount {
	g.mu.Lock()
	g.latest++
	seq := g.latest
	g.latestSettled = false
	g.mu.Unlock()

	return &Mount{gate: g, seq: seq, path: path, state: StateVerifying}
}

// Guard mounts the gate for path and verifies it in one step.
func (g *Gate) Guard(ctx context.Context, token, path string) Decision {
	return g.Mount(path).Verify(ctx, token)
}

func (g *Gate) settle(ctx context.Context, m *Mount, token string) Decision {
	start := g.now()
	result := g.verify(ctx, token)

	decision := Decision{Seq: m.seq}
	switch result.Outcome {
	case identity.OutcomeAuthenticated:
		if result.User != nil && result.Err == nil {
			decision.State = StateAuthorized
			decision.User = result.User
			break
		}
		decision.State = StateUnauthorized
	case identity.OutcomeAnonymous:
		decision.State = StateUnauthorized
	case identity.OutcomeFailed:
		g.logger.Warn("session verification failed", "path", m.path, "error", result.Err)
		decision.State = StateUnauthorized
	default:
		g.logger.Warn("session verification returned no outcome", "path", m.path)
		decision.State = StateUnauthorized
	}

	g.mu.Lock()
	decision.Stale = m.seq != g.latest
	if decision.Stale {
		// A stale mount may only render what the store already says about the same user.
		if decision.State == StateAuthorized && !g.storeHolds(decision.User) {
			decision.State = StateUnauthorized
			decision.User = nil
		}
	} else {
		if decision.State == StateAuthorized {
			g.store.Authenticate(decision.User)
		} else {
			g.store.Clear()
		}
		g.latestSettled = true
	}
	g.mu.Unlock()

	if decision.State == StateUnauthorized {
		intent := NewIntent(m.path, g.entryPoint)
		decision.Redirect = &Redirect{Target: EntryPointURL(g.entryPoint, intent), Intent: intent}
	}

	if decision.Stale {
		g.logger.Debug("discarded stale verification", "seq", m.seq, "path", m.path)
	}
	if g.recorder != nil {
		g.recorder.RecordVerification(decision.State.String(), decision.Stale, g.now().Sub(start))
	}

	return decision
}

func (g *Gate) storeHolds(user *identity.User) bool {
	snap := g.store.Snapshot()
	return snap.Authenticated && snap.User != nil && user != nil && snap.User.ID == user.ID
}

// verify calls the verifier and converts a panic into a failure, so nothing escapes the gate.
func (g *Gate) verify(ctx context.Context, token string) (result identity.Verification) {
	defer func() {
		if r := recover(); r != nil {
			result = identity.Failed(fmt.Errorf("%w: verifier panic: %v", identity.ErrProviderUnavailable, r))
		}
	}()
	if g.verifier == nil {
		return identity.Failed(identity.ErrProviderUnavailable)
	}
	return g.verifier.GetCurrentUser(ctx, token)
}

// Mount is a single navigation through the gate.
type Mount struct {
	gate *Gate
	seq  uint64
	path string

	once     sync.Once
	mu       sync.Mutex
	state    State
	decision Decision
}

// Seq returns the mount's sequence number.
func (m *Mount) Seq() uint64 {
	return m.seq
}

// Path returns the path the mount was created for.
func (m *Mount) Path() string {
	return m.path
}

// State returns the current lifecycle state.
func (m *Mount) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Verify performs the mount's single verification call and settles it. Later calls
// return the settled decision without contacting the provider again.
func (m *Mount) Verify(ctx context.Context, token string) Decision {
	m.once.Do(func() {
		decision := m.gate.settle(ctx, m, token)
		m.mu.Lock()
		m.state = decision.State
		m.decision = decision
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}
