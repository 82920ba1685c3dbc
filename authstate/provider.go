// Package authstate tracks whether the user is signed in and keeps the session fresh
// in the background. It is the single place consumers observe authentication state.
package authstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/militex-client/auth"
	"github.com/jrsteele09/militex-client/users"
)

const DefaultCheckInterval = 5 * time.Minute

type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is the state delivered to subscribers.
type Snapshot struct {
	State State
	User  *users.UserProfile
}

func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}

func (s Snapshot) IsLoading() bool {
	return s.State == StateInitializing
}

// Authenticator is the subset of auth.Service the provider drives.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*users.UserProfile, error)
	Register(ctx context.Context, reg users.Registration) (*users.UserProfile, error)
	Logout(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	FetchCurrentUser(ctx context.Context) (*users.UserProfile, error)
	RefreshToken(ctx context.Context) (string, error)
}

// Provider moves between Initializing, Authenticated and Anonymous. While
// Authenticated a goroutine checks the access token every interval and refreshes it
// when it has expired.
type Provider struct {
	auth     Authenticator
	interval time.Duration
	reload   func()
	logger   zerolog.Logger

	mu          sync.Mutex
	state       State
	user        *users.UserProfile
	generation  uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int
	pollCancel  context.CancelFunc
	pollDone    chan struct{}
	closed      bool
}

// ProviderOption defines a function type to modify the Provider instance.
type ProviderOption func(*Provider)

// WithCheckInterval sets how often the background poll inspects the access token.
func WithCheckInterval(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithReload sets the hook run after Logout, the equivalent of reloading the app.
func WithReload(fn func()) ProviderOption {
	return func(p *Provider) {
		p.reload = fn
	}
}

func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

func NewProvider(a Authenticator, options ...ProviderOption) *Provider {
	p := &Provider{
		auth:        a,
		interval:    DefaultCheckInterval,
		reload:      func() {},
		logger:      log.Logger,
		state:       StateInitializing,
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{State: p.state, User: p.user}
}

// Subscribe calls fn with the current snapshot and again after every change. The
// returned function removes the subscription. fn runs on the goroutine that caused
// the change and must not block, nor call Login, Register, Logout or Close.
func (p *Provider) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn
	snap := Snapshot{State: p.state, User: p.user}
	p.mu.Unlock()

	fn(snap)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// Start resolves the initial state from the stored session: a valid access token is
// used directly, otherwise one refresh is attempted. Any failure, including a panic,
// ends in Anonymous.
func (p *Provider) Start(ctx context.Context) (snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("auth initialisation panicked")
			p.setAnonymous()
			snap = p.Snapshot()
		}
	}()

	user, err := p.restore(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("no session to restore")
		p.setAnonymous()
		return p.Snapshot()
	}
	p.setAuthenticated(user)
	return p.Snapshot()
}

func (p *Provider) restore(ctx context.Context) (*users.UserProfile, error) {
	if !p.auth.IsAuthenticated(ctx) {
		if _, err := p.auth.RefreshToken(ctx); err != nil {
			return nil, err
		}
	}
	return p.auth.FetchCurrentUser(ctx)
}

// Login leaves the state untouched on failure. The poll of the current session is
// stopped before the store is touched so it cannot clear the new tokens.
func (p *Provider) Login(ctx context.Context, username, password string) error {
	p.stopPollAndWait()
	if err := p.login(ctx, username, password); err != nil {
		p.resumePoll()
		return err
	}
	return nil
}

// Register creates the account and then logs in with the same credentials.
func (p *Provider) Register(ctx context.Context, reg users.Registration) error {
	p.stopPollAndWait()
	if _, err := p.auth.Register(ctx, reg); err != nil {
		p.resumePoll()
		return err
	}
	if err := p.login(ctx, reg.Username, reg.Password); err != nil {
		p.resumePoll()
		return err
	}
	return nil
}

func (p *Provider) login(ctx context.Context, username, password string) error {
	user, err := p.auth.Login(ctx, username, password)
	if err != nil {
		return err
	}
	p.setAuthenticated(user)
	return nil
}

// Logout always ends in Anonymous, stops the poll and runs the reload hook.
func (p *Provider) Logout(ctx context.Context) error {
	p.stopPollAndWait()
	err := p.auth.Logout(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("clearing session on logout")
	}
	p.setAnonymous()
	p.reload()
	return err
}

// logoutIf ends the session the way Logout does, unless the state changed since gen
// was read.
func (p *Provider) logoutIf(ctx context.Context, gen uint64) {
	p.mu.Lock()
	current := p.generation == gen
	p.mu.Unlock()
	if !current {
		return
	}

	if err := p.auth.Logout(context.WithoutCancel(ctx)); err != nil {
		p.logger.Error().Err(err).Msg("clearing session after failed refresh")
	}
	if p.setAnonymousIf(gen) {
		p.reload()
	}
}

// CheckToken runs one poll iteration: an expired access token is refreshed and the
// profile re-fetched; a failed refresh logs out.
func (p *Provider) CheckToken(ctx context.Context) {
	p.mu.Lock()
	gen, state := p.generation, p.state
	p.mu.Unlock()
	if state != StateAuthenticated || p.auth.IsAuthenticated(ctx) {
		return
	}

	if _, err := p.auth.RefreshToken(ctx); err != nil {
		if ctx.Err() != nil {
			// The poll was stopped by Login, Register, Logout or Close.
			return
		}
		p.logger.Info().Err(err).Msg("silent refresh failed, logging out")
		p.logoutIf(ctx, gen)
		return
	}
	user, err := p.auth.FetchCurrentUser(ctx)
	if err != nil {
		if auth.KindOf(err) == auth.KindSessionExpired {
			p.logoutIf(ctx, gen)
			return
		}
		p.logger.Warn().Err(err).Msg("refreshing profile after token refresh")
		return
	}
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	p.user = user
	snap, subs := p.snapshotLocked()
	p.mu.Unlock()
	notify(subs, snap)
}

// Close stops the background poll and waits for it to exit.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.stopPollAndWait()
}

func (p *Provider) setAuthenticated(user *users.UserProfile) {
	p.mu.Lock()
	p.state = StateAuthenticated
	p.user = user
	p.generation++
	p.stopPollLocked()
	if !p.closed {
		p.startPollLocked()
	}
	snap, subs := p.snapshotLocked()
	p.mu.Unlock()
	notify(subs, snap)
}

func (p *Provider) setAnonymous() {
	p.mu.Lock()
	p.toAnonymousLocked()
}

// setAnonymousIf drops to Anonymous unless the state changed since gen was read.
func (p *Provider) setAnonymousIf(gen uint64) bool {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return false
	}
	p.toAnonymousLocked()
	return true
}

// toAnonymousLocked releases p.mu before notifying subscribers.
func (p *Provider) toAnonymousLocked() {
	p.state = StateAnonymous
	p.user = nil
	p.generation++
	p.stopPollLocked()
	snap, subs := p.snapshotLocked()
	p.mu.Unlock()
	notify(subs, snap)
}

// stopPollAndWait stops the poll and waits until an in-flight check has returned.
func (p *Provider) stopPollAndWait() {
	p.mu.Lock()
	done := p.stopPollLocked()
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// resumePoll restarts the poll stopped by a failed Login or Register while the
// previous session is still current.
func (p *Provider) resumePoll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateAuthenticated && p.pollCancel == nil && !p.closed {
		p.startPollLocked()
	}
}

func (p *Provider) startPollLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.pollCancel, p.pollDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.CheckToken(ctx)
			}
		}
	}()
}

// stopPollLocked cancels the poll and returns its done channel. It does not wait, so
// it is safe to call from the poll goroutine itself.
func (p *Provider) stopPollLocked() chan struct{} {
	if p.pollCancel == nil {
		return nil
	}
	p.pollCancel()
	done := p.pollDone
	p.pollCancel, p.pollDone = nil, nil
	return done
}

func (p *Provider) snapshotLocked() (Snapshot, []func(Snapshot)) {
	subs := make([]func(Snapshot), 0, len(p.subscribers))
	for id := 0; id < p.nextSubID; id++ {
		if fn, ok := p.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	return Snapshot{State: p.state, User: p.user}, subs
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
