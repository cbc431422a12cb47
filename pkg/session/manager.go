package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/copiloto/salesdash/pkg/idpconfig"
	"github.com/copiloto/salesdash/pkg/localcache"
	"github.com/copiloto/salesdash/pkg/notify"
	"github.com/copiloto/salesdash/pkg/observability"
)

// ErrNoClient is returned by login/logout when no identity-provider client
// has been constructed (configuration incomplete)
var ErrNoClient = errors.New("session: identity-provider client not constructed")

// State is the lifecycle state of the manager
type State string

const (
	StateUninitialized State = "uninitialized"
	StateConstructing  State = "constructing"
	StateReady         State = "ready"
	StateError         State = "error"
)

// DefaultIssuerBase is the identity provider's login host. The per-tenant
// authority is derived as {base}/{tenant}/v2.0.
const DefaultIssuerBase = "https://login.microsoftonline.com"

// Scopes requested on sign-in. User.Read is needed by the directory
// enrichment stage; offline_access makes the provider issue a refresh
// token, without which silent renewal never arms.
var defaultScopes = []string{oidc.ScopeOpenID, "profile", "email", "User.Read", oidc.ScopeOfflineAccess}

// renewLeeway is how long before token expiry silent renewal runs
const renewLeeway = time.Minute

// client bundles everything derived from one configuration
type client struct {
	authority      string
	endSessionURL  string
	verifier       *oidc.IDTokenVerifier
	oauth2Config   *oauth2.Config
	userCacheKey   string
}

// Manager owns the identity-provider client lifecycle and the current
// session. Other components observe it through Snapshot and Subscribe; only
// the manager mutates session state.
type Manager struct {
	origin     string
	issuerBase string
	cache      localcache.Cache
	logger     *observability.Logger
	notifier   notify.Notifier
	metrics    *observability.Metrics
	now        func() time.Time

	mu         sync.RWMutex
	state      State
	loading    bool
	user       *User
	err        error
	client     *client
	generation int
	renewStop  context.CancelFunc

	subs      map[int]chan Event
	nextSubID int

	lastUserAgent  string
	lastRemoteAddr string
}

// Option customizes a Manager
type Option func(*Manager)

// WithIssuerBase overrides the identity provider's login host (tests point
// it at a local discovery server)
func WithIssuerBase(base string) Option {
	return func(m *Manager) { m.issuerBase = base }
}

// WithMetrics attaches Prometheus metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. No client exists until Configure is
// called with a complete configuration.
func NewManager(origin string, cache localcache.Cache, logger *observability.Logger, notifier notify.Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	m := &Manager{
		origin:     origin,
		issuerBase: DefaultIssuerBase,
		cache:      cache,
		logger:     logger,
		notifier:   notifier,
		now:        time.Now,
		state:      StateUninitialized,
		loading:    true,
		subs:       make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configure constructs (or reconstructs) the identity-provider client from a
// resolved configuration. An incomplete configuration is not an error: the
// manager settles into a signed-out ready state without any network I/O and
// waits for an administrator to finish setup.
//
// Reconfiguring tears down the previous client first: the renewal goroutine
// is stopped and its generation invalidated, so no stale event can be
// delivered across a reconfiguration.
func (m *Manager) Configure(ctx context.Context, cfg idpconfig.Config) error {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	if m.renewStop != nil {
		m.renewStop()
		m.renewStop = nil
	}
	m.client = nil
	m.err = nil

	if !cfg.Complete() {
		m.state = StateReady
		m.user = nil
		m.loading = false
		m.mu.Unlock()
		m.logger.Info("identity-provider configuration incomplete, session construction skipped")
		return nil
	}

	m.state = StateConstructing
	m.loading = true
	m.mu.Unlock()

	authority := fmt.Sprintf("%s/%s/v2.0", m.issuerBase, cfg.Tenant)

	provider, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		m.failConstruction(gen, fmt.Errorf("failed to discover identity provider: %w", err))
		return err
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		m.logger.WithError(err).Warn("failed to read end_session_endpoint from discovery document")
	}

	c := &client{
		authority:     authority,
		endSessionURL: extra.EndSessionEndpoint,
		verifier:      provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  m.origin + "/auth-callback",
			Scopes:       defaultScopes,
		},
		userCacheKey: fmt.Sprintf("oidc_user:%s:%s", authority, cfg.ClientID),
	}

	m.mu.Lock()
	if m.generation != gen {
		// superseded by a newer Configure call
		m.mu.Unlock()
		return nil
	}
	m.client = c
	m.state = StateReady
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"authority": authority,
		"client_id": cfg.ClientID,
	}).Info("identity-provider client constructed")

	// Page-reload continuity: pick up a previously persisted user so a
	// restart does not look like a sign-out.
	m.rehydrate(ctx, gen, c)

	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()

	return nil
}

// failConstruction records a construction failure unless a newer Configure
// call has superseded this one
func (m *Manager) failConstruction(gen int, err error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	m.err = err
	m.loading = false
	m.mu.Unlock()

	m.logger.WithError(err).Error("identity-provider client construction failed")
	m.notifier.Notify(notify.Notification{
		Severity: notify.SeverityError,
		Title:    "Erro de autenticação",
		Message:  "Não foi possível conectar ao provedor de identidade.",
	})
}

// rehydrate restores a persisted user from the local cache. A valid user
// re-triggers enrichment exactly as a fresh sign-in would; an expired one is
// evicted.
func (m *Manager) rehydrate(ctx context.Context, gen int, c *client) {
	raw, err := m.cache.Get(ctx, c.userCacheKey)
	if err != nil {
		if !errors.Is(err, localcache.ErrNotFound) {
			m.logger.WithError(err).Warn("failed to read persisted user from local cache")
		}
		return
	}

	user, err := unmarshalUser(raw)
	if err != nil || user.Subject == "" {
		m.logger.WithError(err).Warn("discarding malformed persisted user")
		m.cache.Delete(ctx, c.userCacheKey)
		return
	}

	if user.Expired(m.now()) {
		m.logger.WithField("subject", user.Subject).Debug("persisted user expired, evicting")
		m.cache.Delete(ctx, c.userCacheKey)
		return
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.user = user
	m.mu.Unlock()

	m.logger.WithField("subject", user.Subject).Info("session rehydrated from local cache")
	m.publish(Event{Kind: EventUserLoaded, User: user})
	m.startRenewLoop(gen, c, user)
}

// completeSignIn installs a freshly issued user: persist, publish, schedule
// renewal. Used by the callback handler and the renew loop.
func (m *Manager) completeSignIn(ctx context.Context, gen int, c *client, user *User) {
	if raw, err := marshalUser(user); err == nil {
		if err := m.cache.Set(ctx, c.userCacheKey, raw); err != nil {
			m.logger.WithError(err).Warn("failed to persist user to local cache")
		}
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.user = user
	m.err = nil
	m.loading = false
	m.mu.Unlock()

	m.publish(Event{Kind: EventUserLoaded, User: user})
	m.startRenewLoop(gen, c, user)
}

// clearUser removes the current user and its persisted copy
func (m *Manager) clearUser(ctx context.Context) {
	m.mu.Lock()
	c := m.client
	if m.renewStop != nil {
		m.renewStop()
		m.renewStop = nil
	}
	m.user = nil
	m.loading = false
	m.mu.Unlock()

	if c != nil {
		m.cache.Delete(ctx, c.userCacheKey)
	}
	m.publish(Event{Kind: EventUserUnloaded})
}

// startRenewLoop launches the silent-renewal goroutine for a user issuance.
// Any previous loop is stopped first; only one runs per manager.
func (m *Manager) startRenewLoop(gen int, c *client, user *User) {
	if user.RefreshToken == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		cancel()
		return
	}
	if m.renewStop != nil {
		m.renewStop()
	}
	m.renewStop = cancel
	m.mu.Unlock()

	go m.renewLoop(ctx, gen, c, user)
}

// renewLoop refreshes the token shortly before expiry. A renewal failure is
// recorded and published but the stale user is retained: a present-but-stale
// session is preferable to a hard logout.
func (m *Manager) renewLoop(ctx context.Context, gen int, c *client, user *User) {
	wait := time.Until(user.Expiry) - renewLeeway
	if wait < 0 {
		wait = 0
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(wait):
	}

	src := c.oauth2Config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: user.RefreshToken,
	})
	token, err := src.Token()
	if err != nil {
		if m.metrics != nil {
			m.metrics.SilentRenewsTotal.WithLabelValues("failure").Inc()
		}
		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			return
		}
		m.err = err
		m.mu.Unlock()

		m.logger.WithError(err).Error("silent renew failed")
		m.publish(Event{Kind: EventRenewError, Err: err})
		return
	}

	renewed, err := m.userFromToken(ctx, c, token)
	if err != nil {
		m.logger.WithError(err).Error("silent renew produced an unusable token")
		m.publish(Event{Kind: EventRenewError, Err: err})
		return
	}

	if m.metrics != nil {
		m.metrics.SilentRenewsTotal.WithLabelValues("success").Inc()
	}
	m.logger.WithField("subject", renewed.Subject).Info("session silently renewed")
	m.completeSignIn(ctx, gen, c, renewed)
}

// userFromToken builds a User from an oauth2 token, verifying the embedded
// ID token when present and carrying forward claims otherwise (refresh
// responses may omit a new id_token).
func (m *Manager) userFromToken(ctx context.Context, c *client, token *oauth2.Token) (*User, error) {
	user := &User{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if ok && rawIDToken != "" {
		idToken, err := c.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("failed to verify ID token: %w", err)
		}
		claims := make(map[string]interface{})
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to parse claims: %w", err)
		}
		user.IDToken = rawIDToken
		user.Subject = idToken.Subject
		user.Claims = claims
		return user, nil
	}

	// No fresh id_token: supersede tokens but keep the prior identity
	m.mu.RLock()
	prior := m.user
	m.mu.RUnlock()
	if prior == nil {
		return nil, fmt.Errorf("token response missing id_token")
	}
	user.IDToken = prior.IDToken
	user.Subject = prior.Subject
	user.Claims = prior.Claims
	return user, nil
}

// Snapshot is the observable session state consumed by the route guard and
// the session status endpoint
type Snapshot struct {
	User    *User
	Err     error
	Loading bool
	State   State
}

// Snapshot returns the current session state
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		User:    m.user,
		Err:     m.err,
		Loading: m.loading,
		State:   m.state,
	}
}

// IsAuthenticated reports whether a non-expired user is present
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && !m.user.Expired(m.now())
}

// LastRequestMeta returns the user agent and remote address of the most
// recent sign-in callback. Enrichment records them alongside the profile.
func (m *Manager) LastRequestMeta() (userAgent, remoteAddr string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent, m.lastRemoteAddr
}

// PurgeExpired evicts an expired or malformed persisted user from the local
// cache. Runs periodically so a dead issuance does not outlive its expiry on
// disk; the in-memory session is untouched.
func (m *Manager) PurgeExpired(ctx context.Context) {
	c, _, err := m.currentClient()
	if err != nil {
		return
	}

	raw, err := m.cache.Get(ctx, c.userCacheKey)
	if err != nil {
		return
	}

	user, err := unmarshalUser(raw)
	if err != nil || user.Expired(m.now()) {
		if err := m.cache.Delete(ctx, c.userCacheKey); err != nil {
			m.logger.WithError(err).Warn("failed to purge expired persisted user")
			return
		}
		m.logger.Debug("purged expired persisted user")
	}
}

// currentClient returns the constructed client or ErrNoClient
func (m *Manager) currentClient() (*client, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, 0, ErrNoClient
	}
	return m.client, m.generation, nil
}
