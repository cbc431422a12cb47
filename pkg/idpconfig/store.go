package idpconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/copiloto/salesdash/pkg/localcache"
	"github.com/copiloto/salesdash/pkg/notify"
	"github.com/copiloto/salesdash/pkg/observability"
)

// ErrNotFound is returned when neither the durable store nor the local
// cache holds a usable configuration
var ErrNotFound = errors.New("idpconfig: no configuration found")

// Store resolves identity-provider configuration from the durable store
// with a write-through local-cache fallback
type Store struct {
	db       *sql.DB
	cache    localcache.Cache
	logger   *observability.Logger
	notifier notify.Notifier
	metrics  *observability.Metrics

	// Bound on Resolve before falling back to cached values
	loadTimeout time.Duration
}

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithMetrics attaches Prometheus metrics
func WithMetrics(metrics *observability.Metrics) StoreOption {
	return func(s *Store) { s.metrics = metrics }
}

// NewStore creates a configuration store
func NewStore(db *sql.DB, cache localcache.Cache, logger *observability.Logger, notifier notify.Notifier, loadTimeout time.Duration, opts ...StoreOption) *Store {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if loadTimeout <= 0 {
		loadTimeout = 5 * time.Second
	}
	s := &Store{
		db:          db,
		cache:       cache,
		logger:      logger,
		notifier:    notifier,
		loadTimeout: loadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load resolves the current configuration. The durable store is tried
// first; on success the values are mirrored into the local cache and tagged
// SourceDatabase. On a store failure or empty table the local cache is
// consulted and the result tagged SourceLocal. Load never retries; callers
// re-invoke when they want a fresh attempt.
func (s *Store) Load(ctx context.Context) (Config, Source, error) {
	if s.metrics != nil {
		start := time.Now()
		defer func() {
			s.metrics.ConfigLoadDuration.Observe(time.Since(start).Seconds())
		}()
	}

	rec, err := s.loadFromDatabase(ctx)
	if err == nil {
		s.writeThrough(ctx, rec.Config)
		s.countLoad(string(SourceDatabase), "success")
		return rec.Config, SourceDatabase, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.WithError(err).Warn("durable config read failed, trying local cache")
	}

	cached, ok := s.loadFromCache(ctx)
	if ok {
		s.countLoad(string(SourceLocal), "success")
		return cached, SourceLocal, nil
	}

	s.countLoad("none", "not_found")
	return Config{}, "", ErrNotFound
}

func (s *Store) countLoad(source, status string) {
	if s.metrics != nil {
		s.metrics.ConfigLoadsTotal.WithLabelValues(source, status).Inc()
	}
}

// Resolve is Load bounded by the configured timeout. A slow durable store
// must not leave the application hanging at startup: once the bound is hit
// the cached values are used and the user is told so.
func (s *Store) Resolve(ctx context.Context) (Config, Source, error) {
	loadCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	cfg, source, err := s.Load(loadCtx)
	if err == nil && source == SourceLocal {
		s.notifier.Notify(notify.Notification{
			Severity: notify.SeverityWarning,
			Title:    "Configuração local em uso",
			Message:  "Não foi possível ler a configuração do banco de dados; usando valores locais.",
		})
	}
	return cfg, source, err
}

// SaveResult reports how a save landed
type SaveResult struct {
	// SavedLocalOnly is true when the durable write failed and only the
	// local cache holds the new values
	SavedLocalOnly bool
}

// Save persists a configuration. The local cache is written first so the
// operation degrades gracefully; a durable-store failure is reported as a
// warning, not an error, since the cache is authoritative for client-side
// gating.
func (s *Store) Save(ctx context.Context, cfg Config) (SaveResult, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.Tenant = strings.TrimSpace(cfg.Tenant)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)

	if !cfg.Complete() {
		return SaveResult{}, fmt.Errorf("client id and tenant are required")
	}

	s.writeThrough(ctx, cfg)

	var secret interface{}
	if cfg.ClientSecret != "" {
		secret = cfg.ClientSecret
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO azure_creds (clientid, tenant, secret, created_at)
		VALUES ($1, $2, $3, NOW())
	`, cfg.ClientID, cfg.Tenant, secret)
	if err != nil {
		s.logger.WithError(err).Warn("durable config write failed, saved to local cache only")
		s.countSave("local_only")
		return SaveResult{SavedLocalOnly: true}, nil
	}

	s.countSave("success")
	return SaveResult{}, nil
}

func (s *Store) countSave(status string) {
	if s.metrics != nil {
		s.metrics.ConfigSavesTotal.WithLabelValues(status).Inc()
	}
}

// Check derives the presence read-model for the login screen and route
// guard. It never fails hard: on a durable-store error it degrades to the
// local cache, and on a fully empty state it reports absence with no source.
func (s *Store) Check(ctx context.Context) CheckResult {
	cfg, source, err := s.Load(ctx)
	if err != nil {
		return CheckResult{}
	}
	return CheckResult{
		ClientID:     cfg.ClientID != "",
		Tenant:       cfg.Tenant != "",
		ClientSecret: cfg.ClientSecret != "",
		Source:       source,
	}
}

// loadFromDatabase reads the newest azure_creds row. With multiple rows the
// most recently created wins.
func (s *Store) loadFromDatabase(ctx context.Context) (Record, error) {
	var rec Record
	var secret sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, clientid, tenant, secret, created_at
		FROM azure_creds
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.ClientID, &rec.Tenant, &secret, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.ClientSecret = secret.String
	return rec, nil
}

// loadFromCache reads the mirrored values. A partial mirror still counts:
// presence of either client id or tenant yields a result so the check
// endpoint can report exactly which fields are missing.
func (s *Store) loadFromCache(ctx context.Context) (Config, bool) {
	var cfg Config
	cfg.ClientID = s.cachedValue(ctx, cacheKeyClientID)
	cfg.Tenant = s.cachedValue(ctx, cacheKeyTenant)
	cfg.ClientSecret = s.cachedValue(ctx, cacheKeyClientSecret)
	return cfg, cfg.ClientID != "" || cfg.Tenant != ""
}

func (s *Store) cachedValue(ctx context.Context, key string) string {
	v, err := s.cache.Get(ctx, key)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.WithLabelValues(key).Inc()
		}
		return ""
	}
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(key).Inc()
	}
	return v
}

// writeThrough mirrors resolved values into the local cache. Cache write
// failures are log-only: the durable store already holds the truth.
func (s *Store) writeThrough(ctx context.Context, cfg Config) {
	if err := s.cache.Set(ctx, cacheKeyClientID, cfg.ClientID); err != nil {
		s.logger.WithError(err).Warn("failed to mirror client id to local cache")
	}
	if err := s.cache.Set(ctx, cacheKeyTenant, cfg.Tenant); err != nil {
		s.logger.WithError(err).Warn("failed to mirror tenant to local cache")
	}
	if cfg.ClientSecret != "" {
		if err := s.cache.Set(ctx, cacheKeyClientSecret, cfg.ClientSecret); err != nil {
			s.logger.WithError(err).Warn("failed to mirror client secret to local cache")
		}
	}
}
