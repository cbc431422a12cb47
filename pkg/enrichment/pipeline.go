package enrichment

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/copiloto/salesdash/pkg/observability"
	"github.com/copiloto/salesdash/pkg/session"
)

// dedupeWindow suppresses duplicate runs for the same subject. Rehydration
// followed by a silent renew can emit two loaded events seconds apart.
const dedupeWindow = time.Minute

// RequestMeta carries per-request context captured where the sign-in
// actually happened
type RequestMeta struct {
	UserAgent string
	IPAddress string
	Trigger   string
}

// Pipeline enriches a signed-in identity and persists it. Every stage is
// individually recovered: a directory outage, a missing photo or an internal
// API failure degrades the stored profile, never the sign-in.
type Pipeline struct {
	directory  *DirectoryClient
	profiles   *ProfileStore
	internal   *InternalProfileStore
	transports []Transport
	queue      *TaskQueue
	deferDelay time.Duration
	recent     *lru.Cache[string, time.Time]
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewPipeline creates an enrichment pipeline
func NewPipeline(
	directory *DirectoryClient,
	profiles *ProfileStore,
	internal *InternalProfileStore,
	transports []Transport,
	queue *TaskQueue,
	deferDelay time.Duration,
	logger *observability.Logger,
	metrics *observability.Metrics,
) (*Pipeline, error) {
	recent, err := lru.New[string, time.Time](256)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		directory:  directory,
		profiles:   profiles,
		internal:   internal,
		transports: transports,
		queue:      queue,
		deferDelay: deferDelay,
		recent:     recent,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// Watch drives the pipeline from the session event stream until ctx is
// cancelled. Intended to run as a goroutine; the session manager never
// blocks on it.
func (p *Pipeline) Watch(ctx context.Context, sub *session.Subscription, meta func(*session.User) RequestMeta) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Kind != session.EventUserLoaded || ev.User == nil {
				continue
			}
			p.Run(ctx, ev.User, meta(ev.User))
		}
	}
}

// Run executes the pipeline for one sign-in. Stages: claims, directory,
// profile upsert, then the internal stage deferred onto the task queue
// strictly after the upsert has returned.
func (p *Pipeline) Run(ctx context.Context, user *session.User, meta RequestMeta) {
	if user.Subject == "" {
		p.logger.Warn("enrichment skipped, user has no subject")
		return
	}

	if last, ok := p.recent.Get(user.Subject); ok && p.now().Sub(last) < dedupeWindow {
		p.logger.WithField("subject", user.Subject).Debug("enrichment deduplicated")
		if p.metrics != nil {
			p.metrics.EnrichmentRunsTotal.WithLabelValues("deduplicated").Inc()
		}
		return
	}
	p.recent.Add(user.Subject, p.now())

	if p.metrics != nil {
		trigger := meta.Trigger
		if trigger == "" {
			trigger = "sign-in"
		}
		p.metrics.EnrichmentRunsTotal.WithLabelValues(trigger).Inc()
		start := p.now()
		defer func() {
			p.metrics.EnrichmentRunDuration.Observe(p.now().Sub(start).Seconds())
		}()
	}

	profile := p.buildProfile(ctx, user, meta)

	if err := p.profiles.Upsert(ctx, profile); err != nil {
		p.stageFailure("persist", err)
	}

	// The internal stage must not start before the primary row exists
	accessToken := user.AccessToken
	subject := user.Subject
	p.queue.Submit("internal-enrichment", p.deferDelay, func(taskCtx context.Context) error {
		p.runInternal(taskCtx, subject, accessToken)
		return nil
	})
}

// buildProfile merges token claims with the directory lookup. Claims win
// where both carry a value; directory fields fill the gaps.
func (p *Pipeline) buildProfile(ctx context.Context, user *session.User, meta RequestMeta) *Profile {
	profile := &Profile{
		UserID:      user.Subject,
		Email:       user.Email(),
		DisplayName: user.StringClaim("name"),
		UserAgent:   meta.UserAgent,
		IPAddress:   meta.IPAddress,
		IDToken:     user.IDToken,
		AccessToken: user.AccessToken,
	}
	if raw, err := json.Marshal(user.Claims); err == nil {
		profile.RawClaims = raw
	}

	dir, err := p.directory.Profile(ctx, user.AccessToken)
	if err != nil {
		p.stageFailure("directory", err)
		return profile
	}

	if profile.Email == "" {
		profile.Email = dir.Mail
		if profile.Email == "" {
			profile.Email = dir.UserPrincipalName
		}
	}
	if profile.DisplayName == "" {
		profile.DisplayName = dir.DisplayName
	}
	profile.FirstName = dir.GivenName
	profile.LastName = dir.Surname
	profile.JobTitle = dir.JobTitle
	profile.Department = dir.Department
	profile.OfficeLocation = dir.OfficeLocation

	ref, err := p.directory.Photo(ctx, user.AccessToken, user.Subject)
	if err != nil {
		p.stageFailure("photo", err)
	} else {
		profile.ProfileImageURL = ref
	}

	return profile
}

// runInternal walks the transport chain and persists the first successful
// payload. Both tiers failing is logged and absorbed.
func (p *Pipeline) runInternal(ctx context.Context, subject, accessToken string) {
	if accessToken == "" {
		p.logger.WithField("subject", subject).Debug("internal enrichment skipped, no access token")
		return
	}

	for _, t := range p.transports {
		raw, err := t.Fetch(ctx, accessToken)
		if err != nil {
			if p.metrics != nil {
				p.metrics.TransportAttemptsTotal.WithLabelValues(t.Tier(), "failure").Inc()
			}
			p.logger.WithError(err).WithField("tier", t.Tier()).Warn("internal profile transport failed")
			continue
		}
		if p.metrics != nil {
			p.metrics.TransportAttemptsTotal.WithLabelValues(t.Tier(), "success").Inc()
		}

		if err := p.internal.Upsert(ctx, subject, raw); err != nil {
			p.stageFailure("internal-persist", err)
		}
		return
	}

	p.stageFailure("internal-fetch", nil)
	p.logger.WithField("subject", subject).Warn("all internal profile transports failed")
}

func (p *Pipeline) stageFailure(stage string, err error) {
	if p.metrics != nil {
		p.metrics.EnrichmentStageFailuresTotal.WithLabelValues(stage).Inc()
	}
	if err != nil {
		p.logger.WithError(err).WithField("stage", stage).Error("enrichment stage failed")
	}
}
