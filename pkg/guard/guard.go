package guard

import (
	"context"
	"net/http"
	"strings"

	"github.com/copiloto/salesdash/pkg/idpconfig"
	"github.com/copiloto/salesdash/pkg/observability"
	"github.com/copiloto/salesdash/pkg/session"
)

// configChecker is the presence probe the guard consults before deciding
// where an unauthenticated request belongs
type configChecker interface {
	Check(ctx context.Context) idpconfig.CheckResult
}

// sessionReader is the session read-model the guard consults
type sessionReader interface {
	Snapshot() session.Snapshot
	IsAuthenticated() bool
}

// Guard decides per request whether it proceeds, waits or is redirected.
// The decision order is fixed: loading wins over everything, a session
// error sends the user back to login, and only then does configuration
// presence pick between the setup screen and the login screen.
type Guard struct {
	sessions    sessionReader
	configs     configChecker
	adminPrefix string
	publicPaths []string
	logger      *observability.Logger
}

// New creates a route guard. publicPaths are prefixes that are never
// guarded (the auth endpoints themselves, health, metrics).
func New(sessions sessionReader, configs configChecker, adminPrefix string, publicPaths []string, logger *observability.Logger) *Guard {
	if adminPrefix == "" {
		adminPrefix = "/admin"
	}
	return &Guard{
		sessions:    sessions,
		configs:     configs,
		adminPrefix: adminPrefix,
		publicPaths: publicPaths,
		logger:      logger,
	}
}

// Middleware wraps next with the route-guard decision table
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		for _, p := range g.publicPaths {
			if strings.HasPrefix(path, p) {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Admin paths answer to their own password gate, not the session
		if strings.HasPrefix(path, g.adminPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		snap := g.sessions.Snapshot()

		if snap.Loading {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("<html><body>Carregando...</body></html>"))
			return
		}

		if g.sessions.IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}

		if snap.Err != nil {
			g.logger.WithError(snap.Err).Debug("guard redirecting errored session to login")
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		if !g.configs.Check(r.Context()).Present() {
			http.Redirect(w, r, "/auth-config", http.StatusFound)
			return
		}

		http.Redirect(w, r, "/login", http.StatusFound)
	})
}
