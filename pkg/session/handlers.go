package session

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/copiloto/salesdash/pkg/notify"
)

const stateCookieName = "salesdash_auth_state"

// RegisterRoutes registers the session endpoints
func (m *Manager) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", m.LoginHandler).Methods("GET")
	router.HandleFunc("/auth/logout", m.LogoutHandler).Methods("GET")
	router.HandleFunc("/auth-callback", m.CallbackHandler).Methods("GET")
	router.HandleFunc("/api/auth/session", m.StatusHandler).Methods("GET")
}

// LoginHandler handles GET /auth/login: redirect-based sign-in. A failure to
// even start the redirect is recorded on the session and surfaced as a
// notification; it never takes the application down.
func (m *Manager) LoginHandler(w http.ResponseWriter, r *http.Request) {
	c, _, err := m.currentClient()
	if err != nil {
		m.recordAuthFailure("sign-in", err)
		http.Error(w, "identity provider not configured", http.StatusServiceUnavailable)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	if m.metrics != nil {
		m.metrics.SigninsTotal.WithLabelValues("started").Inc()
	}
	http.Redirect(w, r, c.oauth2Config.AuthCodeURL(state), http.StatusFound)
}

// CallbackHandler handles GET /auth-callback: the code-redirect return leg.
// On success the user is installed, persisted and published; enrichment
// runs on the published event, never here.
func (m *Manager) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	c, gen, err := m.currentClient()
	if err != nil {
		http.Error(w, "identity provider not configured", http.StatusServiceUnavailable)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		m.recordAuthFailure("sign-in", fmt.Errorf("provider returned %s: %s", errParam, desc))
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		m.recordAuthFailure("sign-in", fmt.Errorf("state mismatch on callback"))
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		m.recordAuthFailure("sign-in", fmt.Errorf("missing authorization code"))
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := c.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		m.recordAuthFailure("sign-in", fmt.Errorf("failed to exchange code: %w", err))
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	user, err := m.userFromToken(r.Context(), c, token)
	if err != nil {
		m.recordAuthFailure("sign-in", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if m.metrics != nil {
		m.metrics.SigninsTotal.WithLabelValues("success").Inc()
	}

	m.mu.Lock()
	m.lastUserAgent = r.UserAgent()
	m.lastRemoteAddr = clientAddr(r)
	m.mu.Unlock()

	m.logger.WithField("subject", user.Subject).Info("user signed in")
	m.completeSignIn(r.Context(), gen, c, user)

	http.Redirect(w, r, "/", http.StatusFound)
}

// LogoutHandler handles GET /auth/logout: clears the session and redirects
// to the provider's end-session endpoint, falling back to the origin when
// the provider does not advertise one
func (m *Manager) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	c, _, err := m.currentClient()
	if err != nil {
		m.recordAuthFailure("sign-out", err)
		http.Error(w, "identity provider not configured", http.StatusServiceUnavailable)
		return
	}

	m.clearUser(r.Context())
	m.logger.Info("user signed out")

	target := m.origin + "/"
	if c.endSessionURL != "" {
		target = c.endSessionURL + "?post_logout_redirect_uri=" + url.QueryEscape(m.origin+"/")
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// StatusHandler handles GET /api/auth/session, the read-model the UI polls
func (m *Manager) StatusHandler(w http.ResponseWriter, r *http.Request) {
	snap := m.Snapshot()

	resp := map[string]interface{}{
		"authenticated": m.IsAuthenticated(),
		"loading":       snap.Loading,
		"state":         snap.State,
	}
	if snap.User != nil {
		resp["subject"] = snap.User.Subject
		resp["name"] = snap.User.DisplayName()
		resp["email"] = snap.User.Email()
		resp["expiry"] = snap.User.Expiry
	}
	if snap.Err != nil {
		resp["error"] = snap.Err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// clientAddr resolves the originating client address, preferring the
// forwarded header set by the reverse proxy
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// recordAuthFailure records a login/logout failure on the session state and
// notifies the user
func (m *Manager) recordAuthFailure(op string, err error) {
	// Only sign-in failures feed the sign-in counter
	if m.metrics != nil && op == "sign-in" {
		m.metrics.SigninsTotal.WithLabelValues("failure").Inc()
	}

	m.mu.Lock()
	m.err = err
	m.mu.Unlock()

	m.logger.WithError(err).Errorf("%s failed", op)
	m.notifier.Notify(notify.Notification{
		Severity: notify.SeverityError,
		Title:    "Erro de autenticação",
		Message:  fmt.Sprintf("Falha ao efetuar %s.", op),
	})
}
