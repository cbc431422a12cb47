package guard

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/copiloto/salesdash/pkg/observability"
)

const (
	adminCookieName = "salesdash_admin"
	adminSessionTTL = 4 * time.Hour
)

// AdminGate authorizes the admin screens with a shared password and a
// signed cookie. It sits behind the route guard's admin-prefix pass-through.
type AdminGate struct {
	password []byte
	key      []byte
	logger   *observability.Logger
	now      func() time.Time
}

// NewAdminGate creates the admin gate. An empty password disables it: every
// admin request is rejected until one is configured.
func NewAdminGate(password string, logger *observability.Logger) *AdminGate {
	key := make([]byte, 32)
	rand.Read(key)
	return &AdminGate{
		password: []byte(password),
		key:      key,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes registers the admin login endpoint
func (g *AdminGate) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/admin/login", g.LoginHandler).Methods("POST")
}

// LoginHandler handles POST /api/admin/login with {"password": "..."}
func (g *AdminGate) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if len(g.password) == 0 || subtle.ConstantTimeCompare([]byte(body.Password), g.password) != 1 {
		g.logger.Warn("admin login rejected")
		http.Error(w, "invalid password", http.StatusUnauthorized)
		return
	}

	expiry := g.now().Add(adminSessionTTL).Unix()
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    g.sign(expiry) + "." + strconv.FormatInt(expiry, 10),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(adminSessionTTL.Seconds()),
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// Middleware rejects admin requests without a valid admin cookie. The login
// endpoint itself must be registered outside this middleware.
func (g *AdminGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(adminCookieName)
		if err != nil || !g.verify(cookie.Value) {
			http.Error(w, "admin authorization required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *AdminGate) sign(expiry int64) string {
	mac := hmac.New(sha256.New, g.key)
	fmt.Fprintf(mac, "admin:%d", expiry)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *AdminGate) verify(value string) bool {
	sig, expiryStr, ok := strings.Cut(value, ".")
	if !ok {
		return false
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil || g.now().Unix() > expiry {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(g.sign(expiry)))
}
