package idpconfig

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/copiloto/salesdash/pkg/observability"
)

// Handlers exposes the administrative configuration endpoints consumed by
// the auth-config screen
type Handlers struct {
	store  *Store
	logger *observability.Logger

	// onSaved, when set, is invoked after a successful save so the session
	// manager can reconstruct its client with the new parameters
	onSaved func(Config)
}

// NewHandlers creates configuration handlers
func NewHandlers(store *Store, logger *observability.Logger, onSaved func(Config)) *Handlers {
	return &Handlers{
		store:   store,
		logger:  logger,
		onSaved: onSaved,
	}
}

// RegisterRoutes registers configuration routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/auth/config", h.getConfig).Methods("GET")
	router.HandleFunc("/api/auth/config", h.saveConfig).Methods("POST")
	router.HandleFunc("/api/auth/config/check", h.checkConfig).Methods("GET")
}

// getConfig handles GET /api/auth/config
func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, source, err := h.store.Load(r.Context())
	if err == ErrNotFound {
		http.Error(w, "no configuration found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"client_id":  cfg.ClientID,
		"tenant":     cfg.Tenant,
		"has_secret": cfg.ClientSecret != "",
		"source":     source,
	})
}

// saveRequest is the POST /api/auth/config body
type saveRequest struct {
	ClientID     string `json:"client_id"`
	Tenant       string `json:"tenant"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// saveConfig handles POST /api/auth/config
func (h *Handlers) saveConfig(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	cfg := Config{
		ClientID:     req.ClientID,
		Tenant:       req.Tenant,
		ClientSecret: req.ClientSecret,
	}

	result, err := h.store.Save(r.Context(), cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.onSaved != nil {
		h.onSaved(cfg)
	}

	resp := map[string]interface{}{"saved": true}
	if result.SavedLocalOnly {
		resp["warning"] = "configuration saved locally only; durable store unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// checkConfig handles GET /api/auth/config/check
func (h *Handlers) checkConfig(w http.ResponseWriter, r *http.Request) {
	check := h.store.Check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(check)
}
