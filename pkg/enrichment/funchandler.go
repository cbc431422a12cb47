package enrichment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/copiloto/salesdash/pkg/observability"
)

// FuncHandler is the server-side half of the function transport: it holds
// the upstream internal API host and credentials so the browser-facing tier
// never needs them. The proxy transport failing is what routes traffic here.
type FuncHandler struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewFuncHandler creates the function handler. apiBase is the upstream
// internal API base URL.
func NewFuncHandler(apiBase, apiKey string, logger *observability.Logger, httpClient *http.Client) *FuncHandler {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &FuncHandler{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// RegisterRoutes registers the function endpoint
func (h *FuncHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/functions/fetch-internal-user", h.FetchInternalUser).Methods("POST")
}

// FetchInternalUser handles POST /functions/fetch-internal-user. The body
// must be {"accessToken": "..."}; the token is relayed upstream as a bearer
// credential and the upstream JSON is returned as-is.
func (h *FuncHandler) FetchInternalUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.AccessToken == "" {
		writeJSONError(w, http.StatusBadRequest, "access token is required")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.apiBase+"/users/me", nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("X-Api-Key", h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.WithError(err).Error("upstream internal API request failed")
		writeJSONError(w, http.StatusBadGateway, "failed to reach internal API")
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to read internal API response")
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(payload[:min(len(payload), 512)]),
		}).Error("internal API returned an error")
		writeJSONError(w, resp.StatusCode, fmt.Sprintf("internal API error: %d", resp.StatusCode))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
