package proxy

import (
	"net/http"

	"github.com/nilsecker/anthrogate/internal/config"
)

// healthResponse is the supplemented GET /healthz body, surfacing enough
// of the active config snapshot to debug a reload without leaking
// secrets (no API keys, no base URLs).
type healthResponse struct {
	Status        string `json:"status"`
	ProviderCount int    `json:"provider_count"`
	LogLevel      string `json:"log_level"`
}

// HealthzHandler reports liveness plus a coarse view of the active
// config generation.
type HealthzHandler struct {
	ConfigStore *config.Store
}

func (h *HealthzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.ConfigStore.Get()
	writeJSON(r.Context(), w, healthResponse{
		Status:        "ok",
		ProviderCount: len(cfg.Providers),
		LogLevel:      cfg.LogLevel,
	}, http.StatusOK)
}

// RootHandler answers GET / with a bare 200, the liveness check spec.md
// §6 requires independent of config state.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
