package api

import (
	"encoding/json"
	"net/http"
)

// health handles GET /health for load balancer probes.
// Bypasses the middleware stack so probes are never rate limited.
func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
