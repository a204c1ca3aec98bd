package api

import (
	"net/http"
	"time"

	"github.com/user/isp-cabinet/internal/metrics"
	"github.com/user/isp-cabinet/pkg/isp"
)

// ProviderDTO represents a registered provider in the API.
type ProviderDTO struct {
	Identifiers  []string `json:"identifiers"`
	Title        string   `json:"title"`
	ScanInterval string   `json:"scan_interval"`
}

// handleProviders lists every registered provider.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveRequest("/api/providers", start)

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var list []ProviderDTO
	for _, d := range isp.Providers() {
		list = append(list, ProviderDTO{
			Identifiers:  d.Identifiers,
			Title:        d.Title,
			ScanInterval: d.ScanInterval.String(),
		})
	}
	writeJSON(w, list)
}
