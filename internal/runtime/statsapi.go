package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/transflow/internal/runtime/collector"
	"github.com/drblury/transflow/internal/runtime/jsoncodec"
)

// StatsResponse is the body served by GET /api/stats.
type StatsResponse struct {
	Transport string          `json:"transport"`
	Ordered   bool            `json:"ordered"`
	Dispatch  *DispatchStats  `json:"dispatch"`
	Collector collector.Stats `json:"collector"`
}

// StartStatsServer registers the stats API when it is enabled. The handler is
// served once Start runs the HTTP servers.
func (s *Service) StartStatsServer() {
	if !s.Conf.StatsEnabled {
		return
	}

	port := s.Conf.StatsPort
	if port == 0 {
		port = 8081
	}

	s.RegisterHTTPHandler(port, "/api/stats", http.HandlerFunc(s.handleGetStats))
}

func (s *Service) statsResponse() StatsResponse {
	return StatsResponse{
		Transport: s.Conf.GetPubSubSystem(),
		Ordered:   s.transport.Capabilities.SupportsOrdering,
		Dispatch:  s.stats,
		Collector: s.collector.Stats(),
	}
}

func (s *Service) handleGetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.Conf != nil && len(s.Conf.StatsCORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(s.statsResponse())
	if err != nil {
		s.Logger.Error("Failed to encode stats", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.StatsCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
