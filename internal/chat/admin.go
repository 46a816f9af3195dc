package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandler serves metrics, a health report and, when configured, the
// websocket ingress.
func (s *Server) AdminHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.healthHandler)
	if s.cfg.WSPath != "" {
		r.Handle(s.cfg.WSPath, s.WebSocketHandler())
	}
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Stats())
}
