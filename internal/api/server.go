// Package api is the presentation shell: a JSON HTTP surface over the
// comparison orchestrator for external renderers and charting consumers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forecastskill/internal/compare"
)

type Server struct {
	orch *compare.Orchestrator
	port string
}

func NewServer(orch *compare.Orchestrator, port string) *Server {
	return &Server{orch: orch, port: port}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comparison", s.handleComparison)
	mux.HandleFunc("/api/comparison/series", s.handleSeries)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.orch.Last())
}

// handleSeries serves the capped recent window for charting, per source.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	last := s.orch.Last()
	series := map[string]any{
		"primary": last.Statistics.RecentWindow,
	}
	if last.StatisticsSecondary != nil {
		series["secondary"] = last.StatisticsSecondary.RecentWindow
	}
	writeJSON(w, series)
}

// handleRefresh triggers an on-demand cycle. The cycle result is returned
// either way; a failed cycle carries its error in the body.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := s.orch.Tick(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(res)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "ok",
		"state":  s.orch.State().String(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
