// Package inspect serves compiled frame plans over HTTP for debugging.
//
// The server publishes the most recently compiled plan as JSON, DOT and
// SVG. It is a development tool: run it next to the engine, recompile,
// refresh the browser. It never touches the GPU.
package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/glasswing-gfx/framegraph/pkg/buildinfo"
	"github.com/glasswing-gfx/framegraph/pkg/export"
	"github.com/glasswing-gfx/framegraph/pkg/framegraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// Server publishes compiled plans. Publishing and serving are safe to
// interleave from different goroutines.
type Server struct {
	addr   string
	logger *log.Logger

	mu   sync.RWMutex
	plan *framegraph.Plan
	reg  *registry.Registry
}

// NewServer creates a server listening on addr.
func NewServer(addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{addr: addr, logger: logger}
}

// Publish replaces the served plan.
func (s *Server) Publish(plan *framegraph.Plan, reg *registry.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
	s.reg = reg
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Get("/plan", s.handlePlan)
	r.Get("/plan/dot", s.handleDOT)
	r.Get("/plan/svg", s.handleSVG)
	return r
}

// ListenAndServe blocks until the context is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspection server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

// planSummary is the JSON shape of a compiled plan.
type planSummary struct {
	Fingerprint string        `json:"fingerprint"`
	Queue       string        `json:"queue"`
	Passes      []passSummary `json:"passes"`
	Edges       int           `json:"edges"`
	Barriers    int           `json:"barriers"`
	Blocks      int           `json:"blocks"`
	BytesUsed   uint64        `json:"bytes_used"`
}

type passSummary struct {
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	Barrier  bool     `json:"barrier"`
	Accesses []string `json:"accesses"`
}

func (s *Server) snapshot() (*framegraph.Plan, *registry.Registry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan, s.reg
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	plan, reg := s.snapshot()
	if plan == nil {
		http.Error(w, "no plan published", http.StatusNotFound)
		return
	}

	summary := planSummary{
		Fingerprint: plan.Fingerprint,
		Queue:       plan.Graph.QueueKind().String(),
		Edges:       plan.Stats.EdgeCount,
		Barriers:    plan.Stats.BarrierCount,
		Blocks:      plan.Stats.BlockCount,
		BytesUsed:   plan.Stats.BytesUsed,
	}
	for i, pass := range plan.Graph.Passes {
		ps := passSummary{
			Index:   i,
			Name:    pass.Name,
			Barrier: !plan.Sync.Barriers[i].Empty(),
		}
		for _, a := range pass.Accesses {
			name := ""
			if res, err := reg.Lookup(a.Resource); err == nil {
				name = res.Name
			}
			ps.Accesses = append(ps.Accesses, a.Mode.String()+" "+name)
		}
		summary.Passes = append(summary.Passes, ps)
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	plan, reg := s.snapshot()
	if plan == nil {
		http.Error(w, "no plan published", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(export.ToDOT(plan, reg, export.Options{Detailed: r.URL.Query().Get("detailed") == "true"})))
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	plan, reg := s.snapshot()
	if plan == nil {
		http.Error(w, "no plan published", http.StatusNotFound)
		return
	}
	svg, err := export.RenderSVG(export.ToDOT(plan, reg, export.Options{}))
	if err != nil {
		s.logger.Error("svg render failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
