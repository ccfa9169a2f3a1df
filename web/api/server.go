// Package api is the HTTP status surface consumed by the desktop shell and
// the CLI: automation listings, run history, triggers, and push channels
// (SSE and websocket) carrying change signals.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/notify"
	"github.com/agentdeck/autopilot/internal/runstore"
)

// Engine is the subset of the orchestrator the API drives
type Engine interface {
	RunNow(id string) bool
	AcceptRun(runID string) error
	ArchiveRun(runID string) error
	MarkRunRead(runID string) error
	PauseAutomation(id string) error
	ResumeAutomation(id string) error
}

// Registry is the subset of the config registry the API reads
type Registry interface {
	List() ([]*domain.Automation, error)
	Get(id string) (*domain.Automation, error)
}

// RunStore is the subset of the run store the API reads
type RunStore interface {
	ListRuns(opts runstore.ListRunOptions) ([]*domain.Run, error)
	GetRun(runID string) (*domain.Run, error)
	GetTiming(automationID string) (*domain.Timing, error)
	CountByStatus() (map[domain.RunStatus]int, error)
}

// Server is the HTTP API server
type Server struct {
	engine   Engine
	registry Registry
	store    RunStore
	hub      *notify.Hub
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
}

// NewServer creates a new API server
func NewServer(engine Engine, reg Registry, store RunStore, hub *notify.Hub, addr string) *Server {
	s := &Server{
		engine:   engine,
		registry: reg,
		store:    store,
		hub:      hub,
		addr:     addr,
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/automations", s.listAutomationsHandler())
	s.mux.HandleFunc("/api/automations/", s.automationActionHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.runActionHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Handler exposes the routed mux, mainly for tests
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled. It bridges hub change signals into
// the SSE/websocket push channels.
func (s *Server) Start(ctx context.Context) error {
	go s.sseHub.Run(ctx)
	go s.forwardChanges(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// forwardChanges turns hub wakeups into "changed" push events. Clients
// re-fetch; the event carries no payload.
func (s *Server) forwardChanges(ctx context.Context) {
	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.sseHub.Broadcast(SSEEvent{Type: "changed"})
		}
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
