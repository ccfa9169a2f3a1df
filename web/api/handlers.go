package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/runstore"
)

// AutomationResponse is the API shape of an automation plus its timing
type AutomationResponse struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Status              string   `json:"status"`
	RRule               string   `json:"rrule,omitempty"`
	Cron                string   `json:"cron,omitempty"`
	Timezone            string   `json:"timezone,omitempty"`
	Workspaces          []string `json:"workspaces,omitempty"`
	NextRunAt           *string  `json:"next_run_at,omitempty"`
	LastRunAt           *string  `json:"last_run_at,omitempty"`
	RunCount            int      `json:"run_count"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
}

// RunResponse is the API shape of a run
type RunResponse struct {
	ID             string  `json:"id"`
	AutomationID   string  `json:"automation_id"`
	Workspace      string  `json:"workspace,omitempty"`
	Status         string  `json:"status"`
	Attempt        int     `json:"attempt"`
	SessionID      string  `json:"session_id,omitempty"`
	WorktreePath   string  `json:"worktree_path,omitempty"`
	StartedAt      string  `json:"started_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	Title          string  `json:"title,omitempty"`
	Summary        string  `json:"summary,omitempty"`
	HasActionable  bool    `json:"has_actionable"`
	Branch         string  `json:"branch,omitempty"`
	Error          string  `json:"error,omitempty"`
	ArchivedReason string  `json:"archived_reason,omitempty"`
	Read           bool    `json:"read"`
}

// StatusResponse is the API response for overall engine status
type StatusResponse struct {
	Automations   int `json:"automations"`
	Active        int `json:"active"`
	Paused        int `json:"paused"`
	Running       int `json:"runs_running"`
	PendingReview int `json:"runs_pending_review"`
	Failed        int `json:"runs_failed"`
}

func rfc3339Ptr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func (s *Server) automationToResponse(a *domain.Automation) AutomationResponse {
	resp := AutomationResponse{
		ID:         a.ID,
		Name:       a.Name,
		Status:     string(a.Status),
		RRule:      a.Schedule.RRule,
		Cron:       a.Schedule.Cron,
		Timezone:   a.Schedule.Timezone,
		Workspaces: a.Workspaces,
	}
	if timing, err := s.store.GetTiming(a.ID); err == nil {
		resp.NextRunAt = rfc3339Ptr(timing.NextRunAt)
		resp.LastRunAt = rfc3339Ptr(timing.LastRunAt)
		resp.RunCount = timing.RunCount
		resp.ConsecutiveFailures = timing.ConsecutiveFailures
	}
	return resp
}

func runToResponse(r *domain.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		AutomationID:   r.AutomationID,
		Workspace:      r.Workspace,
		Status:         string(r.Status),
		Attempt:        r.Attempt,
		SessionID:      r.SessionID,
		WorktreePath:   r.WorktreePath,
		StartedAt:      r.StartedAt.Format(time.RFC3339),
		CompletedAt:    rfc3339Ptr(r.CompletedAt),
		Title:          r.ResultTitle,
		Summary:        r.ResultSummary,
		HasActionable:  r.ResultHasActionable,
		Branch:         r.ResultBranch,
		Error:          r.ErrorMessage,
		ArchivedReason: string(r.ArchivedReason),
		Read:           r.ReadAt != nil,
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		autos, err := s.registry.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var status StatusResponse
		status.Automations = len(autos)
		for _, a := range autos {
			switch a.Status {
			case domain.AutomationActive:
				status.Active++
			case domain.AutomationPaused:
				status.Paused++
			}
		}

		if counts, err := s.store.CountByStatus(); err == nil {
			status.Running = counts[domain.RunRunning]
			status.PendingReview = counts[domain.RunPendingReview]
			status.Failed = counts[domain.RunFailed]
		}

		writeJSON(w, status)
	}
}

func (s *Server) listAutomationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		autos, err := s.registry.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]AutomationResponse, len(autos))
		for i, a := range autos {
			responses[i] = s.automationToResponse(a)
		}
		writeJSON(w, responses)
	}
}

// automationActionHandler serves /api/automations/{id} and the trigger,
// pause and resume actions beneath it
func (s *Server) automationActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/automations/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "automation id required")
			return
		}

		id, action := path, ""
		if idx := strings.IndexByte(path, '/'); idx >= 0 {
			id, action = path[:idx], path[idx+1:]
		}

		switch action {
		case "":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			auto, err := s.registry.Get(id)
			if err != nil {
				writeError(w, http.StatusNotFound, "automation not found")
				return
			}
			writeJSON(w, s.automationToResponse(auto))

		case "trigger":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			if !s.engine.RunNow(id) {
				writeError(w, http.StatusNotFound, "automation not found")
				return
			}
			writeJSON(w, map[string]string{"status": "triggered"})

		case "pause":
			s.postAction(w, r, func() error { return s.engine.PauseAutomation(id) }, "paused")

		case "resume":
			s.postAction(w, r, func() error { return s.engine.ResumeAutomation(id) }, "resumed")

		default:
			writeError(w, http.StatusNotFound, "unknown action")
		}
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		opts := runstore.ListRunOptions{
			AutomationID: r.URL.Query().Get("automation"),
			Status:       domain.RunStatus(r.URL.Query().Get("status")),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				opts.Limit = n
			}
		}

		runs, err := s.store.ListRuns(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}
		writeJSON(w, responses)
	}
}

// runActionHandler serves /api/runs/{id} and the accept, archive and read
// actions beneath it
func (s *Server) runActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "run id required")
			return
		}

		id, action := path, ""
		if idx := strings.IndexByte(path, '/'); idx >= 0 {
			id, action = path[:idx], path[idx+1:]
		}

		switch action {
		case "":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			run, err := s.store.GetRun(id)
			if err != nil {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeJSON(w, runToResponse(run))

		case "accept":
			s.postAction(w, r, func() error { return s.engine.AcceptRun(id) }, "accepted")

		case "archive":
			s.postAction(w, r, func() error { return s.engine.ArchiveRun(id) }, "archived")

		case "read":
			s.postAction(w, r, func() error { return s.engine.MarkRunRead(id) }, "read")

		default:
			writeError(w, http.StatusNotFound, "unknown action")
		}
	}
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request, fn func() error, status string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := fn(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": status})
}
