package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/session"
)

type stubResolver struct {
	client *session.Client
}

func (r stubResolver) ClientFor(ctx context.Context, workspace string) *session.Client {
	return r.client
}

// fakeSessionServer is a minimal in-process stand-in for the agent-session
// API, configurable per test
type fakeSessionServer struct {
	srv *httptest.Server

	worktreeFail   bool
	hasFileChanges bool
	frames         []string // SSE frames served on /event
	holdStream     chan struct{}

	mu               sync.Mutex
	createDir        string
	aborted          bool
	permissionReply  string
	rejectedQuestion string
}

func newFakeSessionServer(t *testing.T) *fakeSessionServer {
	f := &fakeSessionServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/worktree", func(w http.ResponseWriter, r *http.Request) {
		if f.worktreeFail {
			http.Error(w, "worktree creation failed", http.StatusInternalServerError)
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(session.Worktree{Directory: "/worktrees/" + req.Name})
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Directory string `json:"directory"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.createDir = req.Directory
		f.mu.Unlock()
		json.NewEncoder(w).Encode(session.Session{ID: "ses-1"})
	})
	mux.HandleFunc("/session/ses-1/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/ses-1/abort", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.aborted = true
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/ses-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(session.Info{ID: "ses-1", Status: "idle", HasFileChanges: f.hasFileChanges})
	})
	mux.HandleFunc("/permission/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reply string `json:"reply"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.permissionReply = req.Reply
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/question/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.rejectedQuestion = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/question/"), "/reject")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		flusher.Flush()
		for _, frame := range f.frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
		if f.holdStream != nil {
			select {
			case <-f.holdStream:
			case <-r.Context().Done():
			}
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSessionServer) executor(memoryDir string) *Executor {
	return New(stubResolver{client: session.NewClient(f.srv.URL)}, memoryDir)
}

func sseFrame(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

func testAutomation() *domain.Automation {
	return &domain.Automation{
		ID:     "nightly-triage",
		Name:   "Nightly triage",
		Prompt: "Triage open issues.",
		Status: domain.AutomationActive,
		Policy: domain.ExecutionPolicy{UseWorktree: true},
	}
}

func TestExecuteRunCompletes(t *testing.T) {
	f := newFakeSessionServer(t)
	f.hasFileChanges = true
	f.frames = []string{
		sseFrame("message.part.updated", `{"sessionID":"ses-1","part":{"type":"text","text":"Fixed the flaky test."}}`),
		sseFrame("permission.asked", `{"sessionID":"ses-1","requestID":"perm-1"}`),
		sseFrame("message.part.updated", `{"sessionID":"ses-1","part":{"type":"text","text":"Actionable: yes"}}`),
		sseFrame("session.status", `{"sessionID":"ses-1","status":"idle"}`),
	}

	var created SessionInfo
	result := f.executor("").ExecuteRun(context.Background(), testAutomation(), "/work/repo", func(info SessionInfo) {
		created = info
	})

	if result.Error != "" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if result.SessionID != "ses-1" {
		t.Errorf("got session id %q", result.SessionID)
	}
	if created.SessionID != "ses-1" || created.WorktreePath == "" {
		t.Errorf("callback got %+v", created)
	}
	if !strings.HasPrefix(result.WorktreePath, "/worktrees/automation-nightly-triage-") {
		t.Errorf("got worktree path %q", result.WorktreePath)
	}
	if !result.HasActionable {
		t.Error("explicit Actionable: yes should mark the run actionable")
	}
	if !strings.Contains(result.Summary, "Fixed the flaky test.") {
		t.Errorf("got summary %q", result.Summary)
	}
	if result.Branch != "automation/nightly-triage" {
		t.Errorf("got branch %q", result.Branch)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDir != result.WorktreePath {
		t.Errorf("session created in %q, want worktree %q", f.createDir, result.WorktreePath)
	}
	if f.permissionReply != "reject" {
		t.Errorf("permission request answered %q, want reject", f.permissionReply)
	}
}

func TestExecuteRunNotActionableByMarker(t *testing.T) {
	f := newFakeSessionServer(t)
	f.frames = []string{
		sseFrame("message.part.updated", `{"sessionID":"ses-1","part":{"type":"text","text":"Nothing to report.\nActionable: no"}}`),
		sseFrame("session.status", `{"sessionID":"ses-1","status":"idle"}`),
	}

	auto := testAutomation()
	auto.Policy.UseWorktree = false
	result := f.executor("").ExecuteRun(context.Background(), auto, "/work/repo", nil)

	if result.Error != "" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if result.HasActionable {
		t.Error("trailing Actionable: no should clear the actionable flag")
	}
	if result.WorktreePath != "" {
		t.Errorf("got worktree path %q without isolation", result.WorktreePath)
	}
}

func TestExecuteRunNoServer(t *testing.T) {
	e := New(stubResolver{client: nil}, "")
	result := e.ExecuteRun(context.Background(), testAutomation(), "/work/repo", nil)
	if result.Error != "No server running" {
		t.Errorf("got error %q", result.Error)
	}
}

func TestExecuteRunSessionError(t *testing.T) {
	f := newFakeSessionServer(t)
	f.frames = []string{
		sseFrame("message.part.updated", `{"sessionID":"ses-1","part":{"type":"text","text":"partial output"}}`),
		sseFrame("session.error", `{"sessionID":"ses-1","error":{"message":"rate limited"}}`),
		sseFrame("session.status", `{"sessionID":"ses-1","status":"idle"}`),
	}

	result := f.executor("").ExecuteRun(context.Background(), testAutomation(), "/work/repo", nil)

	if !strings.Contains(result.Error, "rate limited") {
		t.Errorf("got error %q", result.Error)
	}
	if !result.HasActionable {
		t.Error("a failed run always needs review")
	}
	if !strings.Contains(result.Summary, "rate limited") {
		t.Errorf("summary should carry the error text, got %q", result.Summary)
	}
	// The session id must survive into the failed result so the run row can
	// link back to the session.
	if result.SessionID != "ses-1" {
		t.Errorf("got session id %q", result.SessionID)
	}
}

func TestExecuteRunWorktreeFailureDegrades(t *testing.T) {
	f := newFakeSessionServer(t)
	f.worktreeFail = true
	f.hasFileChanges = true
	f.frames = []string{
		sseFrame("session.status", `{"sessionID":"ses-1","status":"idle"}`),
	}

	result := f.executor("").ExecuteRun(context.Background(), testAutomation(), "/work/repo", nil)

	if result.Error != "" {
		t.Fatalf("worktree failure must not fail the run: %q", result.Error)
	}
	if result.WorktreePath != "" {
		t.Errorf("got worktree path %q after provisioning failure", result.WorktreePath)
	}
	// No isolation means no advisory branch, even with file changes.
	if result.Branch != "" {
		t.Errorf("got branch %q", result.Branch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDir != "/work/repo" {
		t.Errorf("session created in %q, want original workspace", f.createDir)
	}
}

func TestExecuteRunTimeout(t *testing.T) {
	f := newFakeSessionServer(t)
	f.holdStream = make(chan struct{})
	defer close(f.holdStream)

	auto := testAutomation()
	auto.Policy.UseWorktree = false
	auto.Policy.TimeoutSeconds = 1

	result := f.executor("").ExecuteRun(context.Background(), auto, "/work/repo", nil)

	if !strings.Contains(result.Error, "timed out after 1s") {
		t.Errorf("got error %q", result.Error)
	}
	if !result.HasActionable {
		t.Error("timed-out run needs review")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.aborted {
		t.Error("timeout should abort the remote session")
	}
}

func TestExecuteRunCallbackPanicTolerated(t *testing.T) {
	f := newFakeSessionServer(t)
	f.frames = []string{
		sseFrame("session.status", `{"sessionID":"ses-1","status":"idle"}`),
	}

	auto := testAutomation()
	auto.Policy.UseWorktree = false
	result := f.executor("").ExecuteRun(context.Background(), auto, "/work/repo", func(SessionInfo) {
		panic("observer broke")
	})

	if result.Error != "" {
		t.Errorf("callback panic must not fail the run: %q", result.Error)
	}
}
