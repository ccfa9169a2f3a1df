//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/autopilot/internal/session"
)

// TempDBPath returns a database path inside a per-test temp dir
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "autopilot.db")
}

// WriteAutomationFile drops an automation config into the registry dir the
// way a user editing by hand would
func WriteAutomationFile(t *testing.T, dir, id, frontmatter, prompt string) {
	t.Helper()
	content := "---\n" + frontmatter + "---\n\n" + prompt + "\n"
	if err := os.WriteFile(filepath.Join(dir, id+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// StartFakeAgent serves a minimal agent-session API: every session completes
// with an actionable summary. Returns the server base URL.
func StartFakeAgent(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/worktree", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(session.Worktree{Directory: "/worktrees/" + req.Name})
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(session.Session{ID: "ses-int"})
	})
	mux.HandleFunc("/session/ses-int/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/ses-int/abort", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/ses-int", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(session.Info{ID: "ses-int", Status: "idle"})
	})
	mux.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		flusher.Flush()
		frames := []string{
			"event: message.part.updated\ndata: {\"sessionID\":\"ses-int\",\"part\":{\"type\":\"text\",\"text\":\"Reviewed the backlog.\\nActionable: yes\"}}\n\n",
			"event: session.status\ndata: {\"sessionID\":\"ses-int\",\"status\":\"idle\"}\n\n",
		}
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
		<-r.Context().Done()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

// WaitFor polls cond until it holds or the deadline passes
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
