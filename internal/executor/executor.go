// Package executor drives one (automation, workspace) execution end-to-end:
// isolation, session creation, prompt dispatch, stream monitoring, and
// result classification.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/session"
)

// Resolver maps a workspace to a session-API client. It returns nil when no
// backing server is reachable for the workspace.
type Resolver interface {
	ClientFor(ctx context.Context, workspace string) *session.Client
}

// SingleServer resolves every workspace to one configured server, probing
// reachability per call
type SingleServer struct {
	client *session.Client
}

// NewSingleServer creates a resolver for the server at baseURL
func NewSingleServer(baseURL string) *SingleServer {
	if baseURL == "" {
		return &SingleServer{}
	}
	return &SingleServer{client: session.NewClient(baseURL)}
}

// ClientFor returns the configured client if the server answers a ping
func (s *SingleServer) ClientFor(ctx context.Context, workspace string) *session.Client {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx); err != nil {
		return nil
	}
	return s.client
}

// Result is the outcome of one execution attempt. A non-empty Error marks
// the attempt failed; the orchestrator's retry loop keys off it. SessionID
// and WorktreePath are populated as soon as known even on failure.
type Result struct {
	SessionID     string
	WorktreePath  string
	Title         string
	Summary       string
	HasActionable bool
	Branch        string
	Error         string
}

// SessionInfo is handed to the onSessionCreated callback before the
// monitoring phase so callers can persist identifying info early
type SessionInfo struct {
	SessionID    string
	WorktreePath string
}

// Executor runs automations against the session API
type Executor struct {
	resolver  Resolver
	memoryDir string
	now       func() time.Time
}

// New creates an executor. memoryDir holds per-automation memory files and
// may be empty.
func New(resolver Resolver, memoryDir string) *Executor {
	return &Executor{
		resolver:  resolver,
		memoryDir: memoryDir,
		now:       time.Now,
	}
}

// ExecuteRun performs one attempt for (automation, workspace). Failures are
// reported through Result.Error; no error or panic escapes this function,
// since an escaped failure would take down the caller's retry loop.
func (e *Executor) ExecuteRun(ctx context.Context, auto *domain.Automation, workspace string, onSessionCreated func(SessionInfo)) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("unexpected failure: %v", r)
		}
	}()

	// A missing server is terminal for this attempt: retrying inside the
	// same call cannot make a server appear.
	client := e.resolver.ClientFor(ctx, workspace)
	if client == nil {
		result.Error = "No server running"
		return result
	}

	dir := workspace
	if auto.Policy.UseWorktree {
		name := WorktreeName(auto.ID, e.now().Unix())
		wt, err := client.CreateWorktree(ctx, name)
		if err != nil {
			// Isolation is best-effort: continue in the original workspace.
			log.Printf("executor: %s: creating worktree %s: %v (continuing unisolated)", auto.ID, name, err)
		} else {
			dir = wt.Directory
			result.WorktreePath = wt.Directory
		}
	}

	rules := BuildRuleset(auto.Policy.PermissionPreset)
	title := fmt.Sprintf("Automation: %s", auto.Name)
	sess, err := client.Create(ctx, title, dir, rules)
	if err != nil {
		result.Error = fmt.Sprintf("creating session: %v", err)
		return result
	}
	if sess.ID == "" {
		result.Error = "session created without an id"
		return result
	}
	result.SessionID = sess.ID
	result.Title = auto.Name

	if onSessionCreated != nil {
		notifySessionCreated(onSessionCreated, SessionInfo{
			SessionID:    sess.ID,
			WorktreePath: result.WorktreePath,
		})
	}

	// Subscribe before dispatching so no completion event can be missed.
	// The cancel doubles as the cleanup that stops stream consumption on
	// every exit path.
	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.Subscribe(monCtx)
	if err != nil {
		result.Error = fmt.Sprintf("subscribing to events: %v", err)
		return result
	}
	defer stream.Close()

	system := BuildSystemPrompt(ReadMemory(e.memoryDir, auto.ID))
	var model *domain.ModelRef
	if ref, ok := domain.ParseModelRef(auto.Policy.Model); ok {
		model = &ref
	}
	if err := client.PromptAsync(ctx, sess.ID, system, auto.Prompt, model); err != nil {
		result.Error = fmt.Sprintf("dispatching prompt: %v", err)
		return result
	}

	mon := monitorSession(monCtx, client, stream, sess.ID, auto.Policy.Timeout())

	if mon.Error != "" {
		// Errors always require human attention.
		result.Error = mon.Error
		result.HasActionable = true
		result.Summary = TruncateSummary(mon.Error)
	} else {
		result.HasActionable = ParseActionable(mon.Text)
		result.Summary = TruncateSummary(mon.Text)
	}

	// Advisory branch metadata, not authoritative branch tracking.
	if info, err := client.Get(ctx, sess.ID); err == nil {
		if info.HasFileChanges && result.WorktreePath != "" {
			result.Branch = BranchName(auto.ID)
		}
	}

	return result
}

// notifySessionCreated invokes the callback, swallowing a panic so a broken
// observer cannot fail the run
func notifySessionCreated(fn func(SessionInfo), info SessionInfo) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("executor: onSessionCreated callback panicked: %v", r)
		}
	}()
	fn(info)
}
