// Package session is the HTTP + server-sent-event client for the remote
// agent-session API the automation engine executes against.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentdeck/autopilot/internal/domain"
)

// callTimeout bounds every individual API call so a hung request cannot
// block a run undetected. This is distinct from the overall run timeout.
const callTimeout = 60 * time.Second

// Client talks to one agent-session server
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No global client timeout: Subscribe holds its connection open for
		// the whole monitoring phase. Individual calls bound themselves.
		http: &http.Client{},
	}
}

// BaseURL returns the server URL this client talks to
func (c *Client) BaseURL() string { return c.baseURL }

// Session is the handle returned by Create
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Info is session metadata returned by Get
type Info struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	HasFileChanges bool   `json:"hasFileChanges"`
}

// Worktree describes an isolated checkout provisioned by the server
type Worktree struct {
	Directory string `json:"directory"`
	Branch    string `json:"branch"`
}

// PermissionRule is one (capability pattern, action) entry in an ordered
// ruleset; the server resolves conflicts last-match-wins
type PermissionRule struct {
	Pattern string `json:"pattern"`
	Action  string `json:"action"` // "allow" or "deny"
}

// Ping probes server reachability
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	return c.call(ctx, http.MethodGet, "/health", nil, &out)
}

// Create opens a new session scoped to the given directory
func (c *Client) Create(ctx context.Context, title, directory string, rules []PermissionRule) (*Session, error) {
	req := struct {
		Title       string           `json:"title"`
		Directory   string           `json:"directory,omitempty"`
		Permissions []PermissionRule `json:"permissions,omitempty"`
	}{Title: title, Directory: directory, Permissions: rules}

	var sess Session
	if err := c.call(ctx, http.MethodPost, "/session", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// PromptAsync dispatches a prompt to the session and returns as soon as the
// server acknowledges it; completion is observed via the event stream.
func (c *Client) PromptAsync(ctx context.Context, sessionID, system, prompt string, model *domain.ModelRef) error {
	req := struct {
		System     string `json:"system,omitempty"`
		Parts      []part `json:"parts"`
		ProviderID string `json:"providerID,omitempty"`
		ModelID    string `json:"modelID,omitempty"`
	}{
		System: system,
		Parts:  []part{{Type: "text", Text: prompt}},
	}
	if model != nil {
		req.ProviderID = model.ProviderID
		req.ModelID = model.ModelID
	}
	return c.call(ctx, http.MethodPost, "/session/"+sessionID+"/prompt", req, nil)
}

type part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Get fetches session metadata
func (c *Client) Get(ctx context.Context, sessionID string) (*Info, error) {
	var info Info
	if err := c.call(ctx, http.MethodGet, "/session/"+sessionID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Abort asks the server to stop the session
func (c *Client) Abort(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodPost, "/session/"+sessionID+"/abort", nil, nil)
}

// PermissionReply answers an interactive permission request
func (c *Client) PermissionReply(ctx context.Context, requestID, reply string) error {
	req := struct {
		Reply string `json:"reply"`
	}{Reply: reply}
	return c.call(ctx, http.MethodPost, "/permission/"+requestID+"/reply", req, nil)
}

// QuestionReject rejects an interactive question request
func (c *Client) QuestionReject(ctx context.Context, requestID string) error {
	return c.call(ctx, http.MethodPost, "/question/"+requestID+"/reject", nil, nil)
}

// CreateWorktree provisions an isolated worktree with the given name
func (c *Client) CreateWorktree(ctx context.Context, name string) (*Worktree, error) {
	req := struct {
		Name string `json:"name"`
	}{Name: name}

	var wt Worktree
	if err := c.call(ctx, http.MethodPost, "/worktree", req, &wt); err != nil {
		return nil, err
	}
	return &wt, nil
}

// call performs one bounded JSON request/response round trip
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// Stream is a live event subscription. Events closes when the stream ends;
// Err reports the transport failure, if any, once the channel is closed.
type Stream struct {
	events chan Event
	cancel context.CancelFunc

	err  error
	done chan struct{}
}

// Events returns the decoded event channel
func (s *Stream) Events() <-chan Event { return s.events }

// Err returns the transport error that ended the stream, or nil on a clean
// close. Valid only after Events is closed.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close tears down the subscription
func (s *Stream) Close() {
	s.cancel()
}

// Subscribe opens the server's event stream. The returned Stream delivers
// decoded events until ctx is cancelled, Close is called, or the transport
// fails.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("subscribing to event stream: status %d", resp.StatusCode)
	}

	s := &Stream{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.consume(ctx, resp.Body)
	return s, nil
}

// consume parses SSE frames ("event:" name plus "data:" payload, blank-line
// terminated) and forwards decoded events
func (s *Stream) consume(ctx context.Context, body io.ReadCloser) {
	defer close(s.events)
	defer close(s.done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var eventType string
	var data bytes.Buffer

	flush := func() {
		if data.Len() == 0 && eventType == "" {
			return
		}
		ev := decodeEvent(eventType, data.Bytes())
		eventType = ""
		data.Reset()
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if ctx.Err() != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.err = err
	}
}
