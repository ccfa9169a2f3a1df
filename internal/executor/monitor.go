package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agentdeck/autopilot/internal/session"
)

// MonitorResult is what the session monitor hands back to the executor
type MonitorResult struct {
	Text  string // accumulated assistant text, parts joined by newlines
	Error string // accumulated error lines, empty when none
}

// monitorAPI is the subset of the session client the monitor calls back into
type monitorAPI interface {
	Abort(ctx context.Context, sessionID string) error
	PermissionReply(ctx context.Context, requestID, reply string) error
	QuestionReject(ctx context.Context, requestID string) error
}

// monitorSession consumes the event stream scoped to one session until the
// session reaches idle, errors out, or the timeout elapses. Interactive
// requests that slipped past the ruleset are rejected immediately,
// best-effort. Every error line is kept; none are dropped.
func monitorSession(ctx context.Context, api monitorAPI, stream *session.Stream, sessionID string, timeout time.Duration) MonitorResult {
	var texts []string
	var errs []string

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	appendErr := func(msg string) {
		errs = append(errs, msg)
	}

loop:
	for {
		select {
		case <-timer.C:
			// Best-effort abort; the remote session may keep running briefly
			// but nothing consumes it anymore.
			if err := api.Abort(ctx, sessionID); err != nil {
				log.Printf("monitor: %s: abort after timeout: %v", sessionID, err)
			}
			appendErr(fmt.Sprintf("timed out after %ds", int(timeout.Seconds())))
			break loop

		case <-ctx.Done():
			break loop

		case ev, ok := <-stream.Events():
			if !ok {
				// Stream ended. A transport failure while we were still
				// monitoring is an error; a deliberate cancel is not.
				if err := stream.Err(); err != nil && ctx.Err() == nil {
					appendErr(fmt.Sprintf("event stream failed: %v", err))
				}
				break loop
			}

			switch e := ev.(type) {
			case session.MessagePart:
				if e.SessionID == sessionID {
					texts = append(texts, e.Text)
				}
			case session.SessionError:
				if e.SessionID == sessionID {
					appendErr(e.Message)
				}
			case session.PermissionAsked:
				if e.SessionID == sessionID {
					if err := api.PermissionReply(ctx, e.RequestID, "reject"); err != nil {
						log.Printf("monitor: %s: rejecting permission request %s: %v", sessionID, e.RequestID, err)
					}
				}
			case session.QuestionAsked:
				if e.SessionID == sessionID {
					if err := api.QuestionReject(ctx, e.RequestID); err != nil {
						log.Printf("monitor: %s: rejecting question %s: %v", sessionID, e.RequestID, err)
					}
				}
			case session.SessionStatus:
				if e.SessionID == sessionID && e.Status == session.StatusIdle {
					break loop
				}
			}
		}
	}

	return MonitorResult{
		Text:  strings.Join(texts, "\n"),
		Error: strings.Join(errs, "\n"),
	}
}
