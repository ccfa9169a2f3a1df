package session

import "encoding/json"

// Event is the closed union of stream events the automation engine consumes.
// Every event type the server may emit decodes to exactly one of the
// concrete types below; types the engine does not care about decode to
// Ignored rather than being probed field-by-field at the use sites.
type Event interface {
	eventType() string
}

// MessagePart carries a text delta for a session's assistant message
type MessagePart struct {
	SessionID string
	Text      string
}

// SessionError reports a logical error raised inside a session
type SessionError struct {
	SessionID string
	Message   string
}

// PermissionAsked is an interactive permission request that slipped past the
// session's ruleset
type PermissionAsked struct {
	SessionID string
	RequestID string
}

// QuestionAsked is an interactive question from the agent
type QuestionAsked struct {
	SessionID string
	RequestID string
}

// SessionStatus reports a session status change; StatusIdle is the normal
// terminal state
type SessionStatus struct {
	SessionID string
	Status    string
}

// Ignored is any event type the engine does not consume
type Ignored struct {
	Type string
}

func (MessagePart) eventType() string     { return EventMessagePart }
func (SessionError) eventType() string    { return EventSessionError }
func (PermissionAsked) eventType() string { return EventPermissionAsked }
func (QuestionAsked) eventType() string   { return EventQuestionAsked }
func (SessionStatus) eventType() string   { return EventSessionStatus }
func (e Ignored) eventType() string       { return e.Type }

// Wire event type names
const (
	EventMessagePart     = "message.part.updated"
	EventSessionError    = "session.error"
	EventPermissionAsked = "permission.asked"
	EventQuestionAsked   = "question.asked"
	EventSessionStatus   = "session.status"
)

// StatusIdle is the session status signalling normal completion
const StatusIdle = "idle"

type messagePartPayload struct {
	SessionID string `json:"sessionID"`
	Part      struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"part"`
}

type sessionErrorPayload struct {
	SessionID string `json:"sessionID"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

type requestPayload struct {
	SessionID string `json:"sessionID"`
	RequestID string `json:"requestID"`
}

type statusPayload struct {
	SessionID string `json:"sessionID"`
	Status    string `json:"status"`
}

// decodeEvent maps a wire (type, data) pair onto the closed union. Unknown
// types and undecodable payloads become Ignored; the stream never fails on
// a single bad event.
func decodeEvent(typ string, data []byte) Event {
	switch typ {
	case EventMessagePart:
		var p messagePartPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Part.Type != "text" {
			return Ignored{Type: typ}
		}
		return MessagePart{SessionID: p.SessionID, Text: p.Part.Text}

	case EventSessionError:
		var p sessionErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Ignored{Type: typ}
		}
		return SessionError{SessionID: p.SessionID, Message: p.Error.Message}

	case EventPermissionAsked:
		var p requestPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Ignored{Type: typ}
		}
		return PermissionAsked{SessionID: p.SessionID, RequestID: p.RequestID}

	case EventQuestionAsked:
		var p requestPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Ignored{Type: typ}
		}
		return QuestionAsked{SessionID: p.SessionID, RequestID: p.RequestID}

	case EventSessionStatus:
		var p statusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Ignored{Type: typ}
		}
		return SessionStatus{SessionID: p.SessionID, Status: p.Status}

	default:
		return Ignored{Type: typ}
	}
}
