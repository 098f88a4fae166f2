package models

import "encoding/json"

// Event types shared by the inbound and outbound wire shapes.
const (
	EventMessage     = "message"
	EventReaction    = "reaction"
	EventTyping      = "typing"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
)

// ClientEvent is the inbound event shape from the transport to the
// gateway. UserID must match the authenticated identity of the
// connection; a client-supplied mismatch is rejected.
type ClientEvent struct {
	Type    string          `json:"type"`
	GroupID string          `json:"group_id"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessagePayload is the payload of an inbound "message" event.
type MessagePayload struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ParentID    string       `json:"parent_id,omitempty"`
}

// ReactionPayload is the payload of an inbound "reaction" event.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Kind      string `json:"kind"`
	Add       bool   `json:"add"`
}

// TypingPayload is the payload of an inbound "typing" event.
type TypingPayload struct {
	DisplayName string `json:"display_name"`
}

// ServerEvent is the outbound event shape from the dispatcher to a
// connection.
type ServerEvent struct {
	Type     string          `json:"type"`
	GroupID  string          `json:"group_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	ServerTS int64           `json:"server_ts"`
}

// ReactionUpdate is the outbound payload of a reaction-changed event.
type ReactionUpdate struct {
	MessageID string              `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

// TypingSignal is the outbound payload of a typing event. Ephemeral and
// never persisted.
type TypingSignal struct {
	GroupID     string `json:"group_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}
