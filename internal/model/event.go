package model

import "time"

// Stream event payloads for the SSE surface.

// TokenEvent carries one text delta of a streaming turn.
type TokenEvent struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// MessageCompleteEvent signals that the assistant message finalized.
type MessageCompleteEvent struct {
	Message Message `json:"message"`
}

// ReplacementEvent signals that the stream switched into
// summary-replacement mode, or carries the replacement text so far.
type ReplacementEvent struct {
	Started bool   `json:"started,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ErrorEvent carries a turn-level error to the client.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
