// Package realtime drives a speech-to-speech model session over the
// OpenAI Realtime WebSocket API.
package realtime

import "encoding/json"

// EventKind discriminates session events surfaced to the orchestrator.
type EventKind int

const (
	// EventUserTranscript fires when a user turn's transcription completes.
	EventUserTranscript EventKind = iota
	// EventAssistantDone fires when an assistant response finishes.
	EventAssistantDone
	// EventFunctionCall fires when the model requests a tool invocation.
	EventFunctionCall
	// EventError fires on a server-reported error.
	EventError
	// EventClosed fires once when the session socket closes.
	EventClosed
)

// Event is a session event. Fields are populated per kind.
type Event struct {
	Kind EventKind

	// Transcript text (user) or response text (assistant).
	Text string

	// Function call details.
	CallID string
	Name   string
	Args   json.RawMessage

	Err error
}

// ToolDef describes a function tool advertised to the model.
type ToolDef struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SessionConfig is sent with session.update.
type SessionConfig struct {
	Voice        string    `json:"voice"`
	Instructions string    `json:"instructions"`
	Tools        []ToolDef `json:"tools,omitempty"`

	Modalities              []string               `json:"modalities,omitempty"`
	InputAudioTranscription map[string]interface{} `json:"input_audio_transcription,omitempty"`
	TurnDetection           map[string]interface{} `json:"turn_detection,omitempty"`
}

// client → server frames

type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type conversationItemCreateEvent struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"` // message, function_call_output
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreateEvent struct {
	Type     string          `json:"type"`
	Response *responseParams `json:"response,omitempty"`
}

type responseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// server → client frames

type serverEvent struct {
	Type       string          `json:"type"`
	Transcript string          `json:"transcript,omitempty"`
	Response   *serverResponse `json:"response,omitempty"`
	Error      *serverError    `json:"error,omitempty"`
}

type serverResponse struct {
	Output []serverOutputItem `json:"output,omitempty"`
}

type serverOutputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`

	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
