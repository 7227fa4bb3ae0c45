package storage

import "time"

// Outcome of a relay call.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeGuarded     Outcome = "guarded"
	OutcomeFallback    Outcome = "fallback"
	OutcomeConfigError Outcome = "config_error"
)

// Event describes one relay call. It carries metadata only: no message
// text, no answers and nothing that identifies the person taking the
// questionnaire.
type Event struct {
	Timestamp        time.Time `json:"timestamp"`
	Phase            string    `json:"phase"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	Outcome          Outcome   `json:"outcome"`
	UpstreamStatus   int       `json:"upstream_status,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
}

// Recorder abstracts persistence of relay audit events.
// LoadEvents returns events in the order they were appended.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEvent(event Event) error
	LoadEvents() ([]Event, error)
}
