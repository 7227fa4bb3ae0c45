package interview

import "phq-companion/internal/narrative"

// Kind tags a transcript message variant.
type Kind string

const (
	KindText    Kind = "text"
	KindParts   Kind = "parts"
	KindCaution Kind = "caution"
)

// Message is one transcript entry. Text messages use Content; parts and
// caution messages use Parts.
type Message struct {
	Kind    Kind             `json:"kind"`
	Role    string           `json:"role"`
	Content string           `json:"content,omitempty"`
	Parts   []narrative.Part `json:"parts,omitempty"`
}

// Text renders the message as plain text.
func (m Message) Text() string {
	if m.Kind == KindText {
		return m.Content
	}
	return narrative.JoinParts(m.Parts)
}

func userText(content string) Message {
	return Message{Kind: KindText, Role: "user", Content: content}
}

func assistantText(content string) Message {
	return Message{Kind: KindText, Role: "assistant", Content: content}
}

func assistantParts(parts []narrative.Part) Message {
	return Message{Kind: KindParts, Role: "assistant", Parts: parts}
}

func cautionBox() Message {
	parts := make([]narrative.Part, len(CautionParts))
	copy(parts, CautionParts)
	return Message{Kind: KindCaution, Role: "assistant", Parts: parts}
}
