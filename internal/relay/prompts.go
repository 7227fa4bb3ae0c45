package relay

// Prompts holds one system prompt per phase.
type Prompts struct {
	Question string
	Summary  string
}

// DefaultPrompts returns the built-in system prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		Question: "You are a warm, plain-spoken assistant helping someone complete the PHQ-9 self-check one item at a time. " +
			"Rephrase the symptom item you are given as exactly one short, friendly question about the last 2 weeks. " +
			"Use one sentence that ends with a question mark. " +
			"Never list or number answer options, never use slashes, never add advice, reassurance or a diagnosis.",
		Summary: "You are a supportive assistant writing a plain-language reflection on a completed PHQ-9 self-check. " +
			"This is not a diagnosis and must not read like one. " +
			"Write 4 to 7 sentences of flowing prose with no lists and no headings. " +
			"Cover the most salient symptoms, how they may affect day-to-day life, " +
			"3 to 5 practical self-care suggestions tailored to the elevated domains (items scored 2 or more), " +
			"and when to reach out to a doctor or mental health professional. " +
			"Only if an item about thoughts of death or self-harm is above zero, include exactly one sentence with crisis resources: " +
			"call or text 988 in the US, or call 911 if in immediate danger. Otherwise do not mention crisis lines.",
	}
}

// ForPhase returns the system prompt for phase.
func (p Prompts) ForPhase(phase Phase) string {
	if phase == PhaseSummary {
		return p.Summary
	}
	return p.Question
}

const (
	// SafetyMessage replaces a question-phase reply when the text guard fires.
	SafetyMessage = "It sounds like you may be going through something really painful. " +
		"If you are thinking about harming yourself, please call or text 988 (Suicide & Crisis Lifeline, US), " +
		"or call 911 if you are in immediate danger. We can keep going with the questions whenever you are ready."

	// FallbackReply is returned whenever the model could not produce a usable reply.
	FallbackReply = "Thanks for sharing that. I couldn't put together a personalised note right now, " +
		"but your answers above are still worth talking through with someone you trust or a health professional."
)
