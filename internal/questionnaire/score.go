package questionnaire

import (
	"fmt"
	"strings"
)

// Answer is the recorded response to one question.
type Answer struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

// AnswerRecord maps Question.ID to the recorded answer.
type AnswerRecord map[string]Answer

// Complete reports whether every question has an answer.
func (r AnswerRecord) Complete() bool {
	for _, q := range questions {
		if _, ok := r[q.ID]; !ok {
			return false
		}
	}
	return true
}

// Band is a severity bucket keyed by total score.
type Band int

const (
	BandMinimal Band = iota
	BandMild
	BandModerate
	BandModeratelySevere
	BandSevere
)

var bandNames = [...]string{"Minimal", "Mild", "Moderate", "Moderately severe", "Severe"}

func (b Band) String() string {
	if b < BandMinimal || b > BandSevere {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandNames[b]
}

func (b Band) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// BandFor maps a total score to its severity band. Boundaries are inclusive.
func BandFor(total int) Band {
	switch {
	case total <= 4:
		return BandMinimal
	case total <= 9:
		return BandMild
	case total <= 14:
		return BandModerate
	case total <= 19:
		return BandModeratelySevere
	default:
		return BandSevere
	}
}

// ScoreResult is derived from an AnswerRecord and never stored.
type ScoreResult struct {
	Total  int  `json:"total"`
	Safety int  `json:"safety"`
	Band   Band `json:"band"`
}

// Score sums the eight standard domains and adds the larger of the two
// safety scores, so the ninth PHQ-9 domain is counted once. Missing answers
// count as 0.
func Score(answers AnswerRecord) ScoreResult {
	total := 0
	for _, q := range questions {
		if q.Safety() {
			continue
		}
		total += answers[q.ID].Score
	}
	safety := max(answers[IDSafetyDead].Score, answers[IDSafetyHarm].Score)
	total += safety
	return ScoreResult{Total: total, Safety: safety, Band: BandFor(total)}
}

// ElevatedDomains returns the answered questions scored 2 or more, in interview order.
func ElevatedDomains(answers AnswerRecord) []Question {
	var out []Question
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && a.Score >= 2 {
			out = append(out, q)
		}
	}
	return out
}

// RecapOptions controls Recap output.
type RecapOptions struct {
	// OmitSafetyLine drops the raw safety sub-score line. Set it for text sent to an external model.
	OmitSafetyLine bool
}

// Recap renders the deterministic itemized summary of a finished interview.
func Recap(answers AnswerRecord, res ScoreResult, opts RecapOptions) []string {
	lines := make([]string, 0, len(questions)+3)
	for _, q := range questions {
		a, ok := answers[q.ID]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%d)", q.Label, a.Label, a.Score))
	}
	lines = append(lines,
		fmt.Sprintf("Total score: %d / 27", res.Total),
		fmt.Sprintf("Severity: %s", res.Band),
	)
	if !opts.OmitSafetyLine {
		lines = append(lines, fmt.Sprintf("Safety items: %s=%d, %s=%d",
			IDSafetyDead, answers[IDSafetyDead].Score, IDSafetyHarm, answers[IDSafetyHarm].Score))
	}
	return lines
}

// ModelPayload builds the recap text sent to the summary model: no safety
// telemetry, plus the names of the elevated domains.
func ModelPayload(answers AnswerRecord, res ScoreResult) string {
	var b strings.Builder
	b.WriteString("PHQ-9 answers (last 2 weeks):\n")
	for _, l := range Recap(answers, res, RecapOptions{OmitSafetyLine: true}) {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	var names []string
	for _, q := range ElevatedDomains(answers) {
		if !q.Safety() {
			names = append(names, q.Label)
		}
	}
	if len(names) == 0 {
		b.WriteString("Elevated domains (score 2 or more): none\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Elevated domains (score 2 or more): %s\n", strings.Join(names, ", "))
	return b.String()
}
