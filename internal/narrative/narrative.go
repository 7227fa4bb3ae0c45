// Package narrative post-processes model text before it reaches the transcript.
// It only filters and restructures what the model produced; it never adds
// clinical content of its own.
package narrative

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"phq-companion/internal/questionnaire"
)

// Part is one renderable unit of assistant output.
type Part struct {
	Text  string `json:"text"`
	Bold  bool   `json:"bold"`
	Block bool   `json:"block"`
}

// Artifact is a known model quirk removed by CleanArtifacts.
type Artifact struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
}

// DefaultArtifacts lists the known artifact patterns, applied in order.
var DefaultArtifacts = []Artifact{
	// a line holding nothing but "S."
	{Name: "orphan-s-line", Pattern: regexp.MustCompile(`(?m)^[ \t]*S\.[ \t]*$`)},
	// "S." standing alone at the start of a line or right after a sentence end,
	// which may carry closing quotes or brackets
	{Name: "orphan-s-token", Pattern: regexp.MustCompile(`(?m)(^|[.!?]["')\]”’]*[ \t]+)S\.(?:[ \t]+|$)`), Replace: "$1"},
}

// DefaultGenericQuestion replaces a question-turn reply that leaked forbidden content.
const DefaultGenericQuestion = "Over the last 2 weeks, how often has this been bothering you?"

// Config is the data a Sanitizer runs on.
type Config struct {
	CrisisMarker    *regexp.Regexp
	OptionLabels    []string
	GenericQuestion string
	MaxQuestionLen  int
	Artifacts       []Artifact
}

// DefaultConfig returns the built-in sanitizer configuration.
func DefaultConfig() Config {
	return Config{
		CrisisMarker:    regexp.MustCompile(`(?i)\b(?:988|911)\b|immediate danger`),
		OptionLabels:    questionnaire.OptionLabels(),
		GenericQuestion: DefaultGenericQuestion,
		MaxQuestionLen:  220,
		Artifacts:       DefaultArtifacts,
	}
}

// Sanitizer applies a Config. It holds no mutable state and is safe for concurrent use.
type Sanitizer struct {
	cfg          Config
	optionLabels []string
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	lineSpaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	paragraphRe = regexp.MustCompile(`\n[ \t]*\n`)
	listRe      = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	slashRe     = regexp.MustCompile(`\w\s*/\s*\w`)
)

// NewSanitizer builds a Sanitizer; zero fields fall back to DefaultConfig values.
func NewSanitizer(cfg Config) *Sanitizer {
	def := DefaultConfig()
	if cfg.CrisisMarker == nil {
		cfg.CrisisMarker = def.CrisisMarker
	}
	if cfg.OptionLabels == nil {
		cfg.OptionLabels = def.OptionLabels
	}
	if cfg.GenericQuestion == "" {
		cfg.GenericQuestion = def.GenericQuestion
	}
	if cfg.MaxQuestionLen <= 0 {
		cfg.MaxQuestionLen = def.MaxQuestionLen
	}
	if cfg.Artifacts == nil {
		cfg.Artifacts = def.Artifacts
	}
	labels := make([]string, 0, len(cfg.OptionLabels))
	for _, l := range cfg.OptionLabels {
		labels = append(labels, strings.ToLower(l))
	}
	return &Sanitizer{cfg: cfg, optionLabels: labels}
}

// DefaultSanitizer returns a Sanitizer over DefaultConfig.
func DefaultSanitizer() *Sanitizer { return NewSanitizer(DefaultConfig()) }

// GenericQuestion is the canned replacement question.
func (s *Sanitizer) GenericQuestion() string { return s.cfg.GenericQuestion }

// HasCrisisMarker reports whether text mentions crisis resources.
func (s *Sanitizer) HasCrisisMarker(text string) bool {
	return s.cfg.CrisisMarker.MatchString(text)
}

// SanitizeQuestionText vets a single interview question produced by the model.
// A reply that still ends in "?" but leaks answer options, list markers, a
// slash enumeration, extra sentences or too much length becomes the generic
// question. Anything else comes back whitespace-normalized.
func (s *Sanitizer) SanitizeQuestionText(text string) string {
	raw := strings.TrimSpace(text)
	norm := spaceRe.ReplaceAllString(raw, " ")
	if !strings.HasSuffix(norm, "?") {
		return norm
	}
	if s.leaksQuestion(raw, norm) {
		return s.cfg.GenericQuestion
	}
	return norm
}

func (s *Sanitizer) leaksQuestion(raw, norm string) bool {
	lower := strings.ToLower(norm)
	for _, l := range s.optionLabels {
		if strings.Contains(lower, l) {
			return true
		}
	}
	switch {
	case listRe.MatchString(raw):
		return true
	case slashRe.MatchString(norm):
		return true
	case utf8.RuneCountInString(norm) > s.cfg.MaxQuestionLen:
		return true
	}
	return len(splitSentences(norm)) > 1
}

// CleanArtifacts removes the configured artifacts, collapses runs of
// horizontal whitespace, drops extra blank lines and trims. Applying it twice
// gives the same result as applying it once.
func (s *Sanitizer) CleanArtifacts(text string) string {
	out := normalizeLines(text)
	for {
		next := out
		for _, a := range s.cfg.Artifacts {
			next = a.Pattern.ReplaceAllString(next, a.Replace)
		}
		next = normalizeLines(next)
		if next == out {
			return out
		}
		out = next
	}
}

func normalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(lineSpaceRe.ReplaceAllString(l, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// GuidanceOptions controls GuidanceParts.
type GuidanceOptions struct {
	// OmitCrisis drops sentences with crisis markers. Set it when a caution box
	// carries crisis resources separately.
	OmitCrisis bool
}

// GuidanceParts splits generated guidance into sentence parts. The first
// emitted sentence and any crisis-marker sentence are bold; sentences are
// inline and paragraphs are separated by an empty block part. Single line
// breaks inside a paragraph are soft wraps, so sentences may span them.
func (s *Sanitizer) GuidanceParts(text string, opts GuidanceOptions) []Part {
	clean := s.CleanArtifacts(text)
	if clean == "" {
		return nil
	}
	var out []Part
	first := true
	for _, para := range paragraphRe.Split(clean, -1) {
		var kept []Part
		for _, sentence := range splitSentences(strings.ReplaceAll(para, "\n", " ")) {
			crisis := s.HasCrisisMarker(sentence)
			if crisis && opts.OmitCrisis {
				continue
			}
			kept = append(kept, Part{Text: sentence, Bold: first || crisis})
			first = false
		}
		if len(kept) == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, Part{Block: true})
		}
		out = append(out, kept...)
	}
	return out
}

// RecapParts renders deterministic recap lines, one block part per line.
func RecapParts(lines []string) []Part {
	out := make([]Part, 0, len(lines))
	for _, l := range lines {
		out = append(out, Part{Text: l, Block: true})
	}
	return out
}

// JoinParts flattens parts back into text: inline parts joined by a space,
// block parts on their own line.
func JoinParts(parts []Part) string {
	var b strings.Builder
	inline := false
	for _, p := range parts {
		if !p.Block {
			if inline {
				b.WriteByte(' ')
			}
			b.WriteString(p.Text)
			inline = true
			continue
		}
		if inline {
			b.WriteByte('\n')
		}
		if p.Text != "" {
			b.WriteString(p.Text)
		}
		b.WriteByte('\n')
		inline = false
	}
	return strings.TrimSpace(b.String())
}

// splitSentences cuts text after ., ! or ? (plus closing quotes or brackets)
// when followed by whitespace or the end of input.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			out = append(out, sentence)
		}
		start = end
		i = end - 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}
