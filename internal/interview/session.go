// Package interview drives a PHQ-9 self-check one question at a time and
// assembles the transcript a front-end renders.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phq-companion/internal/narrative"
	"phq-companion/internal/questionnaire"
	"phq-companion/internal/relay"
)

type State string

const (
	StateAwaitingConsent   State = "awaiting_consent"
	StateAskingQuestion    State = "asking_question"
	StateGeneratingSummary State = "generating_summary"
	StateFinished          State = "finished"
)

var (
	ErrFinished    = errors.New("interview already finished")
	ErrBusy        = errors.New("interview is waiting for a reply")
	ErrWrongState  = errors.New("action not allowed in current state")
	errNoGenerator = errors.New("no generator configured")
)

const (
	// ConsentPrompt opens every session.
	ConsentPrompt = "Hi! This is a short, private self-check based on the PHQ-9 questionnaire. " +
		"It is not a diagnosis. There are 10 questions and each one has four answer buttons. Ready to begin?"
	// ConsentReply is the user turn recorded when consent is given.
	ConsentReply = "Yes, let's begin."
	// SummaryFallback replaces the narrative when the relay could not produce one.
	SummaryFallback = "I couldn't generate a personalised reflection right now, but the recap above is complete. " +
		"Consider sharing it with a doctor or someone you trust."
)

// CautionParts is the fixed crisis-resource content of the caution box.
var CautionParts = []narrative.Part{
	{Text: "If you are having thoughts of death or of hurting yourself, please reach out now.", Bold: true, Block: true},
	{Text: "Call or text 988 (Suicide & Crisis Lifeline, US) to talk with someone any time.", Block: true},
	{Text: "If you are in immediate danger, call 911 or go to the nearest emergency department.", Block: true},
}

// Generator produces model text for a phase. *relay.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, req relay.Request) (relay.Result, error)
}

// Options configures new sessions.
type Options struct {
	Generator Generator
	Sanitizer *narrative.Sanitizer
	// Rephrase asks the generator to reword each question. Canned text is
	// used whenever that fails.
	Rephrase bool
	Logger   *zap.Logger
}

// Session is one user's interview. It is safe for concurrent use; at most one
// generator call is in flight at a time.
type Session struct {
	mu         sync.Mutex
	id         string
	state      State
	index      int
	answers    questionnaire.AnswerRecord
	transcript []Message
	pending    bool
	result     *questionnaire.ScoreResult

	gen       Generator
	sanitizer *narrative.Sanitizer
	rephrase  bool
	logger    *zap.Logger
}

// NewSession starts a session in StateAwaitingConsent with the consent prompt
// already in the transcript.
func NewSession(opts Options) *Session {
	s := &Session{
		id:        uuid.NewString(),
		state:     StateAwaitingConsent,
		answers:   questionnaire.AnswerRecord{},
		gen:       opts.Generator,
		sanitizer: opts.Sanitizer,
		rephrase:  opts.Rephrase,
		logger:    opts.Logger,
	}
	if s.sanitizer == nil {
		s.sanitizer = narrative.DefaultSanitizer()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	s.transcript = append(s.transcript, assistantText(ConsentPrompt))
	return s
}

func (s *Session) ID() string { return s.id }

// Consent moves the session to the first question.
func (s *Session) Consent(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateFinished:
		s.mu.Unlock()
		return ErrFinished
	case s.pending:
		s.mu.Unlock()
		return ErrBusy
	case s.state != StateAwaitingConsent:
		s.mu.Unlock()
		return fmt.Errorf("%w: consent already given", ErrWrongState)
	}
	s.transcript = append(s.transcript, userText(ConsentReply), assistantText(questionnaire.Intro))
	s.state = StateAskingQuestion
	s.index = 0
	s.pending = true
	s.mu.Unlock()

	s.askQuestion(ctx, 0)
	return nil
}

// Answer records the option with key for the current question and advances.
// After the last question it runs the summary before returning.
func (s *Session) Answer(ctx context.Context, key string) error {
	opt, err := questionnaire.OptionByKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case s.state == StateFinished:
		s.mu.Unlock()
		return ErrFinished
	case s.pending:
		s.mu.Unlock()
		return ErrBusy
	case s.state != StateAskingQuestion:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWrongState, state)
	}

	q, _ := questionnaire.QuestionAt(s.index)
	if _, done := s.answers[q.ID]; done {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already answered", ErrWrongState, q.ID)
	}
	s.answers[q.ID] = questionnaire.Answer{Label: opt.Label, Score: opt.Score}
	s.transcript = append(s.transcript, userText(opt.Label))
	s.pending = true

	next := s.index + 1
	if next < questionnaire.Count() {
		s.index = next
		s.mu.Unlock()
		s.askQuestion(ctx, next)
		return nil
	}

	s.state = StateGeneratingSummary
	answers := make(questionnaire.AnswerRecord, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.mu.Unlock()

	s.summarize(ctx, answers)
	return nil
}

func (s *Session) askQuestion(ctx context.Context, i int) {
	q, _ := questionnaire.QuestionAt(i)
	text := q.Text
	if s.rephrase {
		if reworded, ok := s.rephraseQuestion(ctx, q); ok {
			text = reworded
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, assistantText(text))
	s.pending = false
}

func (s *Session) rephraseQuestion(ctx context.Context, q questionnaire.Question) (string, bool) {
	prompt := fmt.Sprintf("Item %q: %s", q.Label, q.Text)
	res, err := s.generate(ctx, relay.Request{
		Phase:          relay.PhaseQuestion,
		Messages:       []relay.InboundMessage{{Role: "user", Content: prompt}},
		SkipRiskScreen: true,
	})
	if err != nil || res.Guarded || res.Fallback {
		s.logger.Debug("using canned question text", zap.String("question_id", q.ID), zap.Error(err))
		return "", false
	}
	text := s.sanitizer.SanitizeQuestionText(res.Reply)
	if !strings.HasSuffix(text, "?") {
		return "", false
	}
	return text, true
}

func (s *Session) summarize(ctx context.Context, answers questionnaire.AnswerRecord) {
	res := questionnaire.Score(answers)
	recap := narrative.RecapParts(questionnaire.Recap(answers, res, questionnaire.RecapOptions{}))

	s.mu.Lock()
	s.result = &res
	s.transcript = append(s.transcript, assistantParts(recap))
	s.mu.Unlock()

	var guidance []narrative.Part
	reply, err := s.generate(ctx, relay.Request{
		Phase:    relay.PhaseSummary,
		Messages: []relay.InboundMessage{{Role: "user", Content: questionnaire.ModelPayload(answers, res)}},
	})
	if err == nil {
		guidance = s.sanitizer.GuidanceParts(reply.Reply, narrative.GuidanceOptions{OmitCrisis: res.Safety > 0})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(guidance) > 0 {
		s.transcript = append(s.transcript, assistantParts(guidance))
	} else {
		s.logger.Warn("summary narrative unavailable, using fallback", zap.Error(err))
		s.transcript = append(s.transcript, assistantText(SummaryFallback))
	}
	if res.Safety > 0 {
		s.transcript = append(s.transcript, cautionBox())
	}
	s.state = StateFinished
	s.pending = false
	s.logger.Info("interview finished",
		zap.String("band", res.Band.String()),
		zap.Bool("caution", res.Safety > 0),
		zap.Bool("narrative", len(guidance) > 0),
	)
}

// generate calls the generator and turns a panic into an error.
func (s *Session) generate(ctx context.Context, req relay.Request) (res relay.Result, err error) {
	if s.gen == nil {
		return relay.Result{}, errNoGenerator
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return s.gen.Generate(ctx, req)
}

// View is a point-in-time copy of a session.
type View struct {
	ID         string                     `json:"id"`
	State      State                      `json:"state"`
	Index      int                        `json:"index"`
	Total      int                        `json:"total"`
	Question   *questionnaire.Question    `json:"question,omitempty"`
	Pending    bool                       `json:"pending"`
	Transcript []Message                  `json:"transcript"`
	Result     *questionnaire.ScoreResult `json:"result,omitempty"`
}

// Snapshot returns a copy of the session safe to hand to other goroutines.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:         s.id,
		State:      s.state,
		Index:      s.index,
		Total:      questionnaire.Count(),
		Pending:    s.pending,
		Transcript: make([]Message, len(s.transcript)),
	}
	copy(v.Transcript, s.transcript)
	if s.state == StateAskingQuestion {
		if q, ok := questionnaire.QuestionAt(s.index); ok {
			v.Question = &q
		}
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}

// Transcript returns a copy of the messages appended so far.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
