// Package relay forwards a caller-supplied conversation to the external
// generation API and always hands back something the user can read.
//
// The relay is stateless: every request carries the whole conversation it
// needs. Missing credentials are reported as ErrMissingCredential; every
// other upstream problem degrades to FallbackReply alongside an error
// wrapping ErrRelayFailure. Calls are never retried.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"phq-companion/internal/config"
	"phq-companion/internal/llm"
	"phq-companion/internal/narrative"
	"phq-companion/internal/risk"
	"phq-companion/internal/storage"
)

// Phase tells the relay which system prompt to use.
type Phase string

const (
	PhaseQuestion Phase = "question"
	PhaseSummary  Phase = "summary"
)

const (
	DefaultTimeout     = 25 * time.Second
	DefaultTemperature = 0.35
	DefaultMaxTokens   = 600
)

var (
	ErrInvalidRequest    = errors.New("invalid relay request")
	ErrMissingCredential = llm.ErrMissingCredential
	ErrRelayFailure      = errors.New("relay failure")
)

// InboundMessage is one turn as received from a caller. Content may be any
// JSON value; it is coerced to a string before forwarding.
type InboundMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type Request struct {
	Messages []InboundMessage `json:"messages"`
	Phase    Phase            `json:"phase,omitempty"`

	// SkipRiskScreen is set for prompts written by the service itself, such as
	// item rephrasing. It is never read from the wire.
	SkipRiskScreen bool `json:"-"`
}

type Result struct {
	Reply    string
	Phase    Phase
	Model    string
	Guarded  bool
	Fallback bool
}

type Options struct {
	Client      llm.Client
	Provider    string
	Model       string
	Prompts     Prompts
	Screen      *risk.Screen
	Guard       config.RiskGuard
	Sanitizer   *narrative.Sanitizer
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32 // zero means DefaultTemperature
	Recorder    storage.Recorder
	Metrics     *Metrics
	Logger      *zap.Logger
}

type Service struct {
	client    llm.Client
	provider  string
	model     string
	prompts   Prompts
	screen    *risk.Screen
	guard     config.RiskGuard
	sanitizer *narrative.Sanitizer
	timeout   time.Duration
	genOpts   llm.Options
	recorder  storage.Recorder
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a Service. A nil Client is allowed: every call then fails with
// ErrMissingCredential.
func New(opts Options) *Service {
	s := &Service{
		client:    opts.Client,
		provider:  opts.Provider,
		model:     opts.Model,
		prompts:   opts.Prompts,
		screen:    opts.Screen,
		guard:     opts.Guard,
		sanitizer: opts.Sanitizer,
		timeout:   opts.Timeout,
		genOpts:   llm.Options{MaxTokens: opts.MaxTokens, Temperature: opts.Temperature},
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if s.prompts == (Prompts{}) {
		s.prompts = DefaultPrompts()
	}
	if s.screen == nil {
		s.screen = risk.DefaultScreen()
	}
	if s.guard == "" {
		s.guard = config.RiskGuardBlock
	}
	if s.sanitizer == nil {
		s.sanitizer = narrative.DefaultSanitizer()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.genOpts.MaxTokens <= 0 {
		s.genOpts.MaxTokens = DefaultMaxTokens
	}
	if s.genOpts.Temperature <= 0 {
		s.genOpts.Temperature = DefaultTemperature
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Model is the configured model identifier.
func (s *Service) Model() string { return s.model }

// Ready reports whether a client is configured.
func (s *Service) Ready() bool { return s.client != nil }

// Generate runs one relay call. On ErrRelayFailure the returned Result still
// holds FallbackReply.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	phase, err := normalizePhase(req.Phase)
	if err != nil {
		return Result{}, err
	}
	if len(req.Messages) == 0 {
		return Result{}, fmt.Errorf("%w: messages must be a non-empty array", ErrInvalidRequest)
	}
	if s.client == nil {
		s.record(phase, storage.OutcomeConfigError, 0, llm.Response{}, 0, false)
		return Result{}, ErrMissingCredential
	}

	msgs := s.buildMessages(phase, req.Messages)

	if phase == PhaseQuestion && !req.SkipRiskScreen && s.guard != config.RiskGuardOff {
		if hits := s.screen.Matches(lastUserContent(msgs)); len(hits) > 0 {
			s.logger.Warn("risk language in question turn",
				zap.Int("patterns_matched", len(hits)),
				zap.String("policy", string(s.guard)),
			)
			if s.guard == config.RiskGuardBlock {
				s.record(phase, storage.OutcomeGuarded, 0, llm.Response{}, 0, false)
				return Result{Reply: SafetyMessage, Phase: phase, Model: s.model, Guarded: true}, nil
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	resp, err := s.client.Generate(callCtx, msgs, s.genOpts)
	elapsed := s.now().Sub(start)
	if err != nil {
		if errors.Is(err, llm.ErrMissingCredential) {
			s.record(phase, storage.OutcomeConfigError, elapsed, llm.Response{}, 0, true)
			return Result{}, ErrMissingCredential
		}
		return s.fallback(phase, elapsed, err)
	}

	reply := s.clean(phase, resp.Content)
	if reply == "" {
		return s.fallback(phase, elapsed, llm.ErrNoText)
	}

	s.logger.Info("relay reply",
		zap.String("phase", string(phase)),
		zap.String("model", resp.Model),
		zap.Duration("duration", elapsed),
		zap.Int("total_tokens", resp.TotalTokens),
	)
	s.record(phase, storage.OutcomeOK, elapsed, resp, 0, true)

	model := resp.Model
	if model == "" {
		model = s.model
	}
	return Result{Reply: reply, Phase: phase, Model: model}, nil
}

func (s *Service) fallback(phase Phase, elapsed time.Duration, cause error) (Result, error) {
	status := 0
	var upErr *llm.UpstreamError
	if errors.As(cause, &upErr) {
		status = upErr.Status
	}
	s.logger.Warn("relay call failed, using fallback reply",
		zap.String("phase", string(phase)),
		zap.Duration("duration", elapsed),
		zap.Int("upstream_status", status),
		zap.Error(cause),
	)
	s.record(phase, storage.OutcomeFallback, elapsed, llm.Response{}, status, true)
	return Result{Reply: FallbackReply, Phase: phase, Model: s.model, Fallback: true},
		fmt.Errorf("%w: %w", ErrRelayFailure, cause)
}

func (s *Service) clean(phase Phase, text string) string {
	if phase == PhaseQuestion {
		return s.sanitizer.SanitizeQuestionText(text)
	}
	return s.sanitizer.CleanArtifacts(text)
}

func (s *Service) buildMessages(phase Phase, in []InboundMessage) []llm.Message {
	out := make([]llm.Message, 0, len(in)+1)
	out = append(out, llm.Message{Role: "system", Content: s.prompts.ForPhase(phase)})
	for _, m := range in {
		out = append(out, llm.Message{Role: normalizeRole(m.Role), Content: coerceContent(m.Content)})
	}
	return out
}

func (s *Service) record(phase Phase, outcome storage.Outcome, elapsed time.Duration, resp llm.Response, status int, called bool) {
	s.metrics.observe(phase, string(outcome), elapsed.Seconds(), called)
	if s.recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:        s.now().UTC(),
		Phase:            string(phase),
		Provider:         s.provider,
		Model:            s.model,
		Outcome:          outcome,
		UpstreamStatus:   status,
		DurationMS:       elapsed.Milliseconds(),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	if resp.Model != "" {
		ev.Model = resp.Model
	}
	if err := s.recorder.AppendEvent(ev); err != nil {
		s.logger.Warn("failed to record relay event", zap.Error(err))
	}
}

func normalizePhase(p Phase) (Phase, error) {
	switch p {
	case "", PhaseQuestion:
		return PhaseQuestion, nil
	case PhaseSummary:
		return PhaseSummary, nil
	default:
		return "", fmt.Errorf("%w: unknown phase %q", ErrInvalidRequest, p)
	}
}

func normalizeRole(role string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case "system", "user", "assistant":
		return r
	default:
		return "user"
	}
}

// coerceContent turns any JSON-decoded content into the string sent upstream.
func coerceContent(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case fmt.Stringer:
		return c.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func lastUserContent(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}
