package interview

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phq-companion/internal/config"
	"phq-companion/internal/llm"
	"phq-companion/internal/questionnaire"
	"phq-companion/internal/relay"
	"phq-companion/internal/storage"
)

type fakeGenerator struct {
	mu       sync.Mutex
	question relay.Result
	qErr     error
	summary  relay.Result
	sErr     error
	panicMsg string
	requests []relay.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req relay.Request) (relay.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if req.Phase == relay.PhaseSummary {
		return f.summary, f.sErr
	}
	return f.question, f.qErr
}

func (f *fakeGenerator) summaryRequests() []relay.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []relay.Request
	for _, r := range f.requests {
		if r.Phase == relay.PhaseSummary {
			out = append(out, r)
		}
	}
	return out
}

var crisisRe = regexp.MustCompile(`(?i)\b(?:988|911)\b|immediate danger`)

func runInterview(t *testing.T, s *Session, keys ...string) {
	t.Helper()
	require.NoError(t, s.Consent(context.Background()))
	for _, k := range keys {
		require.NoError(t, s.Answer(context.Background(), k))
	}
}

func keys(standard, dead, harm string) []string {
	out := make([]string, 0, 10)
	for i := 0; i < 8; i++ {
		out = append(out, standard)
	}
	return append(out, dead, harm)
}

func lastKinds(msgs []Message, n int) []Kind {
	var out []Kind
	for _, m := range msgs[len(msgs)-n:] {
		out = append(out, m.Kind)
	}
	return out
}

func TestNewSessionAwaitsConsent(t *testing.T) {
	s := NewSession(Options{})
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateAwaitingConsent, s.State())

	tr := s.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, ConsentPrompt, tr[0].Content)

	err := s.Answer(context.Background(), "0")
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestConsentAsksFirstQuestion(t *testing.T) {
	s := NewSession(Options{})
	require.NoError(t, s.Consent(context.Background()))

	v := s.Snapshot()
	assert.Equal(t, StateAskingQuestion, v.State)
	assert.Equal(t, 0, v.Index)
	require.NotNil(t, v.Question)
	assert.Equal(t, "interest", v.Question.ID)

	tr := v.Transcript
	require.Len(t, tr, 4)
	assert.Equal(t, userText(ConsentReply), tr[1])
	assert.Equal(t, questionnaire.Intro, tr[2].Content)
	assert.Equal(t, questionnaire.Questions()[0].Text, tr[3].Content)

	assert.ErrorIs(t, s.Consent(context.Background()), ErrWrongState)
}

func TestAnswerRejectsUnknownKey(t *testing.T) {
	s := NewSession(Options{})
	require.NoError(t, s.Consent(context.Background()))

	err := s.Answer(context.Background(), "4")
	assert.ErrorIs(t, err, questionnaire.ErrUnknownOption)
	assert.Equal(t, 0, s.Snapshot().Index)
}

func TestAnswerAdvancesOneQuestionAtATime(t *testing.T) {
	s := NewSession(Options{})
	require.NoError(t, s.Consent(context.Background()))
	require.NoError(t, s.Answer(context.Background(), "2"))

	v := s.Snapshot()
	assert.Equal(t, 1, v.Index)
	assert.Equal(t, "mood", v.Question.ID)
	n := len(v.Transcript)
	assert.Equal(t, userText("More than half the days"), v.Transcript[n-2])
	assert.Equal(t, questionnaire.Questions()[1].Text, v.Transcript[n-1].Content)
}

func TestScenarioAllZeroNoCaution(t *testing.T) {
	gen := &fakeGenerator{summary: relay.Result{Reply: "You seem to be doing well overall. Keeping a steady routine can help."}}
	s := NewSession(Options{Generator: gen})
	runInterview(t, s, keys("0", "0", "0")...)

	v := s.Snapshot()
	assert.Equal(t, StateFinished, v.State)
	assert.False(t, v.Pending)
	require.NotNil(t, v.Result)
	assert.Equal(t, 0, v.Result.Total)
	assert.Equal(t, questionnaire.BandMinimal, v.Result.Band)
	assert.Equal(t, 0, v.Result.Safety)

	assert.Equal(t, []Kind{KindParts, KindParts}, lastKinds(v.Transcript, 2))
	for _, m := range v.Transcript {
		assert.NotEqual(t, KindCaution, m.Kind)
	}

	recap := v.Transcript[len(v.Transcript)-2].Text()
	assert.Contains(t, recap, "Total score: 0 / 27")
	assert.Contains(t, recap, "Safety items: si_dead=0, si_harm=0")

	guidance := v.Transcript[len(v.Transcript)-1]
	require.NotEmpty(t, guidance.Parts)
	assert.True(t, guidance.Parts[0].Bold)

	reqs := gen.summaryRequests()
	require.Len(t, reqs, 1)
	payload := reqs[0].Messages[0].Content.(string)
	assert.NotContains(t, payload, "Safety items")
	assert.Contains(t, payload, "Elevated domains (score 2 or more): none")

	assert.ErrorIs(t, s.Answer(context.Background(), "0"), ErrFinished)
}

func TestScenarioSevereRelayFailureStillShowsCaution(t *testing.T) {
	gen := &fakeGenerator{
		summary: relay.Result{Reply: relay.FallbackReply, Fallback: true},
		sErr:    relay.ErrRelayFailure,
	}
	s := NewSession(Options{Generator: gen})
	runInterview(t, s, keys("3", "0", "2")...)

	v := s.Snapshot()
	assert.Equal(t, StateFinished, v.State)
	assert.Equal(t, 26, v.Result.Total)
	assert.Equal(t, 2, v.Result.Safety)
	assert.Equal(t, questionnaire.BandSevere, v.Result.Band)

	tail := v.Transcript[len(v.Transcript)-3:]
	assert.Equal(t, KindParts, tail[0].Kind)
	assert.Equal(t, assistantText(SummaryFallback), tail[1])
	assert.Equal(t, KindCaution, tail[2].Kind)
	assert.Equal(t, CautionParts, tail[2].Parts)
}

func TestSevereNarrativeOmitsCrisisSentences(t *testing.T) {
	gen := &fakeGenerator{summary: relay.Result{Reply: "Things have been very hard lately. " +
		"Please call or text 988 right away. Small steps like short walks may help.\n\n" +
		"If you are in immediate danger, call 911. Talking to a doctor soon is a good idea."}}
	s := NewSession(Options{Generator: gen})
	runInterview(t, s, keys("2", "1", "0")...)

	tr := s.Transcript()
	guidance := tr[len(tr)-2]
	require.Equal(t, KindParts, guidance.Kind)
	for _, p := range guidance.Parts {
		assert.False(t, crisisRe.MatchString(p.Text), "crisis sentence leaked: %q", p.Text)
	}
	assert.Contains(t, guidance.Text(), "Talking to a doctor soon is a good idea.")
	assert.Equal(t, KindCaution, tr[len(tr)-1].Kind)
}

func TestNoSafetyKeepsCrisisSentences(t *testing.T) {
	gen := &fakeGenerator{summary: relay.Result{Reply: "Sleep has been rough. If things get worse, call 988."}}
	s := NewSession(Options{Generator: gen})
	runInterview(t, s, keys("1", "0", "0")...)

	tr := s.Transcript()
	last := tr[len(tr)-1]
	require.Equal(t, KindParts, last.Kind)
	assert.Contains(t, last.Text(), "call 988")
	assert.True(t, last.Parts[len(last.Parts)-1].Bold)
}

func TestScenarioGeneratorTimeoutAndPanic(t *testing.T) {
	cases := map[string]*fakeGenerator{
		"timeout": {sErr: context.DeadlineExceeded},
		"panic":   {panicMsg: "boom"},
		"empty":   {summary: relay.Result{Reply: "   "}},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewSession(Options{Generator: gen})
			runInterview(t, s, keys("1", "1", "1")...)

			tr := s.Transcript()
			assert.Equal(t, assistantText(SummaryFallback), tr[len(tr)-2])
			assert.Equal(t, KindCaution, tr[len(tr)-1].Kind)
			assert.Equal(t, StateFinished, s.State())
		})
	}
}

func TestNilGeneratorFallsBack(t *testing.T) {
	s := NewSession(Options{})
	runInterview(t, s, keys("0", "0", "1")...)

	tr := s.Transcript()
	assert.Equal(t, assistantText(SummaryFallback), tr[len(tr)-2])
	assert.Equal(t, KindCaution, tr[len(tr)-1].Kind)
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingGenerator) Generate(ctx context.Context, req relay.Request) (relay.Result, error) {
	close(b.started)
	<-b.release
	return relay.Result{Reply: "Thanks for checking in."}, nil
}

func TestSummaryRunsOnceAndRejectsConcurrentAnswers(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	s := NewSession(Options{Generator: gen})
	all := keys("0", "0", "0")
	runInterview(t, s, all[:9]...)

	done := make(chan error, 1)
	go func() { done <- s.Answer(context.Background(), "0") }()

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("summary was not requested")
	}
	assert.True(t, s.Pending())
	assert.Equal(t, StateGeneratingSummary, s.State())
	assert.ErrorIs(t, s.Answer(context.Background(), "1"), ErrBusy)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateFinished, s.State())
	assert.False(t, s.Pending())
}

func TestRephraseUsesSanitizedModelQuestion(t *testing.T) {
	gen := &fakeGenerator{question: relay.Result{Reply: "  How have things felt for you lately,\n fun-wise?  "}}
	s := NewSession(Options{Generator: gen, Rephrase: true})
	require.NoError(t, s.Consent(context.Background()))

	tr := s.Transcript()
	assert.Equal(t, "How have things felt for you lately, fun-wise?", tr[len(tr)-1].Content)
	require.Len(t, gen.requests, 1)
	assert.Equal(t, relay.PhaseQuestion, gen.requests[0].Phase)
	assert.True(t, strings.Contains(gen.requests[0].Messages[0].Content.(string), "Interest or pleasure"))
}

func TestRephraseFallsBackToCannedText(t *testing.T) {
	cases := map[string]*fakeGenerator{
		"error":            {qErr: errors.New("down")},
		"guarded":          {question: relay.Result{Reply: relay.SafetyMessage, Guarded: true}},
		"fallback":         {question: relay.Result{Reply: relay.FallbackReply, Fallback: true}},
		"no question mark": {question: relay.Result{Reply: "Tell me about your interest in things."}},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewSession(Options{Generator: gen, Rephrase: true})
			require.NoError(t, s.Consent(context.Background()))
			tr := s.Transcript()
			assert.Equal(t, questionnaire.Questions()[0].Text, tr[len(tr)-1].Content)
		})
	}
}

func TestRephraseLeakBecomesGenericQuestion(t *testing.T) {
	gen := &fakeGenerator{question: relay.Result{Reply: "Not at all, several days, or nearly every day?"}}
	s := NewSession(Options{Generator: gen, Rephrase: true})
	require.NoError(t, s.Consent(context.Background()))

	tr := s.Transcript()
	assert.Equal(t, "Over the last 2 weeks, how often has this been bothering you?", tr[len(tr)-1].Content)
}

type countingLLM struct {
	mu    sync.Mutex
	calls int
}

func (c *countingLLM) Generate(context.Context, []llm.Message, llm.Options) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return llm.Response{Content: "How often has this come up for you lately?"}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []storage.Event
}

func (e *eventLog) AppendEvent(ev storage.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *eventLog) LoadEvents() ([]storage.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]storage.Event{}, e.events...), nil
}

func TestRephrasedInterviewIsNeverGuarded(t *testing.T) {
	client := &countingLLM{}
	audit := &eventLog{}
	svc := relay.New(relay.Options{Client: client, Model: "m", Guard: config.RiskGuardBlock, Recorder: audit})
	s := NewSession(Options{Generator: svc, Rephrase: true})

	runInterview(t, s, keys("0", "0", "0")...)
	assert.Equal(t, StateFinished, s.State())

	// ten rephrased items plus the summary
	assert.Equal(t, questionnaire.Count()+1, client.calls)
	events, _ := audit.LoadEvents()
	require.Len(t, events, questionnaire.Count()+1)
	for _, ev := range events {
		assert.NotEqual(t, storage.OutcomeGuarded, ev.Outcome, ev.Phase)
	}
	for _, m := range s.Transcript() {
		assert.NotEqual(t, questionnaire.Questions()[8].Text, m.Content)
	}
}
