package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phq-companion/internal/llm"
	"phq-companion/internal/questionnaire"
	"phq-companion/internal/relay"
)

type cannedLLM struct {
	reply string
	err   error
}

func (c cannedLLM) Generate(context.Context, []llm.Message, llm.Options) (llm.Response, error) {
	return llm.Response{Content: c.reply}, c.err
}

func withTemperatures(t *testing.T, values ...float32) {
	t.Helper()
	prev := temperatureValues
	temperatureValues = values
	t.Cleanup(func() { temperatureValues = prev })
}

func TestScenariosAreComplete(t *testing.T) {
	for _, sc := range scenarios {
		answers, err := sc.answers()
		require.NoError(t, err, sc.name)
		assert.True(t, answers.Complete(), sc.name)
	}
	severe, _ := scenarios[2].answers()
	res := questionnaire.Score(severe)
	assert.Equal(t, 26, res.Total)
	assert.Equal(t, 2, res.Safety)
}

func TestRunBenchmarkFlagsCrisisLeak(t *testing.T) {
	withTemperatures(t, 0.35)
	reply := "You have been carrying a lot. Sleep has been rough. Try a short walk each day. Keep meals regular. If you are in immediate danger, call 911."

	results, errs := runBenchmark(context.Background(), func(temp float32) *relay.Service {
		return relay.New(relay.Options{Client: cannedLLM{reply: reply}, Model: "m", Temperature: temp})
	}, 1)
	require.Empty(t, errs)
	require.Len(t, results, len(scenarios))

	byName := map[string]BenchmarkResult{}
	for _, r := range results {
		byName[r.Scenario] = r
	}
	assert.True(t, byName["minimal"].CrisisLeak)
	assert.False(t, byName["severe-safety"].CrisisLeak)
	assert.Equal(t, 5, byName["minimal"].Sentences)
	assert.True(t, byName["minimal"].SentencesInRange)
	assert.False(t, byName["minimal"].Fallback)
}

func TestRunBenchmarkCountsFallbacks(t *testing.T) {
	withTemperatures(t, 0.2)
	results, errs := runBenchmark(context.Background(), func(float32) *relay.Service {
		return relay.New(relay.Options{Client: cannedLLM{err: errors.New("503")}, Model: "m"})
	}, 1)
	require.Empty(t, errs)

	s := summarize(results)
	assert.Equal(t, len(scenarios), s.runs)
	assert.Equal(t, len(scenarios), s.fallbacks)
	assert.Zero(t, s.inRange)
}

func TestRunBenchmarkReportsMissingClient(t *testing.T) {
	withTemperatures(t, 0.2)
	results, errs := runBenchmark(context.Background(), func(float32) *relay.Service {
		return relay.New(relay.Options{Model: "m"})
	}, 1)
	assert.Empty(t, results)
	require.Len(t, errs, len(scenarios))
	assert.ErrorIs(t, errs[0], relay.ErrMissingCredential)
}

func TestSummarizeRanges(t *testing.T) {
	s := summarize([]BenchmarkResult{
		{Duration: 2 * time.Second, ReplyLength: 100, SentencesInRange: true},
		{Duration: 4 * time.Second, ReplyLength: 300, Fallback: true, CrisisLeak: true},
	})
	assert.Equal(t, 3*time.Second, s.avgDuration)
	assert.Equal(t, 2*time.Second, s.minDuration)
	assert.Equal(t, 4*time.Second, s.maxDuration)
	assert.Equal(t, 200, s.avgLength)
	assert.Equal(t, 1, s.fallbacks)
	assert.Equal(t, 1, s.inRange)
	assert.Equal(t, 1, s.leaks)
}

func TestParseTemperatures(t *testing.T) {
	got, err := parseTemperatures("0.1, 0.5,1.2")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.5, 1.2}, got)

	_, err = parseTemperatures("0")
	assert.Error(t, err)

	_, err = parseTemperatures("3")
	assert.Error(t, err)
	_, err = parseTemperatures(" , ")
	assert.Error(t, err)
	_, err = parseTemperatures("warm")
	assert.Error(t, err)
}
