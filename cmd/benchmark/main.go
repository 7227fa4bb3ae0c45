// Command benchmark runs fixed answer scenarios through the summary relay at
// several temperatures and reports latency, fallbacks and narrative quality.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"phq-companion/internal/config"
	"phq-companion/internal/llm"
	"phq-companion/internal/logging"
	"phq-companion/internal/narrative"
	"phq-companion/internal/questionnaire"
	"phq-companion/internal/relay"
)

// BenchmarkResult is one scenario run at one temperature.
type BenchmarkResult struct {
	Scenario         string        `json:"scenario"`
	Temperature      float32       `json:"temperature"`
	Duration         time.Duration `json:"duration"`
	Fallback         bool          `json:"fallback"`
	ReplyLength      int           `json:"reply_length"`
	Sentences        int           `json:"sentences"`
	CrisisLeak       bool          `json:"crisis_leak"`
	SentencesInRange bool          `json:"sentences_in_range"`
}

// ParallelTestResult carries a result or the error that prevented it.
type ParallelTestResult struct {
	Result BenchmarkResult
	Error  error
}

// Zero is not in the grid: the relay reads it as "use the default".
var temperatureValues = []float32{0.1, 0.35, 0.7, 1.0}

func main() {
	temps := flag.String("temperatures", "", "comma-separated temperatures in (0,2] (default 0.1,0.35,0.7,1)")
	repeat := flag.Int("repeat", 1, "runs per scenario and temperature")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New("warn", "console")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *temps != "" {
		values, err := parseTemperatures(*temps)
		if err != nil {
			log.Fatalf("bad -temperatures: %v", err)
		}
		temperatureValues = values
	}

	client, err := llm.NewFactory(cfg).CreateClient(cfg.LLMProvider, cfg.ModelName())
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	log.Printf("🚀 Benchmarking %s with %d scenarios x %d temperatures x %d runs",
		cfg.ModelName(), len(scenarios), len(temperatureValues), *repeat)

	results, errs := runBenchmark(context.Background(), func(temp float32) *relay.Service {
		return relay.New(relay.Options{
			Client:      client,
			Provider:    string(cfg.LLMProvider),
			Model:       cfg.ModelName(),
			Timeout:     cfg.RelayTimeout,
			MaxTokens:   cfg.MaxOutputTokens,
			Temperature: temp,
			Logger:      logger,
		})
	}, *repeat)

	for _, err := range errs {
		log.Printf("  ❌ %v", err)
	}

	byTemp := make(map[float32][]BenchmarkResult)
	for _, r := range results {
		byTemp[r.Temperature] = append(byTemp[r.Temperature], r)
	}
	keys := make([]float32, 0, len(byTemp))
	for k := range byTemp {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		printSummaryStats(fmt.Sprintf("temperature %.2f", k), byTemp[k])
	}
}

// runBenchmark starts every scenario/temperature/repeat combination in
// parallel against a relay built by newRelay.
func runBenchmark(ctx context.Context, newRelay func(float32) *relay.Service, repeat int) ([]BenchmarkResult, []error) {
	if repeat < 1 {
		repeat = 1
	}
	total := len(scenarios) * len(temperatureValues) * repeat
	resultsChan := make(chan ParallelTestResult, total)
	var wg sync.WaitGroup

	index := 0
	for _, temp := range temperatureValues {
		svc := newRelay(temp)
		for _, sc := range scenarios {
			for i := 0; i < repeat; i++ {
				wg.Add(1)
				go func(svc *relay.Service, sc scenario, temperature float32, index int) {
					defer wg.Done()
					// stagger starts to stay under provider rate limits
					time.Sleep(time.Duration(index) * 100 * time.Millisecond)
					result, err := runScenario(ctx, svc, sc, temperature)
					if err != nil {
						resultsChan <- ParallelTestResult{Error: fmt.Errorf("%s at %.2f: %w", sc.name, temperature, err)}
						return
					}
					log.Printf("    ✅ %s at %.2f: %v, %d sentences, fallback=%t",
						sc.name, temperature, result.Duration, result.Sentences, result.Fallback)
					resultsChan <- ParallelTestResult{Result: result}
				}(svc, sc, temp, index)
				index++
			}
		}
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var results []BenchmarkResult
	var errs []error
	for r := range resultsChan {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		results = append(results, r.Result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Temperature != results[j].Temperature {
			return results[i].Temperature < results[j].Temperature
		}
		return results[i].Scenario < results[j].Scenario
	})
	return results, errs
}

func runScenario(ctx context.Context, svc *relay.Service, sc scenario, temperature float32) (BenchmarkResult, error) {
	answers, err := sc.answers()
	if err != nil {
		return BenchmarkResult{}, err
	}
	res := questionnaire.Score(answers)

	start := time.Now()
	out, err := svc.Generate(ctx, relay.Request{
		Phase:    relay.PhaseSummary,
		Messages: []relay.InboundMessage{{Role: "user", Content: questionnaire.ModelPayload(answers, res)}},
	})
	duration := time.Since(start)
	if err != nil && !errors.Is(err, relay.ErrRelayFailure) {
		return BenchmarkResult{}, err
	}

	return analyzeReply(sc.name, temperature, duration, out, res.Safety > 0), nil
}

// analyzeReply scores one summary reply. Crisis wording in a reply for a
// scenario without safety answers counts as a leak.
func analyzeReply(name string, temperature float32, duration time.Duration, out relay.Result, safety bool) BenchmarkResult {
	san := narrative.DefaultSanitizer()
	parts := san.GuidanceParts(out.Reply, narrative.GuidanceOptions{})
	sentences := 0
	leak := false
	for _, p := range parts {
		if p.Block {
			continue
		}
		sentences++
		if !safety && san.HasCrisisMarker(p.Text) {
			leak = true
		}
	}
	return BenchmarkResult{
		Scenario:         name,
		Temperature:      temperature,
		Duration:         duration,
		Fallback:         out.Fallback,
		ReplyLength:      len(out.Reply),
		Sentences:        sentences,
		CrisisLeak:       leak,
		SentencesInRange: !out.Fallback && sentences >= 4 && sentences <= 7,
	}
}

func printSummaryStats(parameterName string, results []BenchmarkResult) {
	if len(results) == 0 {
		log.Printf("  %s: No results", parameterName)
		return
	}
	s := summarize(results)

	log.Printf("\n📊 %s Results:", parameterName)
	log.Printf("  Runs: %d", s.runs)
	log.Printf("  Avg Duration: %v", s.avgDuration)
	log.Printf("  Duration Range: %v - %v", s.minDuration, s.maxDuration)
	log.Printf("  Avg Length: %d chars", s.avgLength)
	log.Printf("  Fallbacks: %d", s.fallbacks)
	log.Printf("  Sentence count in 4-7: %d/%d", s.inRange, s.runs)
	if s.leaks > 0 {
		log.Printf("  ⚠️ Crisis wording without safety answers: %d", s.leaks)
	}
}

type stats struct {
	runs        int
	avgDuration time.Duration
	minDuration time.Duration
	maxDuration time.Duration
	avgLength   int
	fallbacks   int
	inRange     int
	leaks       int
}

func summarize(results []BenchmarkResult) stats {
	s := stats{runs: len(results)}
	if s.runs == 0 {
		return s
	}
	s.minDuration = results[0].Duration
	s.maxDuration = results[0].Duration

	var totalDuration time.Duration
	for _, r := range results {
		totalDuration += r.Duration
		s.avgLength += r.ReplyLength
		if r.Duration < s.minDuration {
			s.minDuration = r.Duration
		}
		if r.Duration > s.maxDuration {
			s.maxDuration = r.Duration
		}
		if r.Fallback {
			s.fallbacks++
		}
		if r.SentencesInRange {
			s.inRange++
		}
		if r.CrisisLeak {
			s.leaks++
		}
	}
	s.avgLength /= s.runs
	s.avgDuration = totalDuration / time.Duration(s.runs)
	return s
}

func parseTemperatures(list string) ([]float32, error) {
	var out []float32
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		if v <= 0 || v > 2 {
			return nil, fmt.Errorf("temperature %v out of range (0,2]", v)
		}
		out = append(out, float32(v))
	}
	if len(out) == 0 {
		return nil, errors.New("no temperatures given")
	}
	return out, nil
}
