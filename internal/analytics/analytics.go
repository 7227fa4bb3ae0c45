// Package analytics summarizes the relay audit log.
package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"phq-companion/internal/storage"
)

// DailyStats aggregates relay audit events for one day.
type DailyStats struct {
	Date             string                  `json:"date"`
	TotalCalls       int                     `json:"total_calls"`
	ByOutcome        map[storage.Outcome]int `json:"by_outcome"`
	ByPhase          map[string]PhaseStats   `json:"by_phase"`
	UpstreamStatuses map[int]int             `json:"upstream_statuses,omitempty"`
	TotalTokens      int                     `json:"total_tokens"`
}

// PhaseStats covers the calls of a single relay phase.
type PhaseStats struct {
	Calls         int   `json:"calls"`
	Fallbacks     int   `json:"fallbacks"`
	Guarded       int   `json:"guarded"`
	AvgDurationMS int64 `json:"avg_duration_ms"`
	MaxDurationMS int64 `json:"max_duration_ms"`

	totalDurationMS int64
	timed           int
}

// AnalyzeDaily aggregates the events that fall on targetDate's calendar day
// in targetDate's location.
func AnalyzeDaily(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:             startOfDay.Format("2006-01-02"),
		ByOutcome:        make(map[storage.Outcome]int),
		ByPhase:          make(map[string]PhaseStats),
		UpstreamStatuses: make(map[int]int),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		stats.TotalCalls++
		stats.ByOutcome[event.Outcome]++
		stats.TotalTokens += event.TotalTokens
		if event.UpstreamStatus != 0 {
			stats.UpstreamStatuses[event.UpstreamStatus]++
		}

		ps := stats.ByPhase[event.Phase]
		ps.Calls++
		switch event.Outcome {
		case storage.OutcomeFallback:
			ps.Fallbacks++
		case storage.OutcomeGuarded:
			ps.Guarded++
		}
		// guarded and misconfigured calls never reach the upstream
		if event.Outcome == storage.OutcomeOK || event.Outcome == storage.OutcomeFallback {
			ps.timed++
			ps.totalDurationMS += event.DurationMS
			if event.DurationMS > ps.MaxDurationMS {
				ps.MaxDurationMS = event.DurationMS
			}
		}
		stats.ByPhase[event.Phase] = ps
	}

	for phase, ps := range stats.ByPhase {
		if ps.timed > 0 {
			ps.AvgDurationMS = ps.totalDurationMS / int64(ps.timed)
		}
		stats.ByPhase[phase] = ps
	}
	return stats
}

// FallbackRate is the share of calls that ended in the fallback reply.
func (ds *DailyStats) FallbackRate() float64 {
	if ds.TotalCalls == 0 {
		return 0
	}
	return float64(ds.ByOutcome[storage.OutcomeFallback]) / float64(ds.TotalCalls)
}

// Summary renders a short plain-text report.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relay activity for %s\n", ds.Date)
	fmt.Fprintf(&b, "- calls: %d\n", ds.TotalCalls)
	if ds.TotalCalls == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "- ok: %d, fallback: %d (%.0f%%), guarded: %d, config errors: %d\n",
		ds.ByOutcome[storage.OutcomeOK],
		ds.ByOutcome[storage.OutcomeFallback], ds.FallbackRate()*100,
		ds.ByOutcome[storage.OutcomeGuarded],
		ds.ByOutcome[storage.OutcomeConfigError],
	)
	fmt.Fprintf(&b, "- tokens: %d\n", ds.TotalTokens)

	phases := make([]string, 0, len(ds.ByPhase))
	for p := range ds.ByPhase {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	for _, p := range phases {
		ps := ds.ByPhase[p]
		fmt.Fprintf(&b, "- %s: %d calls, avg %dms, max %dms\n", p, ps.Calls, ps.AvgDurationMS, ps.MaxDurationMS)
	}

	if len(ds.UpstreamStatuses) > 0 {
		codes := make([]int, 0, len(ds.UpstreamStatuses))
		for c := range ds.UpstreamStatuses {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, c := range codes {
			parts = append(parts, fmt.Sprintf("%d x%d", c, ds.UpstreamStatuses[c]))
		}
		fmt.Fprintf(&b, "- upstream errors: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}

// ToJSON serializes the stats for detailed inspection.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Report loads the audit log and aggregates the given day.
func Report(rec storage.Recorder, day time.Time) (*DailyStats, error) {
	events, err := rec.LoadEvents()
	if err != nil {
		return nil, fmt.Errorf("load audit events: %w", err)
	}
	return AnalyzeDaily(events, day), nil
}

// ReportPreviousDay aggregates the UTC calendar day before now.
func ReportPreviousDay(rec storage.Recorder, now time.Time) (*DailyStats, error) {
	return Report(rec, now.UTC().AddDate(0, 0, -1))
}
