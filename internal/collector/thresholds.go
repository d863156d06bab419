package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a benchmark run.
type Thresholds struct {
	// ConnectedRate and SubscribedRate are minimum percentages, e.g. "99%".
	ConnectedRate     string              `yaml:"connected_rate"`
	SubscribedRate    string              `yaml:"subscribed_rate"`
	MaxErrors         *int64              `yaml:"max_errors"`
	MinSentPerSec     float64             `yaml:"min_sent_per_sec"`
	MinReceivedPerSec float64             `yaml:"min_received_per_sec"`
	PublishLatency    *DurationThresholds `yaml:"publish_latency"`
}

// DurationThresholds defines latency limits.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate checks that percentage thresholds parse.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	var errs []error
	for name, v := range map[string]string{"connected_rate": t.ConnectedRate, "subscribed_rate": t.SubscribedRate} {
		if v == "" {
			continue
		}
		if _, err := parsePercentage(v); err != nil {
			errs = append(errs, fmt.Errorf("thresholds.%s: %w", name, err))
		}
	}
	if t.MaxErrors != nil && *t.MaxErrors < 0 {
		errs = append(errs, errors.New("thresholds.max_errors must be >= 0"))
	}
	return errors.Join(errs...)
}

// Check evaluates all thresholds against the report.
func (t *Thresholds) Check(r *Report) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	results.checkRate("connected_rate", t.ConnectedRate, r.ConnectedRate())
	results.checkRate("subscribed_rate", t.SubscribedRate, r.SubscribedRate())

	if t.MaxErrors != nil {
		results.add(ThresholdResult{
			Name:      "max_errors",
			Passed:    r.Errors <= *t.MaxErrors,
			Threshold: fmt.Sprintf("<= %d", *t.MaxErrors),
			Actual:    strconv.FormatInt(r.Errors, 10),
		})
	}
	results.checkMinRate("min_sent_per_sec", t.MinSentPerSec, r.SentPerSec)
	results.checkMinRate("min_received_per_sec", t.MinReceivedPerSec, r.ReceivedPerSec)

	if t.PublishLatency != nil {
		results.checkDurationThresholds(t.PublishLatency, &r.PublishLatency)
	}

	return results
}

func (r *ThresholdResults) add(res ThresholdResult) {
	if !res.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, res)
}

func (r *ThresholdResults) checkRate(name, threshold string, actual float64) {
	if threshold == "" {
		return
	}
	min, err := parsePercentage(threshold)
	if err != nil {
		return
	}
	r.add(ThresholdResult{
		Name:      name,
		Passed:    actual >= min,
		Threshold: ">= " + strings.TrimSpace(threshold),
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

func (r *ThresholdResults) checkMinRate(name string, min, actual float64) {
	if min <= 0 {
		return
	}
	r.add(ThresholdResult{
		Name:      name,
		Passed:    actual >= min,
		Threshold: fmt.Sprintf(">= %.1f", min),
		Actual:    fmt.Sprintf("%.1f", actual),
	})
}

func (r *ThresholdResults) checkDurationThresholds(thresholds *DurationThresholds, actual *DurationMetrics) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"publish_latency.avg", thresholds.Avg, actual.Avg},
		{"publish_latency.p50", thresholds.P50, actual.P50},
		{"publish_latency.p90", thresholds.P90, actual.P90},
		{"publish_latency.p95", thresholds.P95, actual.P95},
		{"publish_latency.p99", thresholds.P99, actual.P99},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}
		r.add(ThresholdResult{
			Name:      check.name,
			Passed:    check.actual < check.threshold,
			Threshold: "< " + FormatDuration(check.threshold),
			Actual:    FormatDuration(check.actual),
		})
	}
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	return strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
