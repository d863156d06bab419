package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// FormatText writes the report in human-readable format.
func FormatText(w io.Writer, r *Report, thresholds *ThresholdResults) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "mqttbench - Benchmark Results")
	fmt.Fprintln(w, "=============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Workers:      %d\n", r.Workers)
	fmt.Fprintf(w, "Sent:         %s\n", formatNumber(r.MessagesSent))
	fmt.Fprintf(w, "Received:     %s\n", formatNumber(r.MessagesReceived))
	fmt.Fprintf(w, "Errors:       %s\n", formatNumber(r.Errors))
	fmt.Fprintf(w, "Reconnects:   %s\n", formatNumber(r.Reconnects))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Duration:")
	fmt.Fprintf(w, "  Min:    %s\n", formatSeconds(r.MinDuration))
	fmt.Fprintf(w, "  Avg:    %s\n", formatSeconds(r.AvgDuration))
	fmt.Fprintf(w, "  Max:    %s\n", formatSeconds(r.MaxDuration))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Throughput:")
	fmt.Fprintf(w, "  Sent:       %.1f / second\n", r.SentPerSec)
	fmt.Fprintf(w, "  Received:   %.1f / second\n", r.ReceivedPerSec)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Established connections:   %d / %d (%.1f%%)\n",
		r.Connected, r.RequestedConnections, r.ConnectedRate())
	fmt.Fprintf(w, "Established subscriptions: %d / %d (%.1f%%)\n",
		r.Subscribed, r.RequestedSubscriptions, r.SubscribedRate())
	if r.AllocatedConnections < r.RequestedConnections {
		fmt.Fprintf(w, "  note: only %d connections allocated; the remainder does not divide evenly across workers\n",
			r.AllocatedConnections)
	}

	if m := r.PublishLatency; m.Count > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Publish Latency:")
		fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.Min))
		fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.Avg))
		fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.P50))
		fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(m.P90))
		fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.P95))
		fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(m.P99))
		fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.Max))
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes the report in JSON format. Durations are in seconds.
func FormatJSON(w io.Writer, r *Report, thresholds *ThresholdResults) {
	output := struct {
		Workers                int                 `json:"workers"`
		MessagesSent           int64               `json:"messagesSent"`
		MessagesReceived       int64               `json:"messagesReceived"`
		Errors                 int64               `json:"errorCount"`
		Reconnects             int64               `json:"reconnectCount"`
		MinDuration            float64             `json:"minDuration"`
		AvgDuration            float64             `json:"avgDuration"`
		MaxDuration            float64             `json:"maxDuration"`
		SentPerSec             float64             `json:"sentPerSec"`
		ReceivedPerSec         float64             `json:"receivedPerSec"`
		Connected              int                 `json:"connectedCount"`
		Subscribed             int                 `json:"subscribedCount"`
		RequestedConnections   int                 `json:"requestedConnections"`
		RequestedSubscriptions int                 `json:"requestedSubscriptions"`
		AllocatedConnections   int                 `json:"allocatedConnections"`
		PublishLatency         jsonDurationMetrics `json:"publishLatency"`
		Thresholds             *ThresholdResults   `json:"thresholds,omitempty"`
	}{
		Workers:                r.Workers,
		MessagesSent:           r.MessagesSent,
		MessagesReceived:       r.MessagesReceived,
		Errors:                 r.Errors,
		Reconnects:             r.Reconnects,
		MinDuration:            r.MinDuration.Seconds(),
		AvgDuration:            r.AvgDuration.Seconds(),
		MaxDuration:            r.MaxDuration.Seconds(),
		SentPerSec:             r.SentPerSec,
		ReceivedPerSec:         r.ReceivedPerSec,
		Connected:              r.Connected,
		Subscribed:             r.Subscribed,
		RequestedConnections:   r.RequestedConnections,
		RequestedSubscriptions: r.RequestedSubscriptions,
		AllocatedConnections:   r.AllocatedConnections,
		PublishLatency:         toJSONDurationMetrics(r.PublishLatency),
		Thresholds:             thresholds,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonDurationMetrics struct {
	Count int64  `json:"count"`
	Min   string `json:"min"`
	Max   string `json:"max"`
	Avg   string `json:"avg"`
	P50   string `json:"p50"`
	P90   string `json:"p90"`
	P95   string `json:"p95"`
	P99   string `json:"p99"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Count: d.Count,
		Min:   FormatDuration(d.Min),
		Max:   FormatDuration(d.Max),
		Avg:   FormatDuration(d.Avg),
		P50:   FormatDuration(d.P50),
		P90:   FormatDuration(d.P90),
		P95:   FormatDuration(d.P95),
		P99:   FormatDuration(d.P99),
	}
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// formatNumber groups digits in thousands: 1234567 -> 1,234,567.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
