/*
 *     Copyright 2024 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"

	"d7y.io/peerprobe/pkg/types"
	"d7y.io/peerprobe/prober/aggregator"
	"d7y.io/peerprobe/prober/scheduler"
)

// Latency is the statistics of succeeded attempts.
type Latency struct {
	Min    time.Duration
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
	Max    time.Duration
}

// Report is the summary of a run.
type Report struct {
	RunID     string
	Host      string
	StartedAt time.Time
	Elapsed   time.Duration

	Attempted int
	Started   int
	Succeeded int
	Failed    int
	Pending   int

	// Failures counts failed attempts by kind.
	Failures map[types.FailureKind]int

	// Latency is nil when no attempt succeeded.
	Latency *Latency

	// Spans is the ordered timeline of succeeded attempts.
	Spans []aggregator.Span

	userAgents map[int]string
}

// Record is one line of the csv timeline.
type Record struct {
	Index       int     `csv:"index"`
	Address     string  `csv:"address"`
	StartOffset float64 `csv:"start_offset_ms"`
	StopOffset  float64 `csv:"stop_offset_ms"`
	Duration    float64 `csv:"duration_ms"`
	UserAgent   string  `csv:"user_agent"`
}

// Option is a functional option for configuring the report.
type Option func(r *Report)

// WithHost sets the host name of the prober.
func WithHost(host string) Option {
	return func(r *Report) {
		r.Host = host
	}
}

// WithStartedAt sets the wall time the run started.
func WithStartedAt(startedAt time.Time) Option {
	return func(r *Report) {
		r.StartedAt = startedAt
	}
}

// WithElapsed sets the wall time the run took.
func WithElapsed(elapsed time.Duration) Option {
	return func(r *Report) {
		r.Elapsed = elapsed
	}
}

// New builds the report of a run. spans are the succeeded spans of rs, they are
// ordered by start again.
func New(runID string, rs scheduler.ResultSet, spans []aggregator.Span, options ...Option) *Report {
	r := &Report{
		RunID:      runID,
		Attempted:  rs.Submitted,
		Started:    rs.Started,
		Pending:    len(rs.Pending),
		Failures:   make(map[types.FailureKind]int),
		Spans:      aggregator.Sort(spans),
		userAgents: make(map[int]string),
	}

	for _, opt := range options {
		opt(r)
	}

	for _, o := range rs.Outcomes {
		if o.Succeeded {
			r.Succeeded++
			if o.Payload != nil {
				r.userAgents[o.Index] = o.Payload.UserAgent
			}
			continue
		}

		r.Failed++
		r.Failures[o.Kind]++
	}

	r.Latency = latency(spans)
	return r
}

func latency(spans []aggregator.Span) *Latency {
	if len(spans) == 0 {
		return nil
	}

	data := make(stats.Float64Data, 0, len(spans))
	for _, span := range spans {
		data = append(data, float64(span.Duration()))
	}

	// Errors are only returned for empty input.
	lo, _ := stats.Min(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	p95, _ := stats.Percentile(data, 95)
	hi, _ := stats.Max(data)

	return &Latency{
		Min:    time.Duration(lo),
		Mean:   time.Duration(mean),
		Median: time.Duration(median),
		P95:    time.Duration(p95),
		Max:    time.Duration(hi),
	}
}

// Records returns the timeline with offsets relative to the first start.
func (r *Report) Records() []*Record {
	records := make([]*Record, 0, len(r.Spans))
	if len(r.Spans) == 0 {
		return records
	}

	origin := r.Spans[0].Start
	for _, span := range r.Spans {
		records = append(records, &Record{
			Index:       span.Index,
			Address:     span.Address.String(),
			StartOffset: milliseconds(span.Start.Sub(origin)),
			StopOffset:  milliseconds(span.Stop.Sub(origin)),
			Duration:    milliseconds(span.Duration()),
			UserAgent:   r.userAgents[span.Index],
		})
	}

	return records
}

// WriteCSV writes the timeline with a header line.
func (r *Report) WriteCSV(w io.Writer) error {
	return gocsv.Marshal(r.Records(), w)
}

// WriteText writes a human readable summary.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	if r.Host != "" {
		fmt.Fprintf(tw, "host\t%s\n", r.Host)
	}
	if r.Elapsed > 0 {
		fmt.Fprintf(tw, "elapsed\t%s (%s)\n", r.Elapsed.Round(time.Millisecond), units.HumanDuration(r.Elapsed))
	}
	fmt.Fprintf(tw, "attempted\t%d\n", r.Attempted)
	fmt.Fprintf(tw, "started\t%d\n", r.Started)
	fmt.Fprintf(tw, "succeeded\t%d\n", r.Succeeded)
	fmt.Fprintf(tw, "failed\t%d\n", r.Failed)
	fmt.Fprintf(tw, "pending\t%d\n", r.Pending)

	for _, kind := range types.FailureKinds {
		if count := r.Failures[kind]; count > 0 {
			fmt.Fprintf(tw, "  %s\t%d\n", kind, count)
		}
	}

	if r.Latency != nil {
		fmt.Fprintf(tw, "latency\tmin=%s mean=%s median=%s p95=%s max=%s\n",
			round(r.Latency.Min), round(r.Latency.Mean), round(r.Latency.Median), round(r.Latency.P95), round(r.Latency.Max))
	}

	return tw.Flush()
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}
