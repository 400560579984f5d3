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

package aggregator

import (
	"sort"
	"time"

	"d7y.io/peerprobe/pkg/peer"
	"d7y.io/peerprobe/prober/scheduler"
)

// Span is the start and stop of a succeeded attempt.
type Span struct {
	Index   int
	Address peer.Address
	Start   time.Time
	Stop    time.Time
}

// Duration returns the time the attempt took.
func (s Span) Duration() time.Duration {
	return s.Stop.Sub(s.Start)
}

// Summarize returns the spans of the succeeded outcomes ordered by start,
// ties broken by submission index. rs is not modified.
func Summarize(rs scheduler.ResultSet) []Span {
	spans := make([]Span, 0, len(rs.Outcomes))
	for _, o := range rs.Outcomes {
		if !o.Succeeded {
			continue
		}

		spans = append(spans, Span{
			Index:   o.Index,
			Address: o.Address,
			Start:   o.StartTime,
			Stop:    o.StopTime,
		})
	}

	sortSpans(spans)
	return spans
}

// Sort returns a sorted copy of spans.
func Sort(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sortSpans(sorted)
	return sorted
}

func sortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if !spans[i].Start.Equal(spans[j].Start) {
			return spans[i].Start.Before(spans[j].Start)
		}

		return spans[i].Index < spans[j].Index
	})
}
