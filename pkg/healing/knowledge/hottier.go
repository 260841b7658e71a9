/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package knowledge

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultHotTierSize is the default number of recent entries the hot
// tier keeps before evicting the oldest.
const DefaultHotTierSize = 20

// HotEntry is one recent healing attempt as seen by the hot tier: just
// enough to drive a dashboard or an LLM context summary without a
// round trip to the cold tier.
type HotEntry struct {
	PatchID    string
	ErrorClass string
	Message    string
	Decision   string // PROMOTE, RETRY, ROLLBACK, STOP, HUMAN_REVIEW
	Confidence float64
	Breaker    string
	LastNote   string
	Timestamp  time.Time
}

// Trend names the direction confidence moved across recent entries.
type Trend string

const (
	TrendImproving  Trend = "improving"
	TrendDegrading  Trend = "degrading"
	TrendStagnating Trend = "stagnating"
	TrendUnknown    Trend = "unknown"
)

// HotTier is a bounded in-memory ring of recent healing attempts,
// grounded on the Python original's InMemoryEnvelopeQueue: the machine
// has memory the LLM doesn't, so recent attempts are kept in RAM for
// fast dashboard reads and LLM-context synthesis without touching the
// cold tier.
type HotTier struct {
	mu      sync.Mutex
	maxSize int
	entries []HotEntry // ring, oldest first
}

// NewHotTier builds a HotTier holding at most maxSize entries. A
// maxSize <= 0 falls back to DefaultHotTierSize.
func NewHotTier(maxSize int) *HotTier {
	if maxSize <= 0 {
		maxSize = DefaultHotTierSize
	}
	return &HotTier{maxSize: maxSize}
}

// Push records a new attempt, evicting the oldest entry if the ring is
// full.
func (h *HotTier) Push(entry HotEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Size reports the current number of entries held.
func (h *HotTier) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Clear empties the ring.
func (h *HotTier) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Recent returns up to limit entries, newest first. A limit <= 0
// returns every entry held.
func (h *HotTier) Recent(limit int) []HotEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HotEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Trend reports the confidence direction across the last n entries
// (newest included). Fewer than 3 entries yields TrendUnknown: not
// enough signal to call a direction.
func (h *HotTier) Trend(n int) Trend {
	recent := h.Recent(n)
	if len(recent) < 3 {
		return TrendUnknown
	}

	// recent is newest-first; walk oldest-to-newest for a natural
	// "moved up/down" reading.
	improving, degrading := 0, 0
	for i := len(recent) - 1; i > 0; i-- {
		switch {
		case recent[i-1].Confidence > recent[i].Confidence:
			improving++
		case recent[i-1].Confidence < recent[i].Confidence:
			degrading++
		}
	}
	switch {
	case improving > degrading:
		return TrendImproving
	case degrading > improving:
		return TrendDegrading
	default:
		return TrendStagnating
	}
}

// LLMContext renders the last limit entries as an LLM-friendly summary
// of recent healing activity, mirroring get_llm_context's structure:
// an overall success rate followed by per-attempt summaries.
func (h *HotTier) LLMContext(limit int) string {
	recent := h.Recent(limit)
	if len(recent) == 0 {
		return "No recent healing attempts in memory."
	}

	var promoted, rolledBack, retried int
	for _, e := range recent {
		switch e.Decision {
		case "PROMOTE":
			promoted++
		case "ROLLBACK", "STOP":
			rolledBack++
		case "RETRY":
			retried++
		}
	}
	successRate := 0
	if len(recent) > 0 {
		successRate = int(float64(promoted) / float64(len(recent)) * 100)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Success rate: %d%% (%d/%d promoted)\n", successRate, promoted, len(recent))
	fmt.Fprintf(&b, "Status breakdown: %d promoted, %d rolled back, %d retried\n\n", promoted, rolledBack, retried)
	b.WriteString("Recent attempts (newest first):\n")
	for i, e := range recent {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, e.Decision, e.PatchID)
		fmt.Fprintf(&b, "   confidence=%.2f breaker=%s\n", e.Confidence, e.Breaker)
		if e.Message != "" {
			fmt.Fprintf(&b, "   error: %s\n", truncate(e.Message, 80))
		}
		if e.LastNote != "" {
			fmt.Fprintf(&b, "   last attempt: %s\n", truncate(e.LastNote, 60))
		}
	}
	return b.String()
}

// PatternInsights summarizes which error classes are recurring in the
// hot tier, useful as a quick pre-query signal before hitting the cold
// tier's success_patterns table.
func (h *HotTier) PatternInsights() map[string]int {
	recent := h.Recent(0)
	counts := make(map[string]int)
	for _, e := range recent {
		if e.ErrorClass != "" {
			counts[e.ErrorClass]++
		}
	}
	return counts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
