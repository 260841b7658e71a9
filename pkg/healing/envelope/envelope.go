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

// Package envelope implements the patch envelope (C8): an append-only,
// hash-stable audit record. All mutation flows through named helpers so
// every invariant in spec.md §4.8/§8 — latching success, clamped
// confidence components, order-independent hashing — holds regardless
// of call order.
package envelope

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/codeheals/codeheal/pkg/healing/breaker"
	"github.com/codeheals/codeheal/pkg/healing/confidence"
	"github.com/codeheals/codeheal/pkg/healing/packet"
)

// PatchData is the immutable core of the patch under healing.
type PatchData struct {
	ErrorClass   string `json:"error_class"`
	Message      string `json:"message"`
	PatchedCode  string `json:"patched_code"`
	OriginalCode string `json:"original_code"`
	Diff         string `json:"diff,omitempty"`
	Language     string `json:"language,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Metadata carries the envelope's mutable-but-controlled context,
// including the truth-flow triple from spec.md §4.2:
// rebanker_raw/rebanker_hash are ground truth, set only via
// SetRebanker; rebanker_interpreted is the sole field the LLM may write
// (via SetInterpretation).
type Metadata struct {
	RebankerRaw         *packet.Diagnostic `json:"rebanker_raw,omitempty"`
	RebankerHash        string             `json:"rebanker_hash,omitempty"`
	RebankerInterpreted *string            `json:"rebanker_interpreted"`
	DeltaFromPrev       string             `json:"delta_from_prev,omitempty"`
	Extra               map[string]any     `json:"extra,omitempty"`
}

// ResourceUsage mirrors the sandbox's resource report (spec.md §4.7)
// attached to the envelope for audit.
type ResourceUsage struct {
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	CPUUsedPercent  float64 `json:"cpu_used_percent"`
}

// TrendMetadata is the derived quality trend from spec.md §4.10 step 12.
type TrendMetadata struct {
	PreviousErrors      int     `json:"previous_errors"`
	CurrentErrors       int     `json:"current_errors"`
	ErrorsResolved      int     `json:"errors_resolved"`
	QualityScore        float64 `json:"quality_score"`
	ImprovementVelocity float64 `json:"improvement_velocity"`
	StagnationRisk      float64 `json:"stagnation_risk"`
}

// Counters tallies per-lane attempt bookkeeping.
type Counters struct {
	TotalAttempts  int `json:"total_attempts"`
	SyntaxAttempts int `json:"syntax_attempts"`
	LogicAttempts  int `json:"logic_attempts"`
	Promotions     int `json:"promotions"`
	Retries        int `json:"retries"`
	Rollbacks      int `json:"rollbacks"`
}

// Attempt is one append-only record in attempts[].
type Attempt struct {
	AttemptNo int             `json:"attempt_no"`
	Timestamp time.Time       `json:"timestamp"`
	Decision  string          `json:"decision"`
	Note      string          `json:"note,omitempty"`
	Score     *confidence.Score `json:"score,omitempty"`
}

// TimelineEntry is one append-only record in timeline[].
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

// Envelope is the append-only patch audit record from spec.md §3/§4.8.
// All fields are exported for (de)serialization but mutation must go
// through the helper methods below to preserve the spec's invariants.
type Envelope struct {
	PatchID    string    `json:"patch_id"`
	PatchData  PatchData `json:"patch_data"`
	Metadata   Metadata  `json:"metadata"`
	Attempts   []Attempt `json:"attempts"`
	Timeline   []TimelineEntry `json:"timeline"`

	ConfidenceComponents confidence.Components `json:"confidence_components"`
	BreakerState         breaker.Snapshot       `json:"breaker_state"`
	CascadeDepth         int                    `json:"cascade_depth"`
	ResourceUsage        ResourceUsage          `json:"resource_usage"`
	TrendMetadata        TrendMetadata          `json:"trend_metadata"`
	Counters             Counters               `json:"counters"`

	FlaggedForDeveloper bool   `json:"flagged_for_developer"`
	DeveloperMessage    string `json:"developer_message,omitempty"`
	DeveloperFlagReason string `json:"developer_flag_reason,omitempty"`

	Success      bool      `json:"success"`
	EnvelopeHash string    `json:"envelope_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// New creates a fresh envelope for patchData, deriving patch_id as
// spec.md §4.8 specifies: "patch_{epoch_ms}_{deterministic_hash(patch_data)}".
func New(patchData PatchData) *Envelope {
	now := time.Now()
	e := &Envelope{
		PatchID:   fmt.Sprintf("patch_%d_%s", now.UnixMilli(), deterministicHash(patchData)),
		PatchData: patchData,
		Metadata:  Metadata{},
		Attempts:  []Attempt{},
		Timeline:  []TimelineEntry{},
		Timestamp: now,
	}
	e.recomputeHash()
	return e
}

func deterministicHash(patchData PatchData) string {
	canon, err := packet.CanonicalJSON(patchData)
	if err != nil {
		panic(fmt.Sprintf("envelope: canonical json failed for patch_data: %v", err))
	}
	sum := sha256.Sum256(canon)
	return fmt.Sprintf("%x", sum)[:16]
}

// hashView is the projection of the envelope hashed into EnvelopeHash.
// It deliberately omits the volatile set named in spec.md §3:
// attempts, timestamp, envelope_hash, developer_message,
// developer_flag_reason, timeline.
type hashView struct {
	PatchID              string                `json:"patch_id"`
	PatchData            PatchData             `json:"patch_data"`
	Metadata             Metadata              `json:"metadata"`
	ConfidenceComponents confidence.Components `json:"confidence_components"`
	BreakerState         breaker.Snapshot       `json:"breaker_state"`
	CascadeDepth         int                    `json:"cascade_depth"`
	ResourceUsage        ResourceUsage          `json:"resource_usage"`
	TrendMetadata        TrendMetadata          `json:"trend_metadata"`
	Counters             Counters               `json:"counters"`
	FlaggedForDeveloper  bool                  `json:"flagged_for_developer"`
	Success              bool                  `json:"success"`
}

// Hash computes the envelope's hash over the non-volatile field set.
func (e *Envelope) Hash() string {
	view := hashView{
		PatchID:              e.PatchID,
		PatchData:            e.PatchData,
		Metadata:             e.Metadata,
		ConfidenceComponents: e.ConfidenceComponents,
		BreakerState:         e.BreakerState,
		CascadeDepth:         e.CascadeDepth,
		ResourceUsage:        e.ResourceUsage,
		TrendMetadata:        e.TrendMetadata,
		Counters:             e.Counters,
		FlaggedForDeveloper:  e.FlaggedForDeveloper,
		Success:              e.Success,
	}
	canon, err := packet.CanonicalJSON(view)
	if err != nil {
		// BreakerState.LastAttemptAt is a time.Time, which CanonicalJSON
		// handles fine once marshaled to its RFC3339 string form by
		// encoding/json; any other failure here is a programmer error.
		panic(fmt.Sprintf("envelope: canonical json failed: %v", err))
	}
	sum := sha256.Sum256(canon)
	return fmt.Sprintf("%x", sum)
}

func (e *Envelope) recomputeHash() {
	e.EnvelopeHash = e.Hash()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SetConfidenceComponents clamps every component to [0,1] and
// recomputes the hash, per spec.md §4.8's controlled-mutation surface.
func (e *Envelope) SetConfidenceComponents(c confidence.Components) {
	c.HistoricalSuccessRate = clamp01(c.HistoricalSuccessRate)
	c.PatternSimilarity = clamp01(c.PatternSimilarity)
	c.ComplexityPenalty = clamp01(c.ComplexityPenalty)
	c.TestCoverage = clamp01(c.TestCoverage)
	e.ConfidenceComponents = c
	e.recomputeHash()
}

// SetCascadeDepth coerces depth to max(0, int) and recomputes the hash.
func (e *Envelope) SetCascadeDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	e.CascadeDepth = depth
	e.recomputeHash()
}

// SetBreakerState records the breaker snapshot and recomputes the hash.
func (e *Envelope) SetBreakerState(s breaker.Snapshot) {
	e.BreakerState = s
	e.recomputeHash()
}

// SetResourceUsage records the sandbox's resource report and recomputes
// the hash.
func (e *Envelope) SetResourceUsage(u ResourceUsage) {
	e.ResourceUsage = u
	e.recomputeHash()
}

// SetTrendMetadata records the derived trend and recomputes the hash.
func (e *Envelope) SetTrendMetadata(t TrendMetadata) {
	e.TrendMetadata = t
	e.recomputeHash()
}

// SetCounters records the attempt counters and recomputes the hash.
func (e *Envelope) SetCounters(c Counters) {
	e.Counters = c
	e.recomputeHash()
}

// SetRebanker attaches a freshly classified diagnostic packet as ground
// truth, computing rebanker_hash from the packet itself and resetting
// rebanker_interpreted — only the LLM, via SetInterpretation, may write
// there afterward.
func (e *Envelope) SetRebanker(raw *packet.Diagnostic) {
	e.Metadata.RebankerRaw = raw
	e.Metadata.RebankerHash = packet.Hash(raw)
	e.Metadata.RebankerInterpreted = nil
	e.recomputeHash()
}

// SetInterpretation writes the LLM's free-form paraphrase of the current
// ground-truth packet. This is the only metadata field the truth-flow
// contract (spec.md §4.2) allows the LLM to write.
func (e *Envelope) SetInterpretation(paraphrase string) {
	e.Metadata.RebankerInterpreted = &paraphrase
	e.recomputeHash()
}

// SetDeltaFromPrev records the computed delta against the prior attempt
// for audit.
func (e *Envelope) SetDeltaFromPrev(delta string) {
	e.Metadata.DeltaFromPrev = delta
	e.recomputeHash()
}

// MergeExtraMetadata merges caller-supplied metadata into the envelope
// without disturbing the truth-flow fields.
func (e *Envelope) MergeExtraMetadata(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if e.Metadata.Extra == nil {
		e.Metadata.Extra = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		e.Metadata.Extra[k] = v
	}
	e.recomputeHash()
}

// Promote latches Success to true. Per spec.md's one-way latch
// invariant, calling Promote after Success is already true, or calling
// it on a rolled-back envelope, never sets Success back to false —
// there is deliberately no corresponding Unpromote.
func (e *Envelope) Promote() {
	if e.Success {
		return
	}
	e.Success = true
	e.recomputeHash()
}

// FlagForDeveloper marks the envelope for human review. The reason and
// message are in the volatile set and do not affect the hash; the
// flagged_for_developer bool itself is not volatile and does.
func (e *Envelope) FlagForDeveloper(reason, message string) {
	e.FlaggedForDeveloper = true
	e.DeveloperFlagReason = reason
	e.DeveloperMessage = message
	e.recomputeHash()
}

// AppendAttempt appends to attempts[]; per spec.md §3/§8, attempts is in
// the volatile set so this never changes EnvelopeHash.
func (e *Envelope) AppendAttempt(a Attempt) {
	a.AttemptNo = len(e.Attempts) + 1
	e.Attempts = append(e.Attempts, a)
	e.Timestamp = time.Now()
}

// AppendTimeline appends to timeline[]; also volatile, never changes
// EnvelopeHash.
func (e *Envelope) AppendTimeline(event, detail string) {
	e.Timeline = append(e.Timeline, TimelineEntry{Timestamp: time.Now(), Event: event, Detail: detail})
}
