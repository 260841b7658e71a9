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
	"context"
)

// PromotionConfidenceFloor is the overall_confidence threshold a
// PROMOTE decision must clear before its fix is upserted into the
// knowledge base, per spec.md §4.9.
const PromotionConfidenceFloor = 0.7

// KnowledgeBase wires the bounded in-memory hot tier to a durable cold
// tier and implements the three-level fallback query and
// upsert-on-promote logic that sit above ColdStore.
type KnowledgeBase struct {
	Hot  *HotTier
	Cold ColdStore
}

// New builds a KnowledgeBase. A nil hotTier falls back to a
// DefaultHotTierSize ring.
func New(cold ColdStore, hotTier *HotTier) *KnowledgeBase {
	if hotTier == nil {
		hotTier = NewHotTier(DefaultHotTierSize)
	}
	return &KnowledgeBase{Hot: hotTier, Cold: cold}
}

// RecordAttempt pushes an attempt summary into the hot tier regardless
// of its outcome, so dashboards and LLM context always see the full
// recent history.
func (kb *KnowledgeBase) RecordAttempt(entry HotEntry) {
	kb.Hot.Push(entry)
}

// UpsertOnPromote implements spec.md §4.9's PROMOTE path: when
// overall_confidence clears PromotionConfidenceFloor and an error code
// is present, record or reinforce the success pattern it represents.
// Returns (nil, nil) when the confidence gate isn't cleared or no
// error code is available — this is a routine no-op, not an error.
func (kb *KnowledgeBase) UpsertOnPromote(ctx context.Context, errorCode, clusterID, fixDescription, fixDiff string, overallConfidence float64) (*SuccessPattern, error) {
	if overallConfidence < PromotionConfidenceFloor || errorCode == "" {
		return nil, nil
	}
	fixDescription = SynthesizeDescription(fixDescription, errorCode)
	return kb.Cold.UpsertPattern(ctx, errorCode, clusterID, fixDescription, fixDiff, overallConfidence)
}

// QueryOptions configures GetSimilarSuccessPatterns.
type QueryOptions struct {
	ErrorCode     string
	ClusterID     string
	Limit         int
	MinConfidence float64
}

// GetSimilarSuccessPatterns implements spec.md §4.9's three-level
// fallback query: exact cluster_id; only when that level yields no row,
// matching error_code; only when that yields none either, the shared
// family prefix. Results are de-duplicated by
// (cluster_id, fix_description), filtered by MinConfidence, ordered by
// success_count DESC then avg_confidence DESC, and each carries the
// FallbackLevel of the tier that produced it.
func (kb *KnowledgeBase) GetSimilarSuccessPatterns(ctx context.Context, opts QueryOptions) ([]*SuccessPattern, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	seen := make(map[string]bool)
	var out []*SuccessPattern

	appendLevel := func(rows []*SuccessPattern, level FallbackLevel) {
		for _, p := range rows {
			if len(out) >= limit {
				return
			}
			if p.AvgConfidence < opts.MinConfidence {
				continue
			}
			key := p.ClusterID + "\x00" + p.FixDescription
			if seen[key] {
				continue
			}
			seen[key] = true
			cp := cloneRow(p)
			cp.FallbackLevel = level
			out = append(out, cp)
		}
	}

	if opts.ClusterID != "" && len(out) < limit {
		rows, err := kb.Cold.PatternsByClusterID(ctx, opts.ClusterID)
		if err != nil {
			return nil, err
		}
		appendLevel(sortPatterns(rows), FallbackCluster)
	}

	if opts.ErrorCode != "" && len(out) == 0 {
		rows, err := kb.Cold.PatternsByErrorCode(ctx, opts.ErrorCode)
		if err != nil {
			return nil, err
		}
		appendLevel(sortPatterns(rows), FallbackErrorCode)
	}

	if opts.ErrorCode != "" && len(out) == 0 {
		rows, err := kb.Cold.PatternsByFamily(ctx, Family(opts.ErrorCode))
		if err != nil {
			return nil, err
		}
		appendLevel(sortPatterns(rows), FallbackFamily)
	}

	return out, nil
}

// sortPatterns orders rows by success_count DESC, avg_confidence DESC,
// per spec.md §4.9. Backends are free to return unordered results;
// this is the one place ordering is enforced.
func sortPatterns(rows []*SuccessPattern) []*SuccessPattern {
	sorted := append([]*SuccessPattern(nil), rows...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

func less(a, b *SuccessPattern) bool {
	if a.SuccessCount != b.SuccessCount {
		return a.SuccessCount > b.SuccessCount
	}
	return a.AvgConfidence > b.AvgConfidence
}
