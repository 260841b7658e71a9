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

// Package knowledge implements the knowledge base (C9): a persistent
// store of proven fixes keyed by error classification, with a bounded
// in-memory hot tier, a durable cold tier, a three-level fallback
// query, and a value-weighted garbage collector.
package knowledge

import (
	"strings"
	"time"
)

// FallbackLevel names which tier of the three-level lookup produced a
// result row, per spec.md §4.9.
type FallbackLevel string

const (
	FallbackCluster   FallbackLevel = "cluster"
	FallbackErrorCode FallbackLevel = "error_code"
	FallbackFamily    FallbackLevel = "family"
)

// Tag names a confidence-band label recomputed on every success-count
// update, per spec.md §3's Success Pattern thresholds.
const (
	TagGoldStandard   = "GOLD_STANDARD"
	TagHighConfidence = "HIGH_CONFIDENCE"
	TagVerified       = "VERIFIED"
)

// SuccessPattern is one knowledge-base row: a proven fix keyed by
// (error_code, cluster_id, fix_description), per spec.md §3.
type SuccessPattern struct {
	ID             int64
	ErrorCode      string
	ClusterID      string
	FixDescription string
	FixDiff        string
	SuccessCount   int
	AvgConfidence  float64
	Tags           []string
	LastSuccessAt  time.Time
	CreatedAt      time.Time

	// FallbackLevel is populated on query results only; zero-value for
	// freshly upserted rows.
	FallbackLevel FallbackLevel
}

// TagsFor recomputes the confidence-band tag set for avgConfidence, per
// spec.md §3: ≥0.9 GOLD_STANDARD, ≥0.8 HIGH_CONFIDENCE, ≥0.7 VERIFIED.
// Bands are cumulative: a pattern at 0.94 carries all three tags.
func TagsFor(avgConfidence float64) []string {
	var tags []string
	if avgConfidence >= 0.7 {
		tags = append(tags, TagVerified)
	}
	if avgConfidence >= 0.8 {
		tags = append(tags, TagHighConfidence)
	}
	if avgConfidence >= 0.9 {
		tags = append(tags, TagGoldStandard)
	}
	return tags
}

// HasTag reports whether p carries tag.
func (p *SuccessPattern) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Family returns the error code's family prefix (the part before the
// first '.'), used for the third fallback level.
func Family(errorCode string) string {
	if i := strings.IndexByte(errorCode, '.'); i >= 0 {
		return errorCode[:i]
	}
	return errorCode
}

// Protected reports whether p is exempt from every garbage-collection
// strategy, per spec.md §4.9: success_count >= 10 or tagged
// GOLD_STANDARD.
func (p *SuccessPattern) Protected() bool {
	return p.SuccessCount >= 10 || p.HasTag(TagGoldStandard)
}

// SynthesizeDescription implements spec.md §9's open-question
// resolution: a missing patch.description synthesizes "Fix for
// {error_code}".
func SynthesizeDescription(description, errorCode string) string {
	if strings.TrimSpace(description) != "" {
		return description
	}
	return "Fix for " + errorCode
}
