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

import "context"

// GCStrategy names one of spec.md §4.9's three garbage-collection
// predicates.
type GCStrategy string

const (
	GCConservative GCStrategy = "conservative"
	GCAggressive   GCStrategy = "aggressive"
	GCNuclear      GCStrategy = "nuclear"
)

// GCResult reports the outcome of one garbage-collection pass.
type GCResult struct {
	DeletedCount   int        `json:"deleted_count"`
	RemainingCount int        `json:"remaining_count"`
	ProtectedCount int        `json:"protected_count"`
	Strategy       GCStrategy `json:"strategy"`
}

// ColdStore is the durable cold tier: the success_patterns table proper
// plus whatever envelope/metrics tables a concrete implementation adds.
// Query and GC logic (three-level fallback, protection rules) live
// above this interface in KnowledgeBase so every backend shares one
// implementation of the spec's policy.
type ColdStore interface {
	// UpsertPattern inserts a new row or, on a (error_code, cluster_id,
	// fix_description) collision, increments success_count and updates
	// the running average confidence and tag set in place.
	UpsertPattern(ctx context.Context, errorCode, clusterID, fixDescription, fixDiff string, confidence float64) (*SuccessPattern, error)

	// PatternsByClusterID returns every row with the given cluster_id.
	PatternsByClusterID(ctx context.Context, clusterID string) ([]*SuccessPattern, error)

	// PatternsByErrorCode returns every row with the given error_code.
	PatternsByErrorCode(ctx context.Context, errorCode string) ([]*SuccessPattern, error)

	// PatternsByFamily returns every row whose error_code shares the
	// given family prefix.
	PatternsByFamily(ctx context.Context, family string) ([]*SuccessPattern, error)

	// AllPatterns returns every row, for garbage collection.
	AllPatterns(ctx context.Context) ([]*SuccessPattern, error)

	// DeletePatterns removes the rows with the given IDs and reports how
	// many were actually removed.
	DeletePatterns(ctx context.Context, ids []int64) (int, error)
}
