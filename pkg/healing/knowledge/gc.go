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
	"time"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

// deletionPredicate implements spec.md §4.9's three GC strategies.
// Protected rows are filtered out before this runs, so predicates only
// need to express "this unprotected row is prunable".
func deletionPredicate(strategy GCStrategy, now time.Time) (func(*SuccessPattern) bool, error) {
	switch strategy {
	case GCConservative:
		cutoff := now.AddDate(0, 0, -90)
		return func(p *SuccessPattern) bool {
			return p.SuccessCount == 1 && p.LastSuccessAt.Before(cutoff)
		}, nil
	case GCAggressive:
		cutoff := now.AddDate(0, 0, -60)
		return func(p *SuccessPattern) bool {
			return p.SuccessCount < 3 && p.LastSuccessAt.Before(cutoff)
		}, nil
	case GCNuclear:
		return func(p *SuccessPattern) bool {
			return p.SuccessCount < 5
		}, nil
	default:
		return nil, cherrors.ValidationError("strategy", "must be one of conservative, aggressive, nuclear")
	}
}

// GarbageCollect runs one GC pass against store, per spec.md §4.9.
// Protected rows (success_count >= 10 or tagged GOLD_STANDARD) are
// never deleted by any strategy.
func GarbageCollect(ctx context.Context, store ColdStore, strategy GCStrategy, now time.Time) (GCResult, error) {
	predicate, err := deletionPredicate(strategy, now)
	if err != nil {
		return GCResult{}, err
	}

	all, err := store.AllPatterns(ctx)
	if err != nil {
		return GCResult{}, cherrors.DatabaseError("list patterns for garbage collection", err)
	}

	var toDelete []int64
	protected := 0
	for _, p := range all {
		if p.Protected() {
			protected++
			continue
		}
		if predicate(p) {
			toDelete = append(toDelete, p.ID)
		}
	}

	deleted := 0
	if len(toDelete) > 0 {
		deleted, err = store.DeletePatterns(ctx, toDelete)
		if err != nil {
			return GCResult{}, cherrors.DatabaseError("delete garbage-collected patterns", err)
		}
	}

	return GCResult{
		DeletedCount:   deleted,
		RemainingCount: len(all) - deleted,
		ProtectedCount: protected,
		Strategy:       strategy,
	}, nil
}
