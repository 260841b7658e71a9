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
	"sync"
	"time"
)

// MemoryStore is an in-process ColdStore, useful for the cmd/healer demo
// and for tests that don't need PostgresStore's sqlmock wiring.
type MemoryStore struct {
	mu       sync.Mutex
	rows     map[int64]*SuccessPattern
	nextID   int64
	nowFunc  func() time.Time
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]*SuccessPattern), nowFunc: time.Now}
}

func (m *MemoryStore) UpsertPattern(ctx context.Context, errorCode, clusterID, fixDescription, fixDiff string, confidence float64) (*SuccessPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	for _, p := range m.rows {
		if p.ErrorCode == errorCode && p.ClusterID == clusterID && p.FixDescription == fixDescription {
			p.SuccessCount++
			p.AvgConfidence = runningAverage(p.AvgConfidence, p.SuccessCount, confidence)
			p.Tags = TagsFor(p.AvgConfidence)
			p.LastSuccessAt = now
			p.FixDiff = fixDiff
			return p, nil
		}
	}

	m.nextID++
	p := &SuccessPattern{
		ID:             m.nextID,
		ErrorCode:      errorCode,
		ClusterID:      clusterID,
		FixDescription: fixDescription,
		FixDiff:        fixDiff,
		SuccessCount:   1,
		AvgConfidence:  confidence,
		Tags:           TagsFor(confidence),
		LastSuccessAt:  now,
		CreatedAt:      now,
	}
	m.rows[p.ID] = p
	return p, nil
}

// runningAverage folds a new observation into the running mean of n
// prior observations (n already incremented to include the new one).
func runningAverage(prevAvg float64, newCount int, observation float64) float64 {
	if newCount <= 1 {
		return observation
	}
	return (prevAvg*float64(newCount-1) + observation) / float64(newCount)
}

func (m *MemoryStore) PatternsByClusterID(ctx context.Context, clusterID string) ([]*SuccessPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SuccessPattern
	for _, p := range m.rows {
		if p.ClusterID == clusterID {
			out = append(out, cloneRow(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) PatternsByErrorCode(ctx context.Context, errorCode string) ([]*SuccessPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SuccessPattern
	for _, p := range m.rows {
		if p.ErrorCode == errorCode {
			out = append(out, cloneRow(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) PatternsByFamily(ctx context.Context, family string) ([]*SuccessPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SuccessPattern
	for _, p := range m.rows {
		if Family(p.ErrorCode) == family {
			out = append(out, cloneRow(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) AllPatterns(ctx context.Context) ([]*SuccessPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SuccessPattern, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, cloneRow(p))
	}
	return out, nil
}

func (m *MemoryStore) DeletePatterns(ctx context.Context, ids []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			delete(m.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneRow(p *SuccessPattern) *SuccessPattern {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	return &cp
}

// setLastSuccessAt is a test-only escape hatch (mirrors
// original_source/tests/test_success_patterns_integration.py's manual
// UPDATE ... SET last_success_at) for aging a row in GC tests.
func (m *MemoryStore) setLastSuccessAt(clusterID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ClusterID == clusterID {
			p.LastSuccessAt = at
		}
	}
}
