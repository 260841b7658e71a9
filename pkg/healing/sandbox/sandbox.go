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

// Package sandbox implements the sandbox contract (C7): isolated patch
// execution under resource ceilings, reporting a fixed test battery. The
// core never trusts a sandbox result for semantic correctness — it
// re-classifies the resulting code through the classifier (C1).
package sandbox

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Isolation names the sandbox's execution isolation level, reported on
// every result for audit per spec.md §4.7.
type Isolation string

const (
	IsolationFull    Isolation = "full"
	IsolationPartial Isolation = "partial"
	IsolationNone    Isolation = "none"
)

// Request is the input to one sandboxed patch execution.
type Request struct {
	PatchID      string
	Language     string
	PatchedCode  string
	OriginalCode string
	Diff         string
}

// TestResult is one fixed-battery test's outcome.
type TestResult struct {
	Name     string
	Passed   bool
	Duration time.Duration
}

// Result is the sandbox's execution report (spec.md §4.7).
type Result struct {
	Success         bool
	ExecutionTimeMS int64
	MemoryUsedMB    float64
	CPUUsedPercent  float64
	SideEffects     []string
	TestResults     []TestResult
	ErrorMessage    string
	Isolation       Isolation
}

// Sandbox is the pluggable execution backend the spec treats as a
// contract: the core orchestrates and gates on its result but never
// trusts it for semantic correctness.
type Sandbox interface {
	ExecutePatch(ctx context.Context, req Request) (Result, error)
}

// Limits are the per-run resource ceilings from spec.md §4.7's defaults.
type Limits struct {
	WallClock  time.Duration
	MemoryMB   float64
	CPUPercent float64
}

// DefaultLimits mirrors spec.md §4.7: 30s wall-clock, 500MB, 80% CPU.
func DefaultLimits() Limits {
	return Limits{WallClock: 30 * time.Second, MemoryMB: 500, CPUPercent: 80}
}

// TestRunner runs one battery test against a request and reports
// pass/fail plus the resources it consumed. LocalSandbox calls it once
// per battery entry; the test's name is not passed to it. Implementations are
// injected so LocalSandbox stays testable without a real execution
// backend — the actual "run untrusted code" step is explicitly out of
// spec.md §1's scope.
type TestRunner func(ctx context.Context, req Request) (passed bool, memoryMB, cpuPercent float64, sideEffects []string, err error)

// battery is the fixed set of tests spec.md §4.7 requires every run to
// execute: syntax, unit, integration, performance, security.
var battery = []string{"syntax", "unit", "integration", "performance", "security"}

// LocalSandbox runs the fixed test battery concurrently under a bounded
// errgroup, enforcing the wall-clock ceiling via context and the
// memory/CPU ceilings via the runner's reported usage.
type LocalSandbox struct {
	Isolation Isolation
	Limits    Limits
	Runner    TestRunner
}

// New builds a LocalSandbox with the given isolation level, limits, and
// test runner. A nil runner defaults to NoopRunner (every test passes,
// reporting 1 MB and 1% CPU), useful for wiring demos and unit tests of
// the orchestrator above this layer.
func New(isolation Isolation, limits Limits, runner TestRunner) *LocalSandbox {
	if runner == nil {
		runner = NoopRunner
	}
	return &LocalSandbox{Isolation: isolation, Limits: limits, Runner: runner}
}

// NoopRunner always reports a pass with negligible resource usage.
func NoopRunner(ctx context.Context, req Request) (bool, float64, float64, []string, error) {
	return true, 1, 1, nil, nil
}

// ExecutePatch implements Sandbox: runs the fixed battery under the
// configured wall-clock ceiling, aggregates pass/fail and peak
// memory/CPU, and fails the run with a fixed message if any ceiling is
// exceeded, per spec.md §4.7.
func (s *LocalSandbox) ExecutePatch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	wallClock := s.Limits.WallClock
	if wallClock <= 0 {
		wallClock = DefaultLimits().WallClock
	}
	runCtx, cancel := context.WithTimeout(ctx, wallClock)
	defer cancel()

	results := make([]TestResult, len(battery))
	var peakMemory, peakCPU float64
	var sideEffects []string
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(runCtx)
	for i, name := range battery {
		i, name := i, name
		g.Go(func() error {
			testStart := time.Now()
			passed, memMB, cpuPct, effects, err := s.Runner(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if memMB > peakMemory {
				peakMemory = memMB
			}
			if cpuPct > peakCPU {
				peakCPU = cpuPct
			}
			sideEffects = append(sideEffects, effects...)
			results[i] = TestResult{Name: name, Passed: passed && err == nil, Duration: time.Since(testStart)}
			return err
		})
	}
	runErr := g.Wait()

	elapsed := time.Since(start)
	result := Result{
		ExecutionTimeMS: elapsed.Milliseconds(),
		MemoryUsedMB:    peakMemory,
		CPUUsedPercent:  peakCPU,
		SideEffects:     sideEffects,
		TestResults:     results,
		Isolation:       s.Isolation,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.Success = false
		result.ErrorMessage = "Resource limits exceeded"
		return result, nil
	}
	if s.Limits.MemoryMB > 0 && peakMemory > s.Limits.MemoryMB {
		result.Success = false
		result.ErrorMessage = "Resource limits exceeded"
		return result, nil
	}
	if s.Limits.CPUPercent > 0 && peakCPU > s.Limits.CPUPercent {
		result.Success = false
		result.ErrorMessage = "Resource limits exceeded"
		return result, nil
	}

	allPassed := true
	for _, r := range results {
		if !r.Passed {
			allPassed = false
			break
		}
	}
	result.Success = allPassed && runErr == nil
	if !result.Success && result.ErrorMessage == "" && runErr != nil {
		result.ErrorMessage = runErr.Error()
	}
	return result, nil
}

