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

// Package breaker implements the dual circuit breaker (C5): two
// independent attempt/error budgets, one per error class lane, sharing
// a single composite state.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// errAttemptFailed is the sentinel error fed to gobreaker's Execute on a
// failed attempt, so its ReadyToTrip callback sees it as a failure.
var errAttemptFailed = errors.New("breaker: attempt failed")

// Class is the lane a breaker decision applies to.
type Class string

const (
	ClassSyntax Class = "syntax"
	ClassLogic  Class = "logic"
)

// State is the composite breaker state exposed for audit, per spec.md
// §3's Circuit Breaker State data model.
type State string

const (
	StateClosed          State = "CLOSED"
	StateSyntaxOpen      State = "SYNTAX_OPEN"
	StateLogicOpen       State = "LOGIC_OPEN"
	StatePermanentlyOpen State = "PERMANENTLY_OPEN"
)

// Budget configures one lane's attempt ceiling and error-rate ceiling.
type Budget struct {
	MaxAttempts int
	ErrorBudget float64 // fraction of attempts, e.g. 0.03 for 3%.
}

// DefaultSyntaxBudget and DefaultLogicBudget mirror spec.md §4.5.
func DefaultSyntaxBudget() Budget { return Budget{MaxAttempts: 3, ErrorBudget: 0.03} }
func DefaultLogicBudget() Budget  { return Budget{MaxAttempts: 10, ErrorBudget: 0.10} }

// lane tracks one class's attempt/error counters (for audit, since
// gobreaker resets its own Counts to zero on every generation change)
// and drives a gobreaker.CircuitBreaker through the identical
// success/failure sequence so gobreaker's own ReadyToTrip/generation
// bookkeeping is what decides when the lane trips. open latches that
// decision so it survives gobreaker's internal timeout-driven
// half-open transition — spec.md §4.5's lanes only reopen on an
// explicit Reset, never on a wall-clock timeout.
type lane struct {
	budget   Budget
	attempts int
	errors   int
	open     bool
	cb       *gobreaker.CircuitBreaker
}

// newGobreaker builds the gobreaker instance a lane drives. ReadyToTrip
// implements spec.md §4.5's per-lane budget (MaxAttempts, ErrorBudget)
// directly off gobreaker's own counts, rather than a generic
// consecutive-failure heuristic.
func newGobreaker(name string, budget Budget) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			if counts.Requests >= uint32(budget.MaxAttempts) {
				return true
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > budget.ErrorBudget
		},
	})
}

func newLane(name string, budget Budget) *lane {
	return &lane{budget: budget, cb: newGobreaker(name, budget)}
}

func (l *lane) errorRate() float64 {
	if l.attempts == 0 {
		return 0
	}
	return float64(l.errors) / float64(l.attempts)
}

func (l *lane) exhausted() bool {
	return l.open || l.attempts >= l.budget.MaxAttempts || l.errorRate() > l.budget.ErrorBudget
}

// recordExecute feeds one attempt through the lane's gobreaker instance
// and latches l.open once gobreaker's own ReadyToTrip decision (fed
// from its own Counts, tracking the same sequence of calls) flips its
// state to open.
func (l *lane) recordExecute(success bool) {
	_, _ = l.cb.Execute(func() (interface{}, error) {
		if !success {
			return nil, errAttemptFailed
		}
		return nil, nil
	})
	if l.cb.State() == gobreaker.StateOpen {
		l.open = true
	}
}

// DualBreaker composes independent syntax and logic lanes into one
// circuit-breaker state machine, per spec.md §4.5.
type DualBreaker struct {
	mu             sync.Mutex
	syntax         *lane
	logic          *lane
	state          State
	lastAttemptAt  time.Time
}

// New builds a DualBreaker with the given per-lane budgets.
func New(syntaxBudget, logicBudget Budget) *DualBreaker {
	return &DualBreaker{
		syntax: newLane("syntax", syntaxBudget),
		logic:  newLane("logic", logicBudget),
		state:  StateClosed,
	}
}

func (b *DualBreaker) laneFor(class Class) *lane {
	if class == ClassSyntax {
		return b.syntax
	}
	return b.logic
}

// CanAttempt implements spec.md §4.5's can_attempt(class): returns
// (allow, reason).
func (b *DualBreaker) CanAttempt(class Class) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StatePermanentlyOpen {
		return false, "breaker permanently open"
	}
	if class == ClassSyntax && b.state == StateSyntaxOpen {
		return false, "syntax lane open"
	}
	if class == ClassLogic && b.state == StateLogicOpen {
		return false, "logic lane open"
	}

	l := b.laneFor(class)
	if l.attempts >= l.budget.MaxAttempts {
		return false, "max attempts reached"
	}
	if l.errorRate() > l.budget.ErrorBudget {
		return false, "error budget exceeded"
	}
	return true, ""
}

// RecordAttempt implements spec.md §4.5's record_attempt(class,
// success): increments attempts, tracks errors on failure, and trips
// the relevant lane (or the whole breaker) once a budget is exceeded.
func (b *DualBreaker) RecordAttempt(class Class, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAttemptAt = time.Now()
	l := b.laneFor(class)
	l.attempts++
	if !success {
		l.errors++
	}
	l.recordExecute(success)

	if l.exhausted() {
		l.open = true
		if class == ClassSyntax {
			if b.state == StateClosed {
				b.state = StateSyntaxOpen
			}
		} else {
			if b.state == StateClosed {
				b.state = StateLogicOpen
			}
		}
	}

	if b.syntax.open && b.logic.open {
		b.state = StatePermanentlyOpen
	}
}

// Reset zeros all counters and returns the breaker to CLOSED, per
// spec.md §4.5.
func (b *DualBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syntax.attempts, b.syntax.errors, b.syntax.open = 0, 0, false
	b.logic.attempts, b.logic.errors, b.logic.open = 0, 0, false
	// gobreaker has no public reset; rebuild each lane's instance so its
	// generation/counts start clean, matching the explicit-reset-only
	// contract spec.md §4.5 requires (no wall-clock recovery).
	b.syntax.cb = newGobreaker("syntax", b.syntax.budget)
	b.logic.cb = newGobreaker("logic", b.logic.budget)
	b.state = StateClosed
	b.lastAttemptAt = time.Time{}
}

// Snapshot is the read-only state view from spec.md §3.
type Snapshot struct {
	State          State
	SyntaxAttempts int
	SyntaxErrors   int
	LogicAttempts  int
	LogicErrors    int
	LastAttemptAt  time.Time
}

// Snapshot returns a copy of the breaker's current counters under lock.
func (b *DualBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:          b.state,
		SyntaxAttempts: b.syntax.attempts,
		SyntaxErrors:   b.syntax.errors,
		LogicAttempts:  b.logic.attempts,
		LogicErrors:    b.logic.errors,
		LastAttemptAt:  b.lastAttemptAt,
	}
}
