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

// Package orchestrator implements the per-attempt orchestrator (C10):
// it ties the rate limiter, envelope, strategy heuristic, confidence
// scorer, circuit breaker, cascade handler, sandbox, classifier, and
// knowledge base together into the single-attempt procedure spec.md
// §4.10 describes. The retry loop (C11) drives this across attempts.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codeheals/codeheal/internal/config"
	"github.com/codeheals/codeheal/pkg/healing/breaker"
	"github.com/codeheals/codeheal/pkg/healing/cascade"
	"github.com/codeheals/codeheal/pkg/healing/classifier"
	"github.com/codeheals/codeheal/pkg/healing/confidence"
	"github.com/codeheals/codeheal/pkg/healing/envelope"
	"github.com/codeheals/codeheal/pkg/healing/knowledge"
	"github.com/codeheals/codeheal/pkg/healing/metrics"
	"github.com/codeheals/codeheal/pkg/healing/ratelimit"
	"github.com/codeheals/codeheal/pkg/healing/sandbox"
)

// ErrorClass names the class of error under healing. It mirrors the
// class vocabularies of the breaker, confidence, and cascade packages
// so the orchestrator can translate one caller-facing value into each
// package's own lane/class type.
type ErrorClass string

const (
	ClassSyntax  ErrorClass = "syntax"
	ClassLogic   ErrorClass = "logic"
	ClassRuntime ErrorClass = "runtime"
	ClassOther   ErrorClass = "other"
)

func (c ErrorClass) breakerClass() breaker.Class {
	if c == ClassSyntax {
		return breaker.ClassSyntax
	}
	return breaker.ClassLogic
}

func (c ErrorClass) confidenceClass() confidence.Class {
	switch c {
	case ClassSyntax:
		return confidence.ClassSyntax
	case ClassLogic:
		return confidence.ClassLogic
	case ClassRuntime:
		return confidence.ClassRuntime
	default:
		return confidence.ClassOther
	}
}

func (c ErrorClass) cascadeClass() cascade.ErrorClass {
	switch c {
	case ClassSyntax:
		return cascade.ClassSyntax
	case ClassLogic:
		return cascade.ClassLogic
	case ClassRuntime:
		return cascade.ClassRuntime
	default:
		return cascade.ClassLogic
	}
}

// Decision is the orchestrator's final verdict for one attempt.
type Decision string

const (
	DecisionPromote     Decision = "PROMOTE"
	DecisionRetry       Decision = "RETRY"
	DecisionRollback    Decision = "ROLLBACK"
	DecisionStop        Decision = "STOP"
	DecisionHumanReview Decision = "HUMAN_REVIEW"
	DecisionRateLimited Decision = "RATE_LIMITED"
)

// Input is one incoming attempt, per spec.md §4.10's parameter tuple.
type Input struct {
	SessionID    string
	ErrorClass   ErrorClass
	Message      string
	PatchCode    string
	OriginalCode string
	Language     classifier.Language
	Logits       []float64
	Historical   *confidence.Historical
	// Difficulty, when set, overrides the taxonomy difficulty modifier
	// the confidence scorer applies — the orchestrator's analog of
	// reading metadata.rebanker_result.difficulty off a prior attempt.
	Difficulty *float64
	Metadata   map[string]any
	// PreviousErrors is the current_errors count from the prior
	// attempt's rebanker_raw, used to derive errors_resolved.
	PreviousErrors int
}

// Result is everything callers (chiefly the retry loop) need to act on
// one attempt: the decision, the envelope it produced, and the raw
// gate/score values for audit.
type Result struct {
	Decision      Decision
	Envelope      *envelope.Envelope
	Score         confidence.Score
	Sandbox       sandbox.Result
	Strategy      Strategy
	CanAttempt    bool
	StopCascade   bool
	CascadeReason string
	BreakerReason string
}

// Orchestrator composes the gating/execution packages into the
// per-attempt procedure. It is safe for concurrent use only insofar as
// its constituent parts are: the scorer is process-wide safe, while the
// breaker and cascade chain are expected to be session-scoped per
// spec.md §5 unless the caller deliberately shares them.
type Orchestrator struct {
	Policy     config.PolicyConfig
	Limiter    ratelimit.Limiter
	Breaker    *breaker.DualBreaker
	Cascade    *cascade.Chain
	Scorer     *confidence.Scorer
	Sandbox    sandbox.Sandbox
	Classifier *classifier.Classifier
	Knowledge  *knowledge.KnowledgeBase

	mu       sync.Mutex
	counters envelope.Counters
}

// New builds an Orchestrator from its constituent gates. Knowledge may
// be nil, in which case promotions are never persisted to a cold tier.
func New(policy config.PolicyConfig, limiter ratelimit.Limiter, br *breaker.DualBreaker, ch *cascade.Chain, sc *confidence.Scorer, sb sandbox.Sandbox, cl *classifier.Classifier, kb *knowledge.KnowledgeBase) *Orchestrator {
	return &Orchestrator{
		Policy:     policy,
		Limiter:    limiter,
		Breaker:    br,
		Cascade:    ch,
		Scorer:     sc,
		Sandbox:    sb,
		Classifier: cl,
		Knowledge:  kb,
	}
}

func (o *Orchestrator) confFloor(class ErrorClass) float64 {
	if class == ClassSyntax {
		return o.Policy.SyntaxConfFloor
	}
	return o.Policy.LogicConfFloor
}

func (o *Orchestrator) confForClass(score confidence.Score, class ErrorClass) float64 {
	if class == ClassSyntax {
		return score.Syntax
	}
	return score.Logic
}

// isRisky reports whether patchData's lowercased JSON blob contains any
// configured risky keyword, per spec.md §4.10 step 7.
func isRisky(patchData envelope.PatchData, keywords []string) bool {
	raw, err := json.Marshal(patchData)
	if err != nil {
		return false
	}
	blob := strings.ToLower(string(raw))
	for _, k := range keywords {
		if k != "" && strings.Contains(blob, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// ProcessError runs one attempt through the full C10 procedure and
// returns a decision with its supporting envelope.
func (o *Orchestrator) ProcessError(ctx context.Context, in Input) (*Result, error) {
	// 1. Rate limit.
	allowed, err := o.Limiter.Allow(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		metrics.DecisionsTotal.WithLabelValues(metrics.DecisionRateLimited).Inc()
		return &Result{Decision: DecisionRateLimited}, nil
	}

	metrics.AttemptsTotal.WithLabelValues(string(in.ErrorClass)).Inc()

	// 2. Wrap patch into a fresh envelope; merge caller metadata.
	patchData := envelope.PatchData{
		ErrorClass:   string(in.ErrorClass),
		Message:      in.Message,
		PatchedCode:  in.PatchCode,
		OriginalCode: in.OriginalCode,
		Language:     string(in.Language),
	}
	env := envelope.New(patchData)
	env.MergeExtraMetadata(in.Metadata)

	// 3. Validate envelope against schema; a failure here is a fatal
	// programmer error, not a retriable outcome.
	if err := envelope.Validate(env); err != nil {
		return nil, err
	}

	// 4. Select strategy via the human-heuristic mapping.
	strategy := SelectStrategy(in.Message)

	// Classify the incoming error up front, independent of whatever the
	// sandbox/re-bank pass later reports on the healed code. A PROMOTE
	// upserts a success pattern keyed by *this* classification's
	// (code, cluster_id) — the error the patch actually fixed — never
	// the post-heal rebank, which is clean on success and so carries no
	// code to key a pattern by.
	incoming := o.Classifier.Classify(in.Message, in.Language)

	// 5. Score confidence.
	score := o.Scorer.Score(in.Logits, in.ErrorClass.confidenceClass(), in.Historical, in.Difficulty)
	env.SetConfidenceComponents(score.Components)
	confFloor := o.confFloor(in.ErrorClass)

	// 6. Consult gates.
	canAttempt, breakerReason := o.Breaker.CanAttempt(in.ErrorClass.breakerClass())
	stopCascade, cascadeReason := o.Cascade.ShouldStop()

	result := &Result{
		Envelope:      env,
		Score:         score,
		Strategy:      strategy,
		CanAttempt:    canAttempt,
		StopCascade:   stopCascade,
		CascadeReason: cascadeReason,
		BreakerReason: breakerReason,
	}

	// 7. Risk gate.
	if isRisky(patchData, o.Policy.RiskyKeywords) && o.Policy.RequireHumanOnRisky {
		o.recordAttempt(env, "human_review", "Risk gate: human approval required", score)
		env.SetCounters(o.bumpCounters(in.ErrorClass, DecisionHumanReview))
		env.FlagForDeveloper("risky_patch", "Risky patch detected by policy; human approval required.")
		result.Decision = DecisionHumanReview
		metrics.DecisionsTotal.WithLabelValues(metrics.DecisionHumanReview).Inc()
		return result, nil
	}

	// 8. Proceed gate.
	if !canAttempt || stopCascade || o.confForClass(score, in.ErrorClass) < confFloor {
		o.recordAttempt(env, "stop", "Gate blocked", score)
		env.SetCounters(o.bumpCounters(in.ErrorClass, DecisionStop))
		result.Decision = DecisionStop
		metrics.DecisionsTotal.WithLabelValues(metrics.DecisionStop).Inc()
		return result, nil
	}

	// 9. Execute in sandbox.
	sbResult, err := o.Sandbox.ExecutePatch(ctx, sandbox.Request{
		PatchID:      env.PatchID,
		Language:     string(in.Language),
		PatchedCode:  in.PatchCode,
		OriginalCode: in.OriginalCode,
		Diff:         patchData.Diff,
	})
	if err != nil {
		return nil, err
	}
	result.Sandbox = sbResult
	env.SetResourceUsage(envelope.ResourceUsage{
		ExecutionTimeMS: sbResult.ExecutionTimeMS,
		MemoryUsedMB:    sbResult.MemoryUsedMB,
		CPUUsedPercent:  sbResult.CPUUsedPercent,
	})
	outcomeLabel := "pass"
	if !sbResult.Success {
		outcomeLabel = "fail"
	}
	metrics.SandboxDuration.WithLabelValues(outcomeLabel).Observe((time.Duration(sbResult.ExecutionTimeMS) * time.Millisecond).Seconds())

	// 10. Re-bank: prefer the sandbox's own error message (the runtime
	// path C1's stdin mode would have parsed); fall back to a static
	// pass over the patched code (C1's file mode) when the sandbox
	// failed without a message of its own.
	rebankBlob := sbResult.ErrorMessage
	if rebankBlob == "" && !sbResult.Success {
		rebankBlob = in.PatchCode
	}
	rebanked := o.Classifier.Classify(rebankBlob, in.Language)
	env.SetRebanker(rebanked)

	// 11. Strategy follow-up.
	note := ExecuteStrategy(strategy, in.Message)

	// 12. Trend update.
	currentErrors := 0
	if rebanked.Line != nil {
		currentErrors = 1
	}
	errorsResolved := max0(in.PreviousErrors - currentErrors)
	qualityScore := 0.1
	switch {
	case currentErrors == 0:
		qualityScore = 1.0
	case errorsResolved > 0:
		qualityScore = 0.5
	}
	improvementVelocity := 0.0
	if in.PreviousErrors > 0 {
		improvementVelocity = float64(errorsResolved) / float64(in.PreviousErrors)
	}
	env.SetTrendMetadata(envelope.TrendMetadata{
		PreviousErrors:      in.PreviousErrors,
		CurrentErrors:       currentErrors,
		ErrorsResolved:      errorsResolved,
		QualityScore:        qualityScore,
		ImprovementVelocity: improvementVelocity,
		StagnationRisk:      1 - qualityScore,
	})

	// 13. Bookkeeping.
	success := sbResult.Success
	o.Breaker.RecordAttempt(in.ErrorClass.breakerClass(), success)
	o.Scorer.RecordOutcome(score.Overall, success)
	if !success {
		o.Cascade.Append(in.ErrorClass.cascadeClass(), in.Message, score.Overall)
	}
	env.SetBreakerState(o.Breaker.Snapshot())
	env.SetCascadeDepth(o.Cascade.Depth())

	// 14. Decision.
	stillCanAttempt, _ := o.Breaker.CanAttempt(in.ErrorClass.breakerClass())
	switch {
	case success:
		result.Decision = DecisionPromote
	case stillCanAttempt:
		result.Decision = DecisionRetry
	default:
		result.Decision = DecisionRollback
	}

	provisional := "continue"
	if success {
		provisional = "promote"
	}
	env.AppendAttempt(envelope.Attempt{Timestamp: time.Now(), Decision: provisional, Note: note, Score: &score})
	env.AppendTimeline(provisional, fmt.Sprintf("breaker=%s cascade_depth=%d", env.BreakerState.State, env.CascadeDepth))
	env.SetCounters(o.bumpCounters(in.ErrorClass, result.Decision))

	if o.Knowledge != nil {
		o.Knowledge.RecordAttempt(knowledge.HotEntry{
			PatchID:    env.PatchID,
			ErrorClass: string(in.ErrorClass),
			Message:    in.Message,
			Decision:   string(result.Decision),
			Confidence: score.Overall,
			Breaker:    string(env.BreakerState.State),
			LastNote:   note,
			Timestamp:  time.Now(),
		})
	}

	if success {
		env.Promote()
		if o.Knowledge != nil {
			pattern, err := o.Knowledge.UpsertOnPromote(ctx, incoming.Code, incoming.ClusterID, note, patchData.Diff, score.Overall)
			if err != nil {
				return nil, err
			}
			if pattern != nil {
				metrics.KnowledgeBaseUpsertsTotal.Inc()
			}
		}
	}
	metrics.DecisionsTotal.WithLabelValues(string(result.Decision)).Inc()

	return result, nil
}

// recordAttempt appends a bookkeeping entry for an attempt that never
// reached the sandbox (risk gate or proceed gate rejected it first).
func (o *Orchestrator) recordAttempt(env *envelope.Envelope, label, note string, score confidence.Score) {
	env.AppendAttempt(envelope.Attempt{Timestamp: time.Now(), Decision: label, Note: note, Score: &score})
	env.AppendTimeline(label, note)
}

// bumpCounters increments the orchestrator's session-scoped attempt
// counters and returns a snapshot for the envelope.
func (o *Orchestrator) bumpCounters(class ErrorClass, decision Decision) envelope.Counters {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.TotalAttempts++
	if class == ClassSyntax {
		o.counters.SyntaxAttempts++
	} else {
		o.counters.LogicAttempts++
	}
	switch decision {
	case DecisionPromote:
		o.counters.Promotions++
	case DecisionRetry:
		o.counters.Retries++
	case DecisionRollback:
		o.counters.Rollbacks++
	}
	return o.counters
}
