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

// Package retry implements the retry loop with truth-flow (C11): the
// driver that repeatedly invokes the per-attempt orchestrator (C10),
// carries the immutable diagnostic packet across attempts without ever
// letting the LLM touch it, and backs off between attempts.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/codeheals/codeheal/pkg/healing/chat"
	"github.com/codeheals/codeheal/pkg/healing/delta"
	"github.com/codeheals/codeheal/pkg/healing/envelope"
	"github.com/codeheals/codeheal/pkg/healing/orchestrator"
	"github.com/codeheals/codeheal/pkg/healing/packet"
)

var tracer = otel.Tracer("github.com/codeheals/codeheal/pkg/healing/retry")

// SystemPrompt is the single fixed string every session's chat history
// is seeded with, per spec.md §4.11 step 1.
const SystemPrompt = "You are repairing a patch under automated healing. " +
	"You will be shown the current candidate code and, on later attempts, " +
	"the immutable diagnostic packet from the previous attempt. That " +
	"packet is ground truth: never alter it, only propose new code."

// Options configures one retry-loop run.
type Options struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	SessionID   string
}

// DefaultOptions mirrors the loop's conservative defaults: five
// attempts, a 200ms floor and 8s ceiling on backoff.
func DefaultOptions(sessionID string) Options {
	return Options{
		MaxAttempts: 5,
		MinBackoff:  200 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
		SessionID:   sessionID,
	}
}

// ImmutabilityViolationError reports that an envelope's rebanker_raw no
// longer hashes to its recorded rebanker_hash — a fatal breach of the
// truth-flow contract, never a retriable outcome.
type ImmutabilityViolationError struct {
	PatchID string
}

func (e *ImmutabilityViolationError) Error() string {
	return fmt.Sprintf("retry: immutability violation on patch %s: rebanker_raw no longer matches rebanker_hash", e.PatchID)
}

// backoff computes min(max, min*2^(k-1)) jittered uniformly in
// [0.8, 1.2], the same bit-shift-capped exponential shape as the
// teacher's workflow engine backoff, adapted to the session's
// configured floor/ceiling instead of a fixed retry-policy struct.
func backoff(k int, minBackoff, maxBackoff time.Duration) time.Duration {
	shift := k - 1
	if shift > 30 {
		shift = 30
	}
	wait := minBackoff * time.Duration(int64(1)<<uint(shift))
	if wait > maxBackoff || wait <= 0 {
		wait = maxBackoff
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(wait) * jitter)
}

// hint renders the synthesized one-line nudge spec.md §4.11 step a
// names: "Previous patch failed at line L, column C: message".
func hint(prev *packet.Diagnostic) string {
	if prev == nil || prev.IsClean() {
		return ""
	}
	line, col := "?", "?"
	if prev.Line != nil {
		line = fmt.Sprintf("%d", *prev.Line)
	}
	if prev.Column != nil {
		col = fmt.Sprintf("%d", *prev.Column)
	}
	return fmt.Sprintf("Previous patch failed at line %s, column %s: %s", line, col, prev.Message)
}

// userMessage renders the structured user-turn content for attempt k.
// On k==1 it carries only the candidate and its error context; on
// later attempts it additionally carries the previous immutable packet
// (never rebanker_interpreted, which is LLM-authored and not ground
// truth) plus the synthesized hint.
func userMessage(k int, in orchestrator.Input, prev *packet.Diagnostic) string {
	msg := fmt.Sprintf("Attempt %d. Language: %s. Error class: %s. Error message: %s.\nCandidate code:\n%s",
		k, in.Language, in.ErrorClass, in.Message, in.PatchCode)
	if k > 1 && prev != nil && !prev.IsClean() {
		line, col := "?", "?"
		if prev.Line != nil {
			line = fmt.Sprintf("%d", *prev.Line)
		}
		if prev.Column != nil {
			col = fmt.Sprintf("%d", *prev.Column)
		}
		msg += fmt.Sprintf("\nPrevious packet: file=%s line=%s column=%s code=%s severity=%s message=%s\nHint: %s",
			prev.File, line, col, prev.Code, prev.Severity.Label, prev.Message, hint(prev))
	}
	return msg
}

// AttemptWithBackoff drives the per-attempt orchestrator across up to
// opts.MaxAttempts tries, carrying the truth-flow packet between them
// and narrating every turn into history. It returns the last attempt's
// result — whatever decision ended the loop, or the final attempt's
// result if the loop ran out of attempts without reaching a terminal
// decision.
func AttemptWithBackoff(ctx context.Context, orch *orchestrator.Orchestrator, history *chat.History, in orchestrator.Input, opts Options) (*orchestrator.Result, error) {
	if err := history.Append(chat.RoleSystem, SystemPrompt, chat.Metadata{Phase: "seed"}); err != nil {
		return nil, err
	}

	var (
		result *orchestrator.Result
		prev   *packet.Diagnostic
	)
	candidate := in

	for k := 1; k <= opts.MaxAttempts; k++ {
		if err := ctx.Err(); err != nil {
			return stoppedResult(result), nil
		}

		attemptCtx, span := tracer.Start(ctx, "retry.attempt")
		span.SetAttributes(
			attribute.Int("attempt", k),
			attribute.Int("k", k),
			attribute.String("session_id", opts.SessionID),
		)

		phase := fmt.Sprintf("attempt_%d", k)
		if err := history.Append(chat.RoleUser, userMessage(k, candidate, prev), chat.Metadata{Phase: phase}); err != nil {
			span.End()
			return nil, err
		}

		res, err := orch.ProcessError(attemptCtx, candidate)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		}
		result = res
		span.SetAttributes(attribute.String("decision", string(res.Decision)))

		// RATE_LIMITED, HUMAN_REVIEW, and STOP all short-circuit C10
		// before the sandbox/re-bank steps ever run, so there is no
		// rebanker_raw to verify or diff against. Only PROMOTE, RETRY,
		// and ROLLBACK carry truth-flow data.
		if res.Decision == orchestrator.DecisionRateLimited || res.Decision == orchestrator.DecisionHumanReview || res.Decision == orchestrator.DecisionStop {
			span.End()
			if err := history.Append(chat.RoleAI, fmt.Sprintf("Final decision: %s", res.Decision), chat.Metadata{Phase: phase}); err != nil {
				return nil, err
			}
			return result, nil
		}

		env := res.Envelope
		if !packet.Verify(env.Metadata.RebankerRaw, env.Metadata.RebankerHash) {
			violation := &ImmutabilityViolationError{PatchID: env.PatchID}
			_ = history.Append(chat.RoleTool, violation.Error(), chat.Metadata{Phase: phase})
			span.RecordError(violation)
			span.SetStatus(codes.Error, violation.Error())
			span.End()
			return nil, violation
		}

		d := delta.Compute(prev, env.Metadata.RebankerRaw)
		env.SetDeltaFromPrev(string(d.Kind))

		if err := history.Append(chat.RoleTool, toolNote(env, d), chat.Metadata{Phase: phase}); err != nil {
			span.End()
			return nil, err
		}
		span.End()

		switch res.Decision {
		case orchestrator.DecisionPromote, orchestrator.DecisionRollback:
			if err := history.Append(chat.RoleAI, fmt.Sprintf("Final decision: %s", res.Decision), chat.Metadata{Phase: phase}); err != nil {
				return nil, err
			}
			return result, nil
		}

		// RETRY: back off, nudge the candidate, and carry the packet
		// forward as next iteration's ground truth.
		select {
		case <-ctx.Done():
			return stoppedResult(result), nil
		case <-time.After(backoff(k, opts.MinBackoff, opts.MaxBackoff)):
		}

		candidate.PatchCode = localTweak(candidate.PatchCode)
		candidate.PreviousErrors = env.TrendMetadata.CurrentErrors
		prev = env.Metadata.RebankerRaw
	}

	return result, nil
}

// stoppedResult coerces a cancelled loop's last result into the STOP
// decision spec.md §4.11's cancellation clause requires, leaving the
// envelope itself untouched (it is append-only and already valid).
func stoppedResult(last *orchestrator.Result) *orchestrator.Result {
	if last == nil {
		return &orchestrator.Result{Decision: orchestrator.DecisionStop}
	}
	stopped := *last
	stopped.Decision = orchestrator.DecisionStop
	return &stopped
}

func toolNote(env *envelope.Envelope, d delta.Delta) string {
	return fmt.Sprintf("envelope=%s delta=%s moved=%t", env.PatchID, d.Kind, d.Moved)
}
