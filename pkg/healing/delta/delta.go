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

// Package delta implements the error delta (C3): a pure, pairwise
// gradient between consecutive diagnostic packets.
package delta

import "github.com/codeheals/codeheal/pkg/healing/packet"

// Kind classifies the change between two consecutive diagnostic packets.
type Kind string

const (
	// KindFirst means there was no prior packet.
	KindFirst Kind = "first"
	// KindResolved means the prior packet had an error and the current one is clean.
	KindResolved Kind = "resolved"
	// KindSameError means the error code did not change.
	KindSameError Kind = "same_error"
	// KindMutated means the error code changed.
	KindMutated Kind = "mutated"
)

// Delta is the value type produced by Compute.
type Delta struct {
	Kind  Kind
	Moved bool

	PriorFile string
	PriorLine *int
	PriorCode string

	CurrentFile string
	CurrentLine *int
	CurrentCode string
}

// Compute classifies the change from prior to current. prior == nil means
// no prior attempt exists. current == nil or current.IsClean() means the
// error resolved.
func Compute(prior, current *packet.Diagnostic) Delta {
	if prior == nil {
		d := Delta{Kind: KindFirst}
		if current != nil {
			d.CurrentFile = current.File
			d.CurrentLine = current.Line
			d.CurrentCode = current.Code
		}
		return d
	}

	if current == nil || current.IsClean() {
		return Delta{
			Kind:      KindResolved,
			PriorFile: prior.File,
			PriorLine: prior.Line,
			PriorCode: prior.Code,
		}
	}

	base := Delta{
		PriorFile:   prior.File,
		PriorLine:   prior.Line,
		PriorCode:   prior.Code,
		CurrentFile: current.File,
		CurrentLine: current.Line,
		CurrentCode: current.Code,
	}

	if prior.Code != current.Code {
		base.Kind = KindMutated
		return base
	}

	base.Kind = KindSameError
	base.Moved = prior.File != current.File || !samePtrInt(prior.Line, current.Line)
	return base
}

func samePtrInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
