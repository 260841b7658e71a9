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

package classifier

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/codeheals/codeheal/pkg/healing/packet"
)

// ToolRunner spawns the language-appropriate external syntax checker and
// returns its raw stderr output. Implementations are injected so tests
// can stub the subprocess boundary.
type ToolRunner func(ctx context.Context, lang Language, path string) (stderr string, err error)

// ExecToolRunner shells out to a per-language checker binary named
// "<lang>-check" found on PATH, matching the external diagnostic tool
// protocol in spec.md §6 (run-and-parse mode over a file argument).
func ExecToolRunner(ctx context.Context, lang Language, path string) (string, error) {
	cmd := exec.CommandContext(ctx, string(lang)+"-check", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// ClassifyFile runs the subprocess classifier over a file, honoring the
// 10-second wall-clock ceiling from spec.md §4.1/§5, and parses its
// stderr through the same regex pipeline as Classify.
func (c *Classifier) ClassifyFile(ctx context.Context, path string, lang Language, run ToolRunner) *packet.Diagnostic {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return toolingFailurePacket(lang, "FILE_NOT_FOUND", path)
		}
		return toolingFailurePacket(lang, "CHECK_FAILED", err.Error())
	}

	if run == nil {
		run = ExecToolRunner
	}

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stderr, err := run(callCtx, lang, path)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return toolingFailurePacket(lang, "TIMEOUT", path)
	}
	if err != nil {
		if stderr == "" {
			return toolingFailurePacket(lang, "CHECK_FAILED", err.Error())
		}
		// Non-zero exit with output: the tool reported a real error,
		// classify it like any other raw blob.
		return c.Classify(stderr, lang)
	}
	if stderr == "" {
		return packet.Clean()
	}
	return c.Classify(stderr, lang)
}

func toolingFailurePacket(lang Language, suffix, detail string) *packet.Diagnostic {
	code := langPrefix(lang) + "_" + suffix
	d := &packet.Diagnostic{
		Message:    detail,
		Code:       code,
		Severity:   packet.Severity{Label: "TOOLING_FAILURE", Score: 0.8},
		Difficulty: 0.1,
		Confidence: 0.9,
	}
	d.ClusterID = d.Code
	d.ID = computeID(nil, d.Code, map[string]string{"detail": detail})
	return d
}

func langPrefix(lang Language) string {
	switch lang {
	case Python:
		return "PY"
	case JavaScript:
		return "JS"
	case TypeScript:
		return "TS"
	case PHP:
		return "PHP"
	default:
		return "TOOL"
	}
}

// IsToolingFailure reports whether d represents a classifier-tooling
// failure (timeout, spawn failure, missing file) rather than user-code
// failure. The orchestrator does not call it: it records every failed
// sandbox run against the lane's error budget, tooling failures included.
func IsToolingFailure(d *packet.Diagnostic) bool {
	if d == nil {
		return false
	}
	return d.Severity.Label == "TOOLING_FAILURE"
}
