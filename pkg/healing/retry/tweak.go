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

package retry

import "strings"

var blockKeywords = []string{"if ", "elif ", "else", "for ", "while ", "def ", "class ", "try", "except", "finally", "with "}

// localTweak applies the conservative, local-only nudge spec.md §4.11
// step g allows between retries: balance obviously unmatched brackets
// and add an obviously missing trailing colon on a block-opening line.
// It never rewrites logic; it is a last-resort syntactic nudge while
// the loop waits for the next model turn to actually fix the patch.
func localTweak(code string) string {
	return addMissingColons(balanceBrackets(code))
}

func balanceBrackets(code string) string {
	pairs := map[rune]rune{'(': ')', '[': ']', '{': '}'}
	var stack []rune
	for _, r := range code {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) > 0 && pairs[stack[len(stack)-1]] == r {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return code
	}
	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		closers.WriteRune(pairs[stack[i]])
	}
	return code + closers.String()
}

func addMissingColons(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" || strings.HasSuffix(trimmed, ":") {
			continue
		}
		stripped := strings.TrimLeft(trimmed, " \t")
		for _, kw := range blockKeywords {
			if strings.HasPrefix(stripped, kw) && !strings.Contains(stripped, "#") {
				lines[i] = trimmed + ":"
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
