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

// Package classifier implements the diagnostic classifier (C1): it turns
// raw compiler/runtime output into a structured, taxonomy-driven
// diagnostic packet.
package classifier

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/codeheals/codeheal/pkg/healing/packet"
	"github.com/codeheals/codeheal/pkg/healing/taxonomy"
)

// Language names the host language of a raw diagnostic blob.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	PHP        Language = "php"
)

// Classifier turns raw tool output into diagnostic packets using a
// compiled Taxonomy.
type Classifier struct {
	tx *taxonomy.Taxonomy
}

// New builds a Classifier over a compiled taxonomy.
func New(tx *taxonomy.Taxonomy) *Classifier {
	return &Classifier{tx: tx}
}

var fileGuessRe = regexp.MustCompile(`(\w[./\\-]*\.(py|ts|js|php|json|sql))`)

var tracebackRe = regexp.MustCompile(`(?i)File "(?P<file>[^"]+)", line (?P<line>\d+)`)

// Classify runs the taxonomy pipeline over a raw diagnostic blob for the
// given language, returning a structured packet or the distinguished
// clean packet if blob is empty.
func (c *Classifier) Classify(blob string, lang Language) *packet.Diagnostic {
	if strings.TrimSpace(blob) == "" {
		return packet.Clean()
	}

	detectors := c.tx.Detectors(string(lang))
	lines := strings.Split(blob, "\n")

	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		for _, match := range detectors {
			for _, re := range match.Detector.Regexes() {
				sub := re.FindStringSubmatch(line)
				if sub == nil {
					continue
				}
				captures := namedCaptures(re, sub)
				return buildPacket(match.Category, line, captures)
			}
		}
	}

	if loc := tracebackRe.FindStringSubmatch(blob); loc != nil {
		captures := namedCaptures(tracebackRe, loc)
		return runtimePacket(lang, captures, lastNonEmptyLine(blob))
	}

	return unparsedPacket(lang, blob)
}

func namedCaptures(re *regexp.Regexp, sub []string) map[string]string {
	captures := map[string]string{}
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(sub) {
			continue
		}
		if sub[i] != "" {
			captures[name] = sub[i]
		}
	}
	return captures
}

func buildPacket(cat *taxonomy.Category, line string, captures map[string]string) *packet.Diagnostic {
	file := captures["file"]
	if file == "" {
		if m := fileGuessRe.FindString(line); m != "" {
			file = m
		}
	}

	var linePtr, colPtr *int
	if v, ok := parseIntField(captures, "line"); ok {
		linePtr = &v
	}
	if v, ok := parseIntField(captures, "column", "col"); ok {
		colPtr = &v
	}

	clusterID := cat.Code
	if cat.ClusterKey != "" {
		if v, ok := captures[cat.ClusterKey]; ok {
			clusterID = fmt.Sprintf("%s:%s", cat.Code, v)
		}
	}

	d := &packet.Diagnostic{
		File:       file,
		Line:       linePtr,
		Column:     colPtr,
		Message:    line,
		Code:       cat.Code,
		Severity:   packet.Severity{Label: cat.Severity.Label, Score: cat.Severity.Score},
		Difficulty: cat.Difficulty,
		ClusterID:  clusterID,
		Hint:       cat.Hint,
		Confidence: cat.Confidence,
	}
	d.ID = computeID(d.Line, d.Code, captures)
	return d
}

func parseIntField(captures map[string]string, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := captures[k]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// computeID is the packet-local id: sha1(canonical({line, code,
// captures}))[:12], distinct from the packet's SHA-256 ground-truth hash.
func computeID(line *int, code string, captures map[string]string) string {
	payload := struct {
		Line     *int              `json:"line"`
		Code     string            `json:"code"`
		Captures map[string]string `json:"captures"`
	}{Line: line, Code: code, Captures: captures}

	canon, err := packet.CanonicalJSON(payload)
	if err != nil {
		canon, _ = json.Marshal(payload)
	}
	sum := sha1.Sum(canon)
	return fmt.Sprintf("%x", sum)[:12]
}

func runtimeCode(lang Language) string {
	switch lang {
	case Python:
		return "PY_RUNTIME"
	case JavaScript, TypeScript:
		return "JS_RUNTIME"
	case PHP:
		return "PHP_RUNTIME"
	default:
		return "RUNTIME"
	}
}

func runtimePacket(lang Language, captures map[string]string, lastLine string) *packet.Diagnostic {
	var linePtr *int
	if v, ok := parseIntField(captures, "line"); ok {
		linePtr = &v
	}
	d := &packet.Diagnostic{
		File:       captures["file"],
		Line:       linePtr,
		Message:    lastLine,
		Code:       runtimeCode(lang),
		Severity:   packet.Severity{Label: "FATAL_RUNTIME", Score: 0.95},
		Difficulty: 0.5,
		Confidence: 0.6,
	}
	d.ClusterID = d.Code
	d.ID = computeID(d.Line, d.Code, captures)
	return d
}

func unparsedCode(lang Language) string {
	switch lang {
	case Python:
		return "PY_UNPARSED"
	case JavaScript, TypeScript:
		return "JS_UNPARSED"
	case PHP:
		return "PHP_UNPARSED"
	default:
		return "UNPARSED"
	}
}

func unparsedPacket(lang Language, blob string) *packet.Diagnostic {
	prefix := blob
	if len(prefix) > 200 {
		prefix = prefix[:200]
	}
	d := &packet.Diagnostic{
		Message:    prefix,
		Code:       unparsedCode(lang),
		Severity:   packet.Severity{Label: "UNKNOWN", Score: 0.5},
		Difficulty: 0.5,
		Confidence: 0.3,
	}
	d.ClusterID = d.Code
	d.ID = computeID(nil, d.Code, nil)
	return d
}

func lastNonEmptyLine(blob string) string {
	lines := strings.Split(blob, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
