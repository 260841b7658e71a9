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

// Package taxonomy loads the external, versioned YAML file that drives
// the diagnostic classifier: families of categories of detectors, each
// carrying a regex, applicable languages, and severity/difficulty/
// confidence/cluster defaults (spec.md §6).
package taxonomy

import (
	"embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

//go:embed default.yaml
var defaultFS embed.FS

// Defaults holds the file's top-level severity/difficulty/confidence
// values. Load parses them, but nothing applies them: the classifier
// uses each category's own severity, difficulty and confidence.
type Defaults struct {
	Severity   Severity `yaml:"severity"`
	Difficulty float64  `yaml:"difficulty"`
	Confidence float64  `yaml:"confidence"`
}

// Detector matches one or more regexes against a line of tool output.
type Detector struct {
	Regex   []string `yaml:"regex"`
	Langs   []string `yaml:"langs"`
	Capture []string `yaml:"capture"`

	compiled []*regexp.Regexp
}

// Category groups detectors that share a code, severity, and defaults.
type Category struct {
	Code       string   `yaml:"code"`
	Severity   Severity `yaml:"severity"`
	Difficulty float64  `yaml:"difficulty"`
	Hint       string   `yaml:"hint"`
	Confidence float64  `yaml:"confidence"`
	ClusterKey string   `yaml:"cluster_key"`
	Detectors  []Detector `yaml:"detectors"`
}

// Severity is the taxonomy's {label, score} pair for a category.
type Severity struct {
	Label string  `yaml:"label"`
	Score float64 `yaml:"score"`
}

// Family is a named grouping of categories (e.g. "syntax", "runtime").
type Family struct {
	Name       string     `yaml:"name"`
	Categories []Category `yaml:"categories"`
}

// Taxonomy is the parsed, compiled taxonomy document.
type Taxonomy struct {
	Defaults Defaults `yaml:"defaults"`
	Families []Family `yaml:"families"`
}

// Load parses and compiles a taxonomy document from raw YAML bytes.
func Load(raw []byte) (*Taxonomy, error) {
	var tx Taxonomy
	if err := yaml.Unmarshal(raw, &tx); err != nil {
		return nil, cherrors.ParseError("taxonomy", "YAML", err)
	}
	for fi := range tx.Families {
		for ci := range tx.Families[fi].Categories {
			cat := &tx.Families[fi].Categories[ci]
			for di := range cat.Detectors {
				det := &cat.Detectors[di]
				det.compiled = make([]*regexp.Regexp, 0, len(det.Regex))
				for _, pattern := range det.Regex {
					re, err := regexp.Compile(pattern)
					if err != nil {
						return nil, fmt.Errorf("taxonomy: family %q category %q: compile regex %q: %w",
							tx.Families[fi].Name, cat.Code, pattern, err)
					}
					det.compiled = append(det.compiled, re)
				}
			}
		}
	}
	return &tx, nil
}

// LoadFile reads a taxonomy document from disk.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := loadBytes(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Default returns the embedded default taxonomy, used when no external
// taxonomy file is configured.
func Default() (*Taxonomy, error) {
	raw, err := defaultFS.ReadFile("default.yaml")
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read embedded default: %w", err)
	}
	return Load(raw)
}

// Detectors returns every detector across every family/category that
// supports lang, paired with its owning category.
func (t *Taxonomy) Detectors(lang string) []DetectorMatch {
	var out []DetectorMatch
	for fi := range t.Families {
		for ci := range t.Families[fi].Categories {
			cat := &t.Families[fi].Categories[ci]
			for di := range cat.Detectors {
				det := &cat.Detectors[di]
				if !supportsLang(det.Langs, lang) {
					continue
				}
				out = append(out, DetectorMatch{Category: cat, Detector: det})
			}
		}
	}
	return out
}

// DetectorMatch pairs a compiled detector with its owning category.
type DetectorMatch struct {
	Category *Category
	Detector *Detector
}

// Regexes exposes the detector's compiled patterns in declaration order.
func (d *Detector) Regexes() []*regexp.Regexp {
	return d.compiled
}

func supportsLang(langs []string, lang string) bool {
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		if l == lang || l == "*" {
			return true
		}
	}
	return false
}
