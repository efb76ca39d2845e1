/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package hivemind

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// DefaultContextRadius is how many characters on each side of a
// match are kept as its context, unless configured otherwise.
const DefaultContextRadius = 24

// ExtractOptions configures extraction.
type ExtractOptions struct {
	// Characters of surrounding text to keep on each side of
	// a match. If 0, DefaultContextRadius is used; if negative,
	// no context is kept.
	ContextRadius int `json:"context_radius,omitempty"`

	// If set, only these entity types are extracted.
	Types []EntityType `json:"types,omitempty"`
}

func (opts ExtractOptions) radius() int {
	if opts.ContextRadius == 0 {
		return DefaultContextRadius
	}
	return opts.ContextRadius
}

func (opts ExtractOptions) wants(t EntityType) bool {
	if len(opts.Types) == 0 {
		return true
	}
	for _, want := range opts.Types {
		if want == t {
			return true
		}
	}
	return false
}

// Candidate is a classified, normalized, and validated entity
// occurrence that has not yet been stored.
type Candidate struct {
	Type    EntityType `json:"entity_type"`
	Value   string     `json:"value"`
	Raw     string     `json:"raw"`
	Context string     `json:"context,omitempty"`
	Start   int        `json:"start"`
}

// Extract finds the distinct valid entities in text. Matches that
// fail validation are dropped, and each (type, value) pair appears
// at most once, at its first occurrence.
func Extract(text string, opts ExtractOptions) []Candidate {
	text = truncateInput(text)

	type key struct {
		t EntityType
		v string
	}
	seen := make(map[key]struct{})

	var out []Candidate
	for _, m := range Classify(text) {
		if !opts.wants(m.Type) {
			continue
		}
		value := Normalize(m.Raw, m.Type)
		if !Validate(value, m.Type) {
			continue
		}
		k := key{m.Type, value}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		c := Candidate{Type: m.Type, Value: value, Raw: m.Raw, Start: m.Start}
		if r := opts.radius(); r > 0 {
			c.Context = ExtractContext(text, m.Start, m.End, r)
		}
		out = append(out, c)
	}
	return out
}

// ExtractBatch runs Extract on each text concurrently. The result
// at index i belongs to texts[i].
func ExtractBatch(ctx context.Context, texts []string, opts ExtractOptions) ([][]Candidate, error) {
	results := make([][]Candidate, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(extractWorkers)
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Extract(text, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

const extractWorkers = 8

// ExtractContext returns the text around text[start:end], up to
// radius characters on each side, with runs of whitespace collapsed.
// An ellipsis marks each side where text was cut off.
func ExtractContext(text string, start, end, radius int) string {
	if start < 0 || end > len(text) || start > end {
		return ""
	}

	from := start
	for i := 0; i < radius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < radius && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	snippet := strings.Join(strings.Fields(text[from:to]), " ")
	if from > 0 {
		snippet = "..." + snippet
	}
	if to < len(text) {
		snippet += "..."
	}
	return snippet
}
