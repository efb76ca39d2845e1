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
	"regexp"
	"slices"
	"unicode"
	"unicode/utf8"
)

// MaxInputSize is the most text, in bytes, that will be scanned
// for entities in one call. Longer input is truncated.
const MaxInputSize = 100 * 1024

// Match is one candidate occurrence of an entity in text.
// Start and End are byte offsets into the (possibly truncated)
// input, and Raw is the text between them.
type Match struct {
	Type  EntityType `json:"entity_type"`
	Raw   string     `json:"raw"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

type pattern struct {
	typ EntityType
	re  *regexp.Regexp

	// submatch to report instead of the whole match, if > 0;
	// used where a guard character precedes the entity
	group int

	// require that the match not be flanked by letters or digits
	bounded bool

	// if set, splits a match into the spans to report
	spans func(text string, start, end int) [][2]int
}

var patterns = []pattern{
	{typ: EntityEmail, re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{typ: EntityURL, re: regexp.MustCompile("(?i)\\bhttps?://[^\\s<>\"'`]+")},
	{typ: EntitySocialURL, re: regexp.MustCompile(`(?i)\bhttps?://(?:www\.|m\.)?(?:facebook\.com/[A-Za-z0-9.]+|(?:twitter|x)\.com/[A-Za-z0-9_]+|instagram\.com/[A-Za-z0-9_.]+|linkedin\.com/(?:in|company)/[A-Za-z0-9_\-]+|tiktok\.com/@[A-Za-z0-9_.]+|github\.com/[A-Za-z0-9\-]+|reddit\.com/(?:u|user)/[A-Za-z0-9_\-]+)/?`)},
	{typ: EntityDomain, re: regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,24}\b`)},
	{typ: EntityPhone, re: regexp.MustCompile(`(?:\+?\d{1,3}[\-.\s]?)?\(?\d{3}\)?[\-.\s]?\d{3}[\-.\s]?\d{4}`), bounded: true},
	{typ: EntityIPv4, re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{typ: EntityIPv6, re: regexp.MustCompile(`(?i)\b(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b|\b(?:[0-9a-f]{1,4}:){1,6}(?::[0-9a-f]{1,4}){1,6}\b`)},
	{typ: EntityUsername, re: regexp.MustCompile(`(?:^|[^\w.@/])(@[A-Za-z0-9_]{1,64})`), group: 1},
	{typ: EntityUsername, re: regexp.MustCompile(`(?:^|\s)(/?u/[A-Za-z0-9_\-]{1,30})\b`), group: 1},
	{typ: EntityHashtag, re: regexp.MustCompile(`(?:^|[^\w&/#])(#[A-Za-z][A-Za-z0-9_]{1,49})`), group: 1},
	{typ: EntityBitcoinAddress, re: regexp.MustCompile(`\b(?:[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{11,71})\b`)},
	{typ: EntityEthereumAddress, re: regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)},
	{typ: EntityCreditCard, re: regexp.MustCompile(`\d(?:[ \-]?\d){12,18}`), bounded: true},
	{typ: EntitySSN, re: regexp.MustCompile(`\d{3}-\d{2}-\d{4}`), bounded: true},
	{typ: EntityDate, re: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
	{typ: EntityDate, re: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)},
	{typ: EntityDate, re: regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`)},
	{typ: EntityDate, re: regexp.MustCompile(`\b\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}\b`)},
	{typ: EntityCoordinate, re: regexp.MustCompile(`-?\d{1,2}\.\d{3,}\s*,\s*-?\d{1,3}\.\d{3,}`), bounded: true},
	{typ: EntityMACAddress, re: regexp.MustCompile(`(?i)\b[0-9a-f]{2}(?:[:\-][0-9a-f]{2}){5}\b`)},
	{typ: EntityUUID, re: regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)},
	{typ: EntityHash, re: regexp.MustCompile(`(?i)\b[0-9a-f]{32,64}\b`)},
	{typ: EntityName, re: regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)+\b`), spans: nameSpans},
}

// Classify scans text for every kind of entity it can recognize and
// returns the candidate matches ordered by position. Each entity type
// is matched independently, so one span of text may produce matches
// of more than one type (a URL and its domain, for example). The one
// exception is domains inside email addresses, which are dropped.
//
// Classify is pure and safe for concurrent use.
func Classify(text string) []Match {
	text = truncateInput(text)

	var matches []Match
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.group > 0 {
				start, end = loc[2*p.group], loc[2*p.group+1]
			}
			if start < 0 || start == end {
				continue
			}
			if p.bounded && !isBounded(text, start, end) {
				continue
			}
			if p.spans == nil {
				matches = append(matches, Match{Type: p.typ, Raw: text[start:end], Start: start, End: end})
				continue
			}
			for _, sp := range p.spans(text, start, end) {
				matches = append(matches, Match{Type: p.typ, Raw: text[sp[0]:sp[1]], Start: sp[0], End: sp[1]})
			}
		}
	}

	matches = dropDomainsInEmails(matches)

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return slices.Index(EntityTypes, a.Type) - slices.Index(EntityTypes, b.Type)
	})

	return matches
}

// nameSpans splits a run of capitalized words into the parts that
// could be a person's name: the run is cut at greetings, courtesy
// titles, and other words that sit next to names, and only parts of
// two or three words are kept.
func nameSpans(text string, start, end int) [][2]int {
	var spans [][2]int
	var words [][2]int
	flush := func() {
		if len(words) >= 2 && len(words) <= 3 {
			spans = append(spans, [2]int{words[0][0], words[len(words)-1][1]})
		}
		words = words[:0]
	}
	for i := start; i < end; {
		if text[i] == ' ' || text[i] == '\t' {
			i++
			continue
		}
		j := i
		for j < end && text[j] != ' ' && text[j] != '\t' {
			j++
		}
		if isNameBreaker(text[i:j]) {
			flush()
		} else {
			words = append(words, [2]int{i, j})
		}
		i = j
	}
	flush()
	return spans
}

func dropDomainsInEmails(matches []Match) []Match {
	var emails []Match
	for _, m := range matches {
		if m.Type == EntityEmail {
			emails = append(emails, m)
		}
	}
	if len(emails) == 0 {
		return matches
	}
	return slices.DeleteFunc(matches, func(m Match) bool {
		if m.Type != EntityDomain {
			return false
		}
		for _, e := range emails {
			if m.Start < e.End && e.Start < m.End {
				return true
			}
		}
		return false
	})
}

// isBounded reports whether the span is not directly adjacent
// to a letter or digit on either side.
func isBounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// truncateInput cuts text to at most MaxInputSize bytes
// without splitting a multi-byte character.
func truncateInput(text string) string {
	if len(text) <= MaxInputSize {
		return text
	}
	cut := MaxInputSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
