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
	"net/netip"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// Normalize returns the canonical form of a raw value of type t.
// Two raw strings that denote the same entity normalize to the
// same canonical value. Normalize never fails; use Validate to
// decide whether the result is acceptable.
func Normalize(raw string, t EntityType) string {
	v := strings.TrimSpace(raw)

	switch t {
	case EntityPhone, EntityCreditCard, EntitySSN:
		return digitsOnly(v)

	case EntityEmail:
		return strings.ToLower(v)

	case EntityUsername:
		v = strings.TrimPrefix(v, "/")
		v = strings.TrimPrefix(v, "u/")
		v = strings.TrimPrefix(v, "@")
		return strings.ToLower(v)

	case EntityDomain:
		v = strings.ToLower(v)
		if i := strings.Index(v, "://"); i >= 0 {
			v = v[i+3:]
		}
		if i := strings.IndexAny(v, "/?#"); i >= 0 {
			v = v[:i]
		}
		v = strings.TrimPrefix(v, "www.")
		return strings.TrimSuffix(v, ".")

	case EntityHashtag:
		return "#" + strings.ToLower(strings.TrimLeft(v, "#"))

	case EntityHash, EntityUUID, EntityEthereumAddress:
		return strings.ToLower(v)

	case EntityMACAddress:
		return strings.ReplaceAll(strings.ToLower(v), "-", ":")

	case EntityBitcoinAddress:
		if strings.HasPrefix(strings.ToLower(v), "bc1") {
			return strings.ToLower(v)
		}
		return v

	case EntityIPv6:
		if addr, err := netip.ParseAddr(v); err == nil {
			return addr.String()
		}
		return strings.ToLower(v)

	case EntityURL, EntitySocialURL:
		return strings.TrimRight(v, ".,;:!?)]}'\"")

	case EntityCoordinate:
		return strings.Join(strings.Fields(strings.ReplaceAll(v, ",", " , ")), "")

	case EntityDate:
		if ts, ok := parseDate(v); ok {
			return ts.Format(time.DateOnly)
		}
		return v

	case EntityName:
		fields := strings.Fields(v)
		for len(fields) > 0 && slices.Contains(nameLeadIns, fields[0]) {
			fields = fields[1:]
		}
		return strings.Join(fields, " ")
	}

	return strings.Join(strings.Fields(v), " ")
}

// Validate reports whether canonical, which should already be
// normalized, is an acceptable value of type t.
func Validate(canonical string, t EntityType) bool {
	v := canonical
	if v == "" {
		return false
	}

	switch t {
	case EntityPhone:
		return len(v) >= 7 && len(v) <= 15 && allDigits(v)

	case EntityEmail:
		return emailRE.MatchString(v)

	case EntityUsername:
		return usernameRE.MatchString(v)

	case EntityIPv4:
		return validIPv4(v)

	case EntityIPv6:
		addr, err := netip.ParseAddr(v)
		return err == nil && addr.Is6() && !addr.Is4In6()

	case EntityDomain:
		return validDomain(v)

	case EntityURL:
		_, ok := parseWebURL(v)
		return ok

	case EntitySocialURL:
		u, ok := parseWebURL(v)
		return ok && isSocialHost(u.Hostname())

	case EntityHashtag:
		tag := strings.TrimPrefix(v, "#")
		return hashtagRE.MatchString(tag) && !allDigits(strings.ReplaceAll(tag, "_", ""))

	case EntityHash:
		switch len(v) {
		case 32, 40, 64:
			return isHex(v)
		}
		return false

	case EntityCreditCard:
		return len(v) >= 13 && len(v) <= 19 && allDigits(v) && luhn(v)

	case EntitySSN:
		return validSSN(v)

	case EntityDate:
		_, err := time.Parse(time.DateOnly, v)
		return err == nil

	case EntityCoordinate:
		return validCoordinate(v)

	case EntityMACAddress:
		return macRE.MatchString(v)

	case EntityUUID:
		_, err := uuid.Parse(v)
		return err == nil && len(v) == 36

	case EntityEthereumAddress:
		return ethereumRE.MatchString(v)

	case EntityBitcoinAddress:
		return bitcoinLegacyRE.MatchString(v) || bitcoinBech32RE.MatchString(v)

	case EntityName:
		return validName(v)
	}

	return false
}

var (
	emailRE         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRE      = regexp.MustCompile(`^[a-z0-9_.\-]{3,30}$`)
	hashtagRE       = regexp.MustCompile(`^[a-z0-9_]{2,50}$`)
	macRE           = regexp.MustCompile(`^[0-9a-f]{2}(?::[0-9a-f]{2}){5}$`)
	ethereumRE      = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	bitcoinLegacyRE = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	bitcoinBech32RE = regexp.MustCompile(`^bc1[02-9ac-hj-np-z]{11,71}$`)
	nameTokenRE     = regexp.MustCompile(`^[A-Z][a-z]+$`)
)

func validIPv4(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 || !allDigits(part) {
			return false
		}
		if n, _ := strconv.Atoi(part); n > 255 {
			return false
		}
	}
	return true
}

func validDomain(v string) bool {
	if len(v) > 253 {
		return false
	}
	labels := strings.Split(v, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return false
			}
		}
	}
	suffix, icann := publicsuffix.PublicSuffix(v)
	return icann && suffix != v
}

func parseWebURL(v string) (*url.URL, bool) {
	u, err := url.Parse(v)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, u.Host != ""
}

var socialHosts = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "tiktok.com", "github.com", "reddit.com",
}

func isSocialHost(host string) bool {
	host = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(host), "www."), "m.")
	return slices.Contains(socialHosts, host)
}

func validSSN(v string) bool {
	if len(v) != 9 || !allDigits(v) {
		return false
	}
	area, group, serial := v[:3], v[3:5], v[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

func validCoordinate(v string) bool {
	latStr, lonStr, ok := strings.Cut(v, ",")
	if !ok {
		return false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// nameLeadIns are words that commonly precede a name in running
// text; they are stripped from the front of a name candidate.
var nameLeadIns = []string{
	"Contact", "Dear", "Hello", "Hi", "Hey", "Thanks", "Thank", "By", "From", "To", "Mr", "Mrs", "Ms", "Dr",
	"Please", "Call", "Ask", "Meet", "Welcome", "Regards", "Sincerely", "Cheers", "Email", "Message",
}

// nameTrailers are words that commonly follow a name.
var nameTrailers = []string{
	"Today", "Tomorrow", "Tonight", "Yesterday", "Now", "Soon", "Again", "Says", "Said", "Writes", "Wrote",
}

// isNameBreaker reports whether word cannot be part of a name
// that runs across it.
func isNameBreaker(word string) bool {
	return slices.Contains(nameLeadIns, word) || slices.Contains(nameTrailers, word)
}

// nameStopWords may not start a name.
var nameStopWords = []string{
	"The", "This", "That", "With", "From", "About", "More", "When", "Where", "What", "Which",
	"Sign", "Read", "Click", "Home", "Privacy", "Terms", "Posted", "Updated", "Follow", "Share",
	"Like", "Reply", "Log", "New", "North", "South", "East", "West", "United", "All", "Our", "Your",
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"January", "February", "March", "April", "May", "June", "July", "August",
	"September", "October", "November", "December",
}

var nameStopPhrases = []string{
	"Privacy Policy", "Terms Of Service", "Cookie Policy", "Contact Us", "About Us",
	"Read More", "Learn More", "Sign In", "Sign Up", "Log In", "Home Page", "Last Updated",
	"Los Angeles", "San Francisco", "Hong Kong", "Saudi Arabia", "Costa Rica",
}

func validName(v string) bool {
	tokens := strings.Split(v, " ")
	if len(tokens) < 2 || len(tokens) > 3 {
		return false
	}
	for _, tok := range tokens {
		if !nameTokenRE.MatchString(tok) {
			return false
		}
	}
	if slices.Contains(nameStopWords, tokens[0]) {
		return false
	}
	for _, phrase := range nameStopPhrases {
		if strings.EqualFold(v, phrase) || strings.HasPrefix(strings.ToLower(v), strings.ToLower(phrase)+" ") {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	time.DateOnly,
	"1/2/2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
}

// parseDate parses the date formats the classifier recognizes.
// Slash dates are read month-first.
func parseDate(v string) (time.Time, bool) {
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, ".", "")
	v = ordinalRE.ReplaceAllString(v, "$1")
	if strings.HasPrefix(v, "Sept ") {
		v = "Sep " + v[5:]
	}
	v = strings.Join(strings.Fields(v), " ")
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

var ordinalRE = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)

func luhn(digits string) bool {
	var sum int
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return false
		}
	}
	return true
}
