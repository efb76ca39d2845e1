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
	"fmt"
	"strconv"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is assumed for numbers without a country code.
const DefaultPhoneRegion = "US"

// PhoneIntel describes a phone number and the forms it is
// likely to be written in elsewhere.
type PhoneIntel struct {
	Input         string        `json:"input"`
	Valid         bool          `json:"valid"`
	Region        string        `json:"region,omitempty"`
	CountryCode   int           `json:"country_code"`
	NumberType    string        `json:"number_type"`
	E164          string        `json:"e164"`
	International string        `json:"international"`
	National      string        `json:"national"`
	SearchFormats []PhoneFormat `json:"search_formats"`

	// all search formats quoted and OR'd together
	SearchQuery string `json:"search_query"`
}

// PhoneFormat is one way of writing a phone number.
type PhoneFormat struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AnalyzePhone parses number, assuming region (an ISO 3166 code)
// when the number has no country code.
func AnalyzePhone(number, region string) (PhoneIntel, error) {
	if region == "" {
		region = DefaultPhoneRegion
	}
	region = strings.ToUpper(region)
	if region == "UK" {
		region = "GB"
	}

	ph, err := libphonenumber.Parse(number, region)
	if err != nil {
		return PhoneIntel{}, fmt.Errorf("%w: parsing phone number '%s': %v", ErrInvalid, number, err)
	}

	info := PhoneIntel{
		Input:         number,
		Valid:         libphonenumber.IsValidNumber(ph),
		Region:        libphonenumber.GetRegionCodeForNumber(ph),
		CountryCode:   int(ph.GetCountryCode()),
		NumberType:    phoneNumberTypeName(libphonenumber.GetNumberType(ph)),
		E164:          libphonenumber.Format(ph, libphonenumber.E164),
		International: libphonenumber.Format(ph, libphonenumber.INTERNATIONAL),
		National:      libphonenumber.Format(ph, libphonenumber.NATIONAL),
	}
	info.SearchFormats = phoneSearchFormats(strconv.Itoa(info.CountryCode), libphonenumber.GetNationalSignificantNumber(ph))

	quoted := make([]string, len(info.SearchFormats))
	for i, f := range info.SearchFormats {
		quoted[i] = strconv.Quote(f.Value)
	}
	info.SearchQuery = strings.Join(quoted, " OR ")

	return info, nil
}

// phoneSearchFormats returns the common ways of writing the
// national number local with country calling code cc.
func phoneSearchFormats(cc, local string) []PhoneFormat {
	formats := []PhoneFormat{
		{"Raw Digits", local},
		{"International (no separator)", cc + local},
		{"E.164", "+" + cc + local},
	}
	if len(local) == 10 {
		a, b, c := local[:3], local[3:6], local[6:]
		formats = append(formats,
			PhoneFormat{"Spaced", a + " " + b + " " + c},
			PhoneFormat{"Dashed", a + "-" + b + "-" + c},
			PhoneFormat{"Parenthesized", "(" + a + ") " + b + "-" + c},
			PhoneFormat{"Dotted", a + "." + b + "." + c},
		)
	}
	return append(formats,
		PhoneFormat{"International Spaced", "+" + cc + " " + local},
		PhoneFormat{"Zero-Prefixed", "0" + local},
		PhoneFormat{"Double-Zero International", "00" + cc + local},
	)
}

func phoneNumberTypeName(t libphonenumber.PhoneNumberType) string {
	switch t {
	case libphonenumber.FIXED_LINE:
		return "fixed_line"
	case libphonenumber.MOBILE:
		return "mobile"
	case libphonenumber.FIXED_LINE_OR_MOBILE:
		return "fixed_line_or_mobile"
	case libphonenumber.TOLL_FREE:
		return "toll_free"
	case libphonenumber.PREMIUM_RATE:
		return "premium_rate"
	case libphonenumber.SHARED_COST:
		return "shared_cost"
	case libphonenumber.VOIP:
		return "voip"
	case libphonenumber.PERSONAL_NUMBER:
		return "personal_number"
	case libphonenumber.PAGER:
		return "pager"
	case libphonenumber.UAN:
		return "uan"
	case libphonenumber.VOICEMAIL:
		return "voicemail"
	}
	return "unknown"
}
