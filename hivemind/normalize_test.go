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
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	for i, tc := range []struct {
		typ    EntityType
		raw    string
		expect string
	}{
		{EntityPhone, "+1 (202) 555-1234", "12025551234"},
		{EntityPhone, "202.555.1234", "2025551234"},
		{EntityEmail, "John@Acme.COM", "john@acme.com"},
		{EntityUsername, "@JohnDoe", "johndoe"},
		{EntityUsername, "/u/Spez", "spez"},
		{EntityUsername, "u/Spez", "spez"},
		{EntityDomain, "https://www.Example.com/path", "example.com"},
		{EntityDomain, "example.com.", "example.com"},
		{EntityHashtag, "#OSINT", "#osint"},
		{EntityHash, "D41D8CD98F00B204E9800998ECF8427E", "d41d8cd98f00b204e9800998ecf8427e"},
		{EntityMACAddress, "00-1A-2B-3C-4D-5E", "00:1a:2b:3c:4d:5e"},
		{EntityIPv6, "2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1"},
		{EntityURL, "https://example.com/x).", "https://example.com/x"},
		{EntityCoordinate, "40.7128, -74.0060", "40.7128,-74.0060"},
		{EntityDate, "January 15, 2024", "2024-01-15"},
		{EntityDate, "Jan. 5th 2024", "2024-01-05"},
		{EntityDate, "3/4/2024", "2024-03-04"},
		{EntityDate, "15 March 2024", "2024-03-15"},
		{EntityName, "Contact  John   Smith", "John Smith"},
		{EntityCreditCard, "4111 1111-1111 1111", "4111111111111111"},
		{EntitySSN, "123-45-6789", "123456789"},
		{EntityBitcoinAddress, "BC1QAR0SRRR7XFKVY5L643LYDNW9RE59GTZZWF5MDQ", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"},
	} {
		if actual := Normalize(tc.raw, tc.typ); actual != tc.expect {
			t.Errorf("Test %d: Normalize(%q, %s): expected %q, got %q", i, tc.raw, tc.typ, tc.expect, actual)
		}
	}
}

func TestNormalizeEquivalentForms(t *testing.T) {
	forms := []string{"+1 (202) 555-1234", "+1-202-555-1234", "1.202.555.1234", "12025551234"}
	for _, f := range forms[1:] {
		if Normalize(f, EntityPhone) != Normalize(forms[0], EntityPhone) {
			t.Errorf("expected %q and %q to normalize identically", f, forms[0])
		}
	}
}

func TestValidate(t *testing.T) {
	for i, tc := range []struct {
		typ    EntityType
		value  string
		expect bool
	}{
		// phone length boundary
		{EntityPhone, "1234567", true},
		{EntityPhone, "123456", false},
		{EntityPhone, "123456789012345", true},
		{EntityPhone, "1234567890123456", false},

		// username length boundaries
		{EntityUsername, "ab", false},
		{EntityUsername, "abc", true},
		{EntityUsername, strings.Repeat("a", 30), true},
		{EntityUsername, strings.Repeat("a", 31), false},

		{EntityEmail, "john@acme.com", true},
		{EntityEmail, "john@acme", false},
		{EntityEmail, "john doe@acme.com", false},

		{EntityIPv4, "192.168.1.1", true},
		{EntityIPv4, "255.255.255.255", true},
		{EntityIPv4, "256.1.1.1", false},
		{EntityIPv4, "1.2.3", false},

		{EntityIPv6, "2001:db8::1", true},
		{EntityIPv6, "::ffff:1.2.3.4", false},
		{EntityIPv6, "2001:db8::zz", false},

		{EntityHash, strings.Repeat("a", 32), true},
		{EntityHash, strings.Repeat("a", 40), true},
		{EntityHash, strings.Repeat("a", 64), true},
		{EntityHash, strings.Repeat("a", 33), false},
		{EntityHash, strings.Repeat("g", 32), false},

		{EntityDomain, "example.com", true},
		{EntityDomain, "bbc.co.uk", true},
		{EntityDomain, "co.uk", false},
		{EntityDomain, "foo.notarealtld", false},
		{EntityDomain, "-bad.com", false},

		{EntityCreditCard, "4111111111111111", true},
		{EntityCreditCard, "4111111111111112", false},
		{EntityCreditCard, "411111111111", false},

		{EntitySSN, "123456789", true},
		{EntitySSN, "000123456", false},
		{EntitySSN, "666123456", false},
		{EntitySSN, "900123456", false},
		{EntitySSN, "123006789", false},

		{EntityDate, "2024-01-15", true},
		{EntityDate, "2024-13-01", false},

		{EntityCoordinate, "40.7128,-74.006", true},
		{EntityCoordinate, "91.0,0.0", false},
		{EntityCoordinate, "0.0,181.0", false},

		{EntityName, "John Smith", true},
		{EntityName, "Mary Jane Watson", true},
		{EntityName, "The Matrix", false},
		{EntityName, "Privacy Policy", false},
		{EntityName, "john smith", false},
		{EntityName, "Solo", false},

		{EntityMACAddress, "00:1a:2b:3c:4d:5e", true},
		{EntityMACAddress, "00:1a:2b:3c:4d", false},

		{EntityUUID, "123e4567-e89b-12d3-a456-426614174000", true},
		{EntityUUID, "123e4567e89b12d3a456426614174000", false},

		{EntityEthereumAddress, "0x52908400098527886e0f7030069857d2e4169ee7", true},
		{EntityEthereumAddress, "0x5290", false},

		{EntityBitcoinAddress, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", true},
		{EntityBitcoinAddress, "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{EntityBitcoinAddress, "0BoatSLRHtKNngkdXEeobR76b53LETtpyT", false},

		{EntityHashtag, "#osint", true},
		{EntityHashtag, "#12345", false},
		{EntityHashtag, "#a", false},

		{EntityURL, "https://example.com/a", true},
		{EntityURL, "ftp://example.com/a", false},
		{EntitySocialURL, "https://twitter.com/jack", true},
		{EntitySocialURL, "https://example.com/jack", false},

		{EntityEmail, "", false},
		{EntityType("bogus"), "anything", false},
	} {
		if actual := Validate(tc.value, tc.typ); actual != tc.expect {
			t.Errorf("Test %d: Validate(%q, %s): expected %t, got %t", i, tc.value, tc.typ, tc.expect, actual)
		}
	}
}

func TestExtractContext(t *testing.T) {
	text := "Please contact   john@acme.com\nfor details about the account."
	start := strings.Index(text, "john")
	end := start + len("john@acme.com")

	for i, tc := range []struct {
		radius int
		expect string
	}{
		{radius: 0, expect: "...john@acme.com..."},
		{radius: 10, expect: "...contact john@acme.com for detai..."},
		{radius: 100, expect: "Please contact john@acme.com for details about the account."},
	} {
		if actual := ExtractContext(text, start, end, tc.radius); actual != tc.expect {
			t.Errorf("Test %d: expected %q, got %q", i, tc.expect, actual)
		}
	}

	// multi-byte characters are never split
	text = "ééééé x@y.io ééééé"
	start = strings.Index(text, "x@")
	if actual := ExtractContext(text, start, start+len("x@y.io"), 3); actual != "...éé x@y.io éé..." {
		t.Errorf("unexpected multi-byte context %q", actual)
	}
}

func TestExtractEndToEnd(t *testing.T) {
	got := Extract("Contact john@acme.com or +1-202-555-1234", ExtractOptions{})
	if len(got) != 2 {
		t.Fatalf("expected exactly 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Type != EntityEmail || got[0].Value != "john@acme.com" {
		t.Errorf("expected email john@acme.com first, got %+v", got[0])
	}
	if got[1].Type != EntityPhone || got[1].Value != "12025551234" {
		t.Errorf("expected phone 12025551234 second, got %+v", got[1])
	}
}

func TestExtractDeduplicates(t *testing.T) {
	got := Extract("a@example.com, A@EXAMPLE.COM and a@example.com again", ExtractOptions{})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %+v", got)
	}
	if got[0].Start != 0 {
		t.Errorf("expected first occurrence to be kept, got start %d", got[0].Start)
	}
}

func TestExtractTypeFilter(t *testing.T) {
	got := Extract("Contact john@acme.com or +1-202-555-1234", ExtractOptions{Types: []EntityType{EntityPhone}})
	if len(got) != 1 || got[0].Type != EntityPhone {
		t.Errorf("expected only the phone, got %+v", got)
	}
}

func TestExtractDropsInvalid(t *testing.T) {
	// 999.1.1.1 looks like an address but is out of range
	for _, c := range Extract("ping 999.1.1.1 now", ExtractOptions{}) {
		if c.Type == EntityIPv4 {
			t.Errorf("expected invalid IPv4 to be dropped, got %+v", c)
		}
	}
}
