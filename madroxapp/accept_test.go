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

package madroxapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccept(t *testing.T) {
	for i, tc := range []struct {
		input     string
		expect    acceptHeader
		shouldErr bool
	}{
		{
			input: "application/json,text/markdown,*/*",
			expect: acceptHeader{
				{mimeType: "application/json", weight: 1},
				{mimeType: "text/markdown", weight: 1},
				{mimeType: "*/*", weight: 1},
			},
		},
		{
			// browser navigation
			input: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			expect: acceptHeader{
				{mimeType: "text/html", weight: 1},
				{mimeType: "application/xhtml+xml", weight: 1},
				{mimeType: "application/xml", weight: 0.9},
				{mimeType: "*/*", weight: 0.8},
			},
		},
		{
			input: "text/*;q=0.5, Text/Markdown; charset=utf-8",
			expect: acceptHeader{
				{mimeType: "text/markdown", weight: 1},
				{mimeType: "text/*", weight: 0.5},
			},
		},
		{
			input:     "text/markdown;q=high",
			shouldErr: true,
		},
		{
			input:     "text/markdown;q=2",
			shouldErr: true,
		},
	} {
		actual, err := parseAccept(tc.input)
		if tc.shouldErr {
			assert.Error(t, err, "test %d", i)
			continue
		}
		require.NoError(t, err, "test %d", i)
		assert.Equal(t, tc.expect, actual, "test %d", i)
	}
}

func TestAcceptPreference(t *testing.T) {
	for i, tc := range []struct {
		accept string
		expect string
	}{
		{accept: "*/*", expect: "application/json"},
		{accept: "text/markdown", expect: "text/markdown"},
		{accept: "application/json;q=0.4, text/markdown", expect: "text/markdown"},
		{accept: "text/*", expect: "text/markdown"},
		{accept: "image/png", expect: ""},
		{accept: "text/markdown;q=0, */*;q=0.1", expect: "application/json"},
	} {
		acc, err := parseAccept(tc.accept)
		require.NoError(t, err, "test %d", i)
		assert.Equal(t, tc.expect, acc.preference("application/json", "text/markdown"), "test %d: %s", i, tc.accept)
	}
}
