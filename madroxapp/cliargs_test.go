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

func TestFlagValuePairs(t *testing.T) {
	for i, test := range []struct {
		input  []string
		expect []flagValPair
	}{
		{
			input:  []string{"--identity-id", "prime"},
			expect: []flagValPair{{flag: "--identity-id", val: "prime"}},
		},
		{
			input:  []string{"--limit", "10"},
			expect: []flagValPair{{flag: "--limit", val: 10}},
		},
		{
			input:  []string{"--confirm"},
			expect: []flagValPair{{flag: "--confirm", val: true}},
		},
		{
			input: []string{"--confirm", "--ascending", "false"},
			expect: []flagValPair{
				{flag: "--confirm", val: true},
				{flag: "--ascending", val: false},
			},
		},
		{
			input: []string{"--tags", "[osint", "lead", "risky]", "--risk-score", "7"},
			expect: []flagValPair{
				{flag: "--tags", val: []any{"osint", "lead", "risky"}},
				{flag: "--risk-score", val: 7},
			},
		},
		{
			input:  []string{"--tags", "[solo]"},
			expect: []flagValPair{{flag: "--tags", val: []any{"solo"}}},
		},
		{
			input:  []string{"--x", "-1.5"},
			expect: []flagValPair{{flag: "--x", val: -1.5}},
		},
		{
			input:  []string{"--notes", ""},
			expect: []flagValPair{{flag: "--notes", val: ""}},
		},
	} {
		assert.Equal(t, test.expect, flagValPairs(test.input), "test %d", i)
	}
}

func TestMakeJSON(t *testing.T) {
	for i, tc := range []struct {
		input     []string
		expected  string
		shouldErr bool
	}{
		{
			input:    []string{"--name", "Op Nightjar"},
			expected: `{"name":"Op Nightjar"}`,
		},
		{
			input:    []string{"--confirm"},
			expected: `{"confirm":true}`,
		},
		{
			input:    []string{"--metadata.source", "osint"},
			expected: `{"metadata":{"source":"osint"}}`,
		},
		{
			input:    []string{"--investigation-id", "abc", "--x", "1.5", "--y", "2"},
			expected: `{"investigation_id":"abc","x":1.5,"y":2}`,
		},
		{
			input:    []string{"--tags[1]", "b"},
			expected: `{"tags":[null,"b"]}`,
		},
		{
			input:    []string{"--nodes[0].id", "a", "--nodes[1].id", "b"},
			expected: `{"nodes":[{"id":"a"},{"id":"b"}]}`,
		},
		{
			input:    []string{"--nodes.[0].id", "a"},
			expected: `{"nodes":[{"id":"a"}]}`,
		},
		{
			input:    []string{"5f2b0c"},
			expected: `"5f2b0c"`,
		},
		{
			input:    []string{"12345"},
			expected: `"12345"`,
		},
		{
			input:     []string{"--[0]", "foo", "--bar"},
			shouldErr: true,
		},
		{
			input:     []string{"--tags", "x", "--tags.sub", "y"},
			shouldErr: true,
		},
		{
			input:     []string{"stray", "--flag", "v"},
			shouldErr: true,
		},
	} {
		actual, err := makeJSON(tc.input)
		if tc.shouldErr {
			assert.Error(t, err, "test %d: %v", i, tc.input)
			continue
		}
		require.NoError(t, err, "test %d: %v", i, tc.input)
		assert.JSONEq(t, tc.expected, string(actual), "test %d: %v", i, tc.input)
	}

	out, err := makeJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "identity_id", flagKey("--identity-id"))
	assert.Equal(t, "metadata.first_seen", flagKey("--metadata.first-seen"))
	assert.Equal(t, "already_snake", flagKey("--already_snake"))
}
