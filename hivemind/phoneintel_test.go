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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePhone(t *testing.T) {
	info, err := AnalyzePhone("(650) 253-0000", "")
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, "US", info.Region)
	assert.Equal(t, 1, info.CountryCode)
	assert.Equal(t, "+16502530000", info.E164)

	values := make([]string, len(info.SearchFormats))
	for i, f := range info.SearchFormats {
		values[i] = f.Value
	}
	assert.Equal(t, []string{
		"6502530000",
		"16502530000",
		"+16502530000",
		"650 253 0000",
		"650-253-0000",
		"(650) 253-0000",
		"650.253.0000",
		"+1 6502530000",
		"06502530000",
		"0016502530000",
	}, values)
	assert.Contains(t, info.SearchQuery, `"650-253-0000" OR "650.253.0000"`)
}

func TestAnalyzePhoneRegionAlias(t *testing.T) {
	info, err := AnalyzePhone("020 7946 0958", "uk")
	require.NoError(t, err)
	assert.Equal(t, 44, info.CountryCode)
	assert.Equal(t, "+442079460958", info.E164)
}

func TestAnalyzePhoneRejectsGarbage(t *testing.T) {
	_, err := AnalyzePhone("not a phone", "US")
	require.ErrorIs(t, err, ErrInvalid)
}
