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

const testPage = `<!doctype html>
<html>
<head>
	<title>Profile</title>
	<style>.x { color: red }</style>
	<script>var leaked = "hidden@example.com";</script>
</head>
<body>
	<h1>Jane Roe</h1>
	<p>Contact <b>jane@acme.com</b> or call 202-555-1234.</p>
	<noscript>enable js: nojs@example.com</noscript>
	<ul>
		<li><a href="/about">About</a></li>
		<li><a href="https://social.example/jane#top">Social</a></li>
		<li><a href="https://social.example/jane">Social again</a></li>
		<li><a href="mailto:jane@acme.com">Mail</a></li>
		<li><a href="javascript:void(0)">Nothing</a></li>
		<li><a href="notes.html">Notes</a></li>
	</ul>
</body>
</html>`

func TestPageText(t *testing.T) {
	text, err := PageText(testPage)
	require.NoError(t, err)
	assert.Contains(t, text, "Jane Roe")
	assert.Contains(t, text, "Contact jane@acme.com or call 202-555-1234.")
	assert.NotContains(t, text, "hidden@example.com")
	assert.NotContains(t, text, "nojs@example.com")
	assert.NotContains(t, text, "color: red")
}

func TestPageLinks(t *testing.T) {
	links, err := PageLinks(testPage, "https://acme.com/people/jane")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://acme.com/about",
		"https://social.example/jane",
		"https://acme.com/people/notes.html",
	}, links)

	// without a base, relative links are dropped
	links, err = PageLinks(testPage, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://social.example/jane"}, links)
}
