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
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// Export formats.
const (
	ExportJSON     = "json"
	ExportMarkdown = "markdown"
)

// InvestigationExport is a point-in-time copy of an investigation
// together with its serialized form.
type InvestigationExport struct {
	Investigation Investigation `json:"investigation"`
	Format        string        `json:"format"`
	ExportedAt    time.Time     `json:"exported_at"`
	Data          string        `json:"data"`
}

// Export serializes the investigation in the given format, which
// defaults to JSON.
func (invs *Investigations) Export(id, format string) (InvestigationExport, error) {
	if format == "" {
		format = ExportJSON
	}
	if format != ExportJSON && format != ExportMarkdown {
		return InvestigationExport{}, fmt.Errorf("%w: unsupported export format '%s'", ErrInvalid, format)
	}

	inv, err := invs.Get(id)
	if err != nil {
		return InvestigationExport{}, err
	}

	exp := InvestigationExport{
		Investigation: inv,
		Format:        format,
		ExportedAt:    invs.now(),
	}
	switch format {
	case ExportJSON:
		data, err := json.MarshalIndent(inv, "", "  ")
		if err != nil {
			return InvestigationExport{}, fmt.Errorf("encoding investigation %s: %w", id, err)
		}
		exp.Data = string(data)
	case ExportMarkdown:
		data, err := renderMarkdown(inv, exp.ExportedAt)
		if err != nil {
			return InvestigationExport{}, fmt.Errorf("rendering investigation %s: %w", id, err)
		}
		exp.Data = data
	}
	return exp, nil
}

//go:embed export.md.tmpl
var markdownTemplateText string

var markdownTemplate = template.Must(template.New("export.md").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{"md": mdEscape}).
	Parse(markdownTemplateText))

// markdownExport is the data the Markdown template renders; the
// timeline is in display order, newest first.
type markdownExport struct {
	Investigation
	Timeline   []TimelineEvent
	ExportedAt time.Time
}

func renderMarkdown(inv Investigation, exportedAt time.Time) (string, error) {
	var sb strings.Builder
	err := markdownTemplate.Execute(&sb, markdownExport{
		Investigation: inv,
		Timeline:      queryTimeline(inv.Timeline, TimelineQuery{}),
		ExportedAt:    exportedAt,
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\n", " ")

func mdEscape(s string) string { return mdReplacer.Replace(s) }
