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
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
)

// DemoOptions controls PopulateDemoData.
type DemoOptions struct {
	Identities int    `json:"identities,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Seed       uint64 `json:"seed,omitempty"` // 0 means random
}

// DemoResult summarizes generated demo data.
type DemoResult struct {
	Identities      []string `json:"identities"`
	Pages           int      `json:"pages"`
	Entities        int      `json:"entities"`
	CrossReferences int      `json:"cross_references"`
	InvestigationID string   `json:"investigation_id"`
}

// PopulateDemoData simulates several identities browsing fake pages
// that share some of the same people, accounts, and infrastructure,
// and records the findings in a new investigation.
func (hm *Hivemind) PopulateDemoData(ctx context.Context, opts DemoOptions) (DemoResult, error) {
	if opts.Identities <= 0 {
		opts.Identities = 3
	}
	if opts.Pages <= 0 {
		opts.Pages = 12
	}
	faker := gofakeit.New(opts.Seed)

	inv, err := hm.CreateInvestigation(ctx, "Demo: "+faker.Company(), "Generated sample investigation")
	if err != nil {
		return DemoResult{}, fmt.Errorf("creating demo investigation: %w", err)
	}
	result := DemoResult{InvestigationID: inv.ID}

	for i := range opts.Identities {
		result.Identities = append(result.Identities, fmt.Sprintf("%s-%d", faker.Adjective(), i+1))
	}

	// a small pool of shared details makes cross-references likely
	type persona struct{ name, email, phone, username, domain, ip string }
	personas := make([]persona, max(2, opts.Pages/4))
	for i := range personas {
		personas[i] = persona{
			name:     faker.FirstName() + " " + faker.LastName(),
			email:    faker.Email(),
			phone:    faker.Phone(),
			username: faker.Username(),
			domain:   faker.DomainName(),
			ip:       faker.IPv4Address(),
		}
	}

	for page := range opts.Pages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		p := personas[faker.IntN(len(personas))]
		identity := result.Identities[page%len(result.Identities)]
		url := fmt.Sprintf("https://%s/%s", faker.DomainName(), faker.Username())

		text := fmt.Sprintf("%s (@%s) works as %s in %s. Reach them at %s or %s. Site: https://%s/about, last login from %s.",
			p.name, p.username, faker.JobTitle(), faker.City(), p.email, p.phone, p.domain, p.ip)

		_, err := hm.ExtractEntitiesFromText(ctx, ExtractRequest{
			Text:            text,
			IdentityID:      identity,
			URL:             url,
			InvestigationID: inv.ID,
		})
		if err != nil {
			return result, fmt.Errorf("extracting demo page %d: %w", page, err)
		}
		_, err = hm.AddTimelineEvent(ctx, inv.ID, NewTimelineEvent{
			EventType:  string(TimelinePageVisit),
			Title:      "Visited " + url,
			IdentityID: identity,
			URL:        url,
		})
		if err != nil {
			return result, fmt.Errorf("recording demo page visit %d: %w", page, err)
		}
		result.Pages++
	}

	result.Entities = hm.store.Len()
	result.CrossReferences = len(hm.CrossReferences())

	hm.log.Info("populated demo data",
		zap.String("investigation", inv.ID),
		zap.Int("pages", result.Pages),
		zap.Int("entities", result.Entities),
		zap.Int("cross_references", result.CrossReferences))

	return result, nil
}
