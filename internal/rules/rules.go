// Package rules holds the fixed catalog of violation categories that reports
// and direct removals cite.
package rules

import (
	"strings"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
)

// Rule is one violation category.
type Rule struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

var catalog = []Rule{
	{ID: "no_nsfw", Title: "No NSFW Content", Description: "Uploading sexually explicit or inappropriate content is strictly prohibited."},
	{ID: "only_edu", Title: "Only Educational Material", Description: "Only academic and learning-related material is allowed."},
	{ID: "copyrighted", Title: "No Copyrighted Books", Description: "Do not upload paid content or copyrighted books without permission."},
	{ID: "duplicate", Title: "Avoid Duplicates", Description: "Don't upload material that already exists."},
	{ID: "unclear_titles", Title: "Use Clear Titles/Descriptions", Description: "Uploads must be clearly labeled with appropriate titles and descriptions."},
	{ID: "respectful", Title: "Be Respectful", Description: "No offensive, misleading, or disrespectful content is allowed."},
}

var byID = func() map[string]Rule {
	m := make(map[string]Rule, len(catalog))
	for _, r := range catalog {
		m[r.ID] = r
	}
	return m
}()

// All returns a copy of the catalog in display order.
func All() []Rule {
	out := make([]Rule, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a rule.
func ByID(id string) (Rule, bool) {
	r, ok := byID[id]
	return r, ok
}

// Validate checks that ids is non-empty and every id is in the catalog. The
// result is de-duplicated, order preserved.
func Validate(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("rules_required", "at least one broken rule must be selected")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperr.Validation("unknown_rule", "invalid rule selected: "+id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Describe renders ids as "id (Title), ..." for notification text.
func Describe(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			parts = append(parts, r.ID+" ("+r.Title+")")
		} else {
			parts = append(parts, id)
		}
	}
	return strings.Join(parts, ", ")
}
