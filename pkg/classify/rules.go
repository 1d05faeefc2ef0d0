// Package classify tags change records with a subsystem category and a
// severity using an ordered, first-match-wins rule table. The table is data:
// the matcher below never special-cases any entry, so the whole table can be
// swapped out from a YAML file without touching engine logic.
package classify

import (
	"fmt"
	"path"
	"strings"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// MatchKind selects the predicate variant a rule uses.
type MatchKind string

const (
	// MatchPrefix matches when the lowercased path starts with the pattern.
	MatchPrefix MatchKind = "prefix"
	// MatchSuffix matches when the lowercased path ends with the pattern.
	MatchSuffix MatchKind = "suffix"
	// MatchContains matches when the pattern occurs anywhere in the path.
	MatchContains MatchKind = "contains"
	// MatchGlob matches the whole path against a path.Match pattern.
	MatchGlob MatchKind = "glob"
)

// Rule is one ordered predicate over (path, entry kind, size delta).
// Earlier rules win; relative order inside the table is the priority.
type Rule struct {
	Name        string             `yaml:"name"`
	Match       MatchKind          `yaml:"match"`
	Pattern     string             `yaml:"pattern"`
	Kinds       []models.EntryKind `yaml:"kinds,omitempty"`
	MinDelta    int64              `yaml:"min_size_delta,omitempty"`
	Category    models.Category    `yaml:"category"`
	Severity    models.Severity    `yaml:"severity"`
	Description string             `yaml:"description,omitempty"`
}

func (r *Rule) matches(lowerPath string, kind models.EntryKind, sizeDelta int64) bool {
	if len(r.Kinds) > 0 {
		found := false
		for _, k := range r.Kinds {
			if k == kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.MinDelta > 0 {
		d := sizeDelta
		if d < 0 {
			d = -d
		}
		if d < r.MinDelta {
			return false
		}
	}
	switch r.Match {
	case MatchPrefix:
		return strings.HasPrefix(lowerPath, r.Pattern)
	case MatchSuffix:
		return strings.HasSuffix(lowerPath, r.Pattern)
	case MatchContains:
		return strings.Contains(lowerPath, r.Pattern)
	case MatchGlob:
		ok, _ := path.Match(r.Pattern, lowerPath)
		return ok
	}
	return false
}

// Table is an immutable, validated, ordered rule list.
type Table struct {
	rules []Rule
}

// NewTable validates the rules and freezes their order. Validation up front
// is what makes classification total: a rule that passes here cannot fail at
// match time, so the implicit catch-all is the only fallback ever needed.
func NewTable(rules []Rule) (*Table, error) {
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %q has no pattern", r.Name)
		}
		switch r.Match {
		case MatchPrefix, MatchSuffix, MatchContains:
		case MatchGlob:
			if _, err := path.Match(r.Pattern, "probe"); err != nil {
				return nil, fmt.Errorf("rule %q has invalid glob %q: %w", r.Name, r.Pattern, err)
			}
		default:
			return nil, fmt.Errorf("rule %q has unknown match kind %q", r.Name, r.Match)
		}
		if !knownCategory(r.Category) {
			return nil, fmt.Errorf("rule %q has unknown category %q", r.Name, r.Category)
		}
		if r.Severity.Rank() == 0 {
			return nil, fmt.Errorf("rule %q has unknown severity %q", r.Name, r.Severity)
		}
	}
	frozen := make([]Rule, len(rules))
	copy(frozen, rules)
	return &Table{rules: frozen}, nil
}

// Rules returns a copy of the ordered rule list.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Classify evaluates the table against one record. Rules run strictly in
// declaration order and the first match wins, so overlapping patterns
// resolve by position. A record no rule matches gets the catch-all
// Unclassified/Informational pair; classification never fails.
//
// Unchanged records still receive their category so reports can group them,
// but their severity is pinned to informational. A file that did not change
// carries no urgency regardless of which subsystem it lives in.
func (t *Table) Classify(rec *models.ChangeRecord) (models.Category, models.Severity, string) {
	lower := strings.ToLower(rec.Path)
	kind := recordKind(rec)
	delta := rec.SizeDelta()

	for i := range t.rules {
		r := &t.rules[i]
		if r.matches(lower, kind, delta) {
			sev := r.Severity
			if rec.Kind == models.ChangeUnchanged {
				sev = models.SeverityInformational
			}
			return r.Category, sev, r.Name
		}
	}
	return models.CategoryUnclassified, models.SeverityInformational, ""
}

// Apply classifies every record in place and returns the slice. Rules are
// stateless, so the loop could run per-record in parallel; it stays a single
// pass because classification is far cheaper than the hashing that precedes
// it.
func (t *Table) Apply(records []models.ChangeRecord) []models.ChangeRecord {
	for i := range records {
		cat, sev, name := t.Classify(&records[i])
		records[i].Category = cat
		records[i].Severity = sev
		records[i].Rule = name
	}
	return records
}

func knownCategory(c models.Category) bool {
	switch c {
	case models.CategorySecurity, models.CategoryBootChain, models.CategoryKernel,
		models.CategoryPerformance, models.CategorySystem, models.CategoryFeature,
		models.CategoryUnclassified:
		return true
	}
	return false
}

func recordKind(rec *models.ChangeRecord) models.EntryKind {
	if rec.New != nil {
		return rec.New.Kind
	}
	if rec.Old != nil {
		return rec.Old.Kind
	}
	return models.EntryRegular
}
