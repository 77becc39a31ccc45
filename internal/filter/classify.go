package filter

import (
	"strings"

	"github.com/five82/fleetdash/internal/entity"
)

// Uncategorized is reported for entities no rule matches.
const Uncategorized = "uncategorized"

// Rule assigns Category to entities that satisfy Match.
type Rule struct {
	Category string
	Match    func(entity.Entity) bool
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from an ordered rule table.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the category of the first matching rule, or Uncategorized.
func (c *Classifier) Classify(e entity.Entity) string {
	if c != nil {
		for _, r := range c.rules {
			if r.Match(e) {
				return r.Category
			}
		}
	}
	return Uncategorized
}

// CategoryOf returns the explicit category, falling back to classification.
func (c *Classifier) CategoryOf(e entity.Entity) string {
	if cat := strings.TrimSpace(e.Category); cat != "" {
		return strings.ToLower(cat)
	}
	return c.Classify(e)
}

// NameHasAny matches entities whose name or description contains any of the
// words, case-insensitively, on word boundaries.
func NameHasAny(words ...string) func(entity.Entity) bool {
	return func(e entity.Entity) bool {
		tokens := tokenize(e.Name + " " + e.Description)
		for _, w := range words {
			if _, ok := tokens[strings.ToLower(w)]; ok {
				return true
			}
		}
		return false
	}
}

// FieldEquals matches entities whose free-form field key equals value,
// case-insensitively.
func FieldEquals(key, value string) func(entity.Entity) bool {
	return func(e entity.Entity) bool {
		return strings.EqualFold(strings.TrimSpace(e.Fields[key]), value)
	}
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		tokens[f] = struct{}{}
	}
	return tokens
}

// DefaultClassifier is the work-order trade table. An explicit "trade" field
// takes precedence over wording.
var DefaultClassifier = NewClassifier(
	Rule{"electrical", FieldEquals("trade", "electrical")},
	Rule{"mechanical", FieldEquals("trade", "mechanical")},
	Rule{"hydraulic", FieldEquals("trade", "hydraulic")},
	Rule{"safety", NameHasAny("safety", "bop", "h2s", "gas", "fire", "escape")},
	Rule{"electrical", NameHasAny("electrical", "generator", "motor", "cable", "wiring", "vfd", "lighting")},
	Rule{"hydraulic", NameHasAny("hydraulic", "accumulator", "hose", "cylinder")},
	Rule{"mechanical", NameHasAny("pump", "liner", "drive", "gearbox", "bearing", "drawworks", "valve", "engine")},
	Rule{"inspection", NameHasAny("inspect", "inspection", "survey", "audit", "ndt")},
)
