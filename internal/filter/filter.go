// Package filter derives filtered, sorted views and summary counts from a
// collection snapshot. Every function is pure: the same entities, criteria and
// clock always yield the same view.
package filter

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/five82/fleetdash/internal/entity"
)

// View is a filtered, ordered subsequence with its summary.
type View struct {
	Items   []entity.Entity
	Summary Summary
}

// Summary aggregates counts over a set of entities.
type Summary struct {
	Total      int
	ByStatus   map[entity.Status]int
	ByCategory map[string]int
	Overdue    int
	Critical   int
}

// Categories returns the category names in sorted order.
func (s Summary) Categories() []string {
	return slices.Sorted(maps.Keys(s.ByCategory))
}

// Engine applies criteria using a category classifier.
type Engine struct {
	classifier *Classifier
}

// NewEngine builds an Engine; a nil classifier uses DefaultClassifier.
func NewEngine(classifier *Classifier) *Engine {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &Engine{classifier: classifier}
}

// Apply filters with DefaultClassifier.
func Apply(items []entity.Entity, c Criteria, now time.Time) View {
	return NewEngine(nil).Apply(items, c, now)
}

// Apply returns the entities matching c, in c.Sort order, with ties kept in
// input order. The summary covers the returned items.
func (e *Engine) Apply(items []entity.Entity, c Criteria, now time.Time) View {
	re := compileSearch(c.Search)
	out := make([]entity.Entity, 0, len(items))
	for _, item := range items {
		if !e.matches(item, c, now) {
			continue
		}
		if re != nil && !re.MatchString(haystack(item)) {
			continue
		}
		out = append(out, item.Clone())
	}
	sortItems(out, c.Sort)
	return View{Items: out, Summary: e.Summarize(out, now)}
}

// Summarize counts items without filtering.
func (e *Engine) Summarize(items []entity.Entity, now time.Time) Summary {
	s := Summary{
		Total:      len(items),
		ByStatus:   make(map[entity.Status]int),
		ByCategory: make(map[string]int),
	}
	for _, item := range items {
		s.ByStatus[item.Status]++
		s.ByCategory[e.classifier.CategoryOf(item)]++
		if item.IsOverdue(now) {
			s.Overdue++
		}
		if item.Severity == entity.SeverityCritical {
			s.Critical++
		}
	}
	return s
}

// CategoryOf exposes the engine's category resolution.
func (e *Engine) CategoryOf(item entity.Entity) string {
	return e.classifier.CategoryOf(item)
}

func (e *Engine) matches(item entity.Entity, c Criteria, now time.Time) bool {
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, item.Status) {
		return false
	}
	if c.Category != "" && !strings.EqualFold(e.classifier.CategoryOf(item), c.Category) {
		return false
	}
	if c.Assignee != "" && !strings.EqualFold(item.Assignee, c.Assignee) {
		return false
	}
	if c.Region != "" && !strings.EqualFold(item.Region, c.Region) {
		return false
	}
	if c.ParentID != "" && item.ParentID != c.ParentID {
		return false
	}
	if !c.DueFrom.IsZero() || !c.DueTo.IsZero() {
		if item.DueDate == nil {
			return false
		}
		if !c.DueFrom.IsZero() && item.DueDate.Before(c.DueFrom) {
			return false
		}
		if !c.DueTo.IsZero() && item.DueDate.After(c.DueTo) {
			return false
		}
	}
	if c.OverdueOnly && !item.IsOverdue(now) {
		return false
	}
	return true
}

func haystack(e entity.Entity) string {
	parts := []string{e.Name, e.ID, e.Description, e.Assignee, e.Region, e.Category, e.Status.Label()}
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "\n")
}

func sortItems(items []entity.Entity, order SortOrder) {
	var less func(a, b entity.Entity) int
	switch order {
	case SortNameAsc:
		less = compareName
	case SortNameDesc:
		less = func(a, b entity.Entity) int { return compareName(b, a) }
	case SortDueAsc:
		less = func(a, b entity.Entity) int { return compareDue(a, b, false) }
	case SortDueDesc:
		less = func(a, b entity.Entity) int { return compareDue(a, b, true) }
	case SortStatus:
		less = func(a, b entity.Entity) int {
			if c := cmp.Compare(a.Status.Rank(), b.Status.Rank()); c != 0 {
				return c
			}
			return compareName(a, b)
		}
	default:
		return
	}
	slices.SortStableFunc(items, less)
}

func compareName(a, b entity.Entity) int {
	return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// compareDue orders by due date; undated entities sort last in both directions.
func compareDue(a, b entity.Entity, desc bool) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	}
	c := a.DueDate.Compare(*b.DueDate)
	if desc {
		return -c
	}
	return c
}
