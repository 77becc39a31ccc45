package filter

import (
	"regexp"
	"strings"
	"time"

	"github.com/five82/fleetdash/internal/entity"
)

// SortOrder selects the ordering of filtered items.
type SortOrder string

const (
	SortInsertion SortOrder = ""
	SortNameAsc   SortOrder = "name"
	SortNameDesc  SortOrder = "name-desc"
	SortDueAsc    SortOrder = "due"
	SortDueDesc   SortOrder = "due-desc"
	SortStatus    SortOrder = "status"
)

// SortOrders lists the orders in the sequence the UI cycles through them.
func SortOrders() []SortOrder {
	return []SortOrder{SortInsertion, SortNameAsc, SortNameDesc, SortDueAsc, SortDueDesc, SortStatus}
}

// ParseSortOrder accepts the names above plus "insertion"; unknown values
// report false.
func ParseSortOrder(raw string) (SortOrder, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "insertion" {
		return SortInsertion, true
	}
	for _, o := range SortOrders() {
		if string(o) == normalized {
			return o, true
		}
	}
	return SortInsertion, false
}

// Label returns a display label.
func (o SortOrder) Label() string {
	switch o {
	case SortNameAsc:
		return "Name ↑"
	case SortNameDesc:
		return "Name ↓"
	case SortDueAsc:
		return "Due ↑"
	case SortDueDesc:
		return "Due ↓"
	case SortStatus:
		return "Status"
	default:
		return "Default"
	}
}

// Next returns the following order in SortOrders, wrapping around.
func (o SortOrder) Next() SortOrder {
	orders := SortOrders()
	for i, candidate := range orders {
		if candidate == o {
			return orders[(i+1)%len(orders)]
		}
	}
	return SortInsertion
}

// Criteria selects and orders entities. Zero-valued fields do not filter.
type Criteria struct {
	// Search is a case-insensitive regular expression; an invalid expression
	// is matched literally.
	Search   string
	Statuses []entity.Status
	Category string
	Assignee string
	Region   string
	ParentID string

	// DueFrom and DueTo bound the due date inclusively. Entities without a due
	// date are excluded when either bound is set.
	DueFrom time.Time
	DueTo   time.Time

	OverdueOnly bool
	Sort        SortOrder
}

// IsZero reports whether the criteria select everything.
func (c Criteria) IsZero() bool {
	return strings.TrimSpace(c.Search) == "" && len(c.Statuses) == 0 &&
		c.Category == "" && c.Assignee == "" && c.Region == "" && c.ParentID == "" &&
		c.DueFrom.IsZero() && c.DueTo.IsZero() && !c.OverdueOnly
}

// compileSearch returns nil for an empty search.
func compileSearch(search string) *regexp.Regexp {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + search)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(search))
	}
	return re
}

// SearchIsLiteral reports whether search is not a valid expression and will be
// matched literally.
func SearchIsLiteral(search string) bool {
	search = strings.TrimSpace(search)
	if search == "" {
		return false
	}
	_, err := regexp.Compile("(?i)" + search)
	return err != nil
}
