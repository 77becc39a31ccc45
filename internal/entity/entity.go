// Package entity defines the records mirrored from the fleet API.
package entity

import (
	"maps"
	"strings"
	"time"
)

// Kind names a remote collection.
type Kind string

const (
	KindRig       Kind = "rigs"
	KindAction    Kind = "actions"
	KindProject   Kind = "projects"
	KindWorkOrder Kind = "workorders"
	KindTask      Kind = "tasks"
	KindNote      Kind = "notes"
)

// Kinds lists every known collection in display order.
func Kinds() []Kind {
	return []Kind{KindRig, KindAction, KindProject, KindWorkOrder, KindTask, KindNote}
}

// ParseKind normalizes a user-supplied collection name.
func ParseKind(raw string) (Kind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	for _, k := range Kinds() {
		if string(k) == normalized || strings.TrimSuffix(string(k), "s") == normalized {
			return k, true
		}
	}
	return "", false
}

// Status is the lifecycle state shared by every entity kind.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists statuses in grouping order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled}
}

// IsTerminal reports whether no further work is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Rank orders statuses for grouping; unknown statuses sort last.
func (s Status) Rank() int {
	for i, candidate := range Statuses() {
		if candidate == s {
			return i
		}
	}
	return len(Statuses())
}

// Label returns a display label.
func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "In Progress"
	case StatusOnHold:
		return "On Hold"
	case "":
		return "Unknown"
	default:
		return strings.ToUpper(string(s[:1])) + string(s[1:])
	}
}

// Severity grades the operational impact of an item.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Entity is a record mirrored from the remote store. Sub-entities (tasks, notes)
// reference their parent through ParentID instead of being embedded.
type Entity struct {
	ID          string            `json:"id"`
	ParentID    string            `json:"parentId,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      Status            `json:"status"`
	Category    string            `json:"category,omitempty"`
	Assignee    string            `json:"assignee,omitempty"`
	Region      string            `json:"region,omitempty"`
	Severity    Severity          `json:"severity,omitempty"`
	DueDate     *time.Time        `json:"dueDate,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Clone returns a deep copy.
func (e Entity) Clone() Entity {
	dup := e
	if e.DueDate != nil {
		due := *e.DueDate
		dup.DueDate = &due
	}
	dup.Fields = maps.Clone(e.Fields)
	return dup
}

// IsOverdue reports whether the entity is past due and still actionable.
func (e Entity) IsOverdue(now time.Time) bool {
	if e.DueDate == nil || e.Status.IsTerminal() {
		return false
	}
	return e.DueDate.Before(now)
}

// Due returns a pointer to t, for populating DueDate.
func Due(t time.Time) *time.Time {
	return &t
}
