package remote

import (
	"maps"
	"time"

	"github.com/five82/fleetdash/internal/entity"
)

const (
	legacyTimestampLayout = "2006-01-02 15:04:05"
	dateLayout            = "2006-01-02"
)

// ListResponse mirrors GET /api/{kind}.
type ListResponse struct {
	Items []Record `json:"items"`
}

// Record is an entity in transport-friendly form.
type Record struct {
	ID          string            `json:"id"`
	ParentID    string            `json:"parentId,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	Category    string            `json:"category,omitempty"`
	Assignee    string            `json:"assignee,omitempty"`
	Region      string            `json:"region,omitempty"`
	Severity    string            `json:"severity,omitempty"`
	DueDate     string            `json:"dueDate,omitempty"`
	CreatedAt   string            `json:"createdAt,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Entity converts the record to the domain model.
func (r Record) Entity() entity.Entity {
	e := entity.Entity{
		ID:          r.ID,
		ParentID:    r.ParentID,
		Name:        r.Name,
		Description: r.Description,
		Status:      entity.Status(r.Status),
		Category:    r.Category,
		Assignee:    r.Assignee,
		Region:      r.Region,
		Severity:    entity.Severity(r.Severity),
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
		Fields:      maps.Clone(r.Fields),
	}
	if e.Status == "" {
		e.Status = entity.StatusOpen
	}
	if due := parseTime(r.DueDate); !due.IsZero() {
		e.DueDate = &due
	}
	return e
}

// RecordOf converts e to its wire form.
func RecordOf(e entity.Entity) Record {
	r := Record{
		ID:          e.ID,
		ParentID:    e.ParentID,
		Name:        e.Name,
		Description: e.Description,
		Status:      string(e.Status),
		Category:    e.Category,
		Assignee:    e.Assignee,
		Region:      e.Region,
		Severity:    string(e.Severity),
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
		Fields:      maps.Clone(e.Fields),
	}
	if e.DueDate != nil {
		r.DueDate = formatTime(*e.DueDate)
	}
	return r
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	for _, layout := range []string{legacyTimestampLayout, dateLayout} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
