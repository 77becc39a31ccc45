package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Field names as they appear on the wire.
const (
	FieldParentID    = "parentId"
	FieldName        = "name"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldCategory    = "category"
	FieldAssignee    = "assignee"
	FieldRegion      = "region"
	FieldSeverity    = "severity"
	FieldDueDate     = "dueDate"
	FieldFields      = "fields"
)

// Patch is a partial update keyed by wire field name.
type Patch map[string]any

// Fields returns the patched field names in sorted order.
func (p Patch) Fields() []string {
	return slices.Sorted(maps.Keys(p))
}

type fieldSpec struct {
	name  string
	equal func(a, b Entity) bool
	value func(e Entity) any
}

var mutableFields = []fieldSpec{
	{FieldParentID, func(a, b Entity) bool { return a.ParentID == b.ParentID }, func(e Entity) any { return e.ParentID }},
	{FieldName, func(a, b Entity) bool { return a.Name == b.Name }, func(e Entity) any { return e.Name }},
	{FieldDescription, func(a, b Entity) bool { return a.Description == b.Description }, func(e Entity) any { return e.Description }},
	{FieldStatus, func(a, b Entity) bool { return a.Status == b.Status }, func(e Entity) any { return e.Status }},
	{FieldCategory, func(a, b Entity) bool { return a.Category == b.Category }, func(e Entity) any { return e.Category }},
	{FieldAssignee, func(a, b Entity) bool { return a.Assignee == b.Assignee }, func(e Entity) any { return e.Assignee }},
	{FieldRegion, func(a, b Entity) bool { return a.Region == b.Region }, func(e Entity) any { return e.Region }},
	{FieldSeverity, func(a, b Entity) bool { return a.Severity == b.Severity }, func(e Entity) any { return e.Severity }},
	{FieldDueDate, equalDue, func(e Entity) any {
		if e.DueDate == nil {
			return nil
		}
		return *e.DueDate
	}},
	{FieldFields, func(a, b Entity) bool { return maps.Equal(a.Fields, b.Fields) }, func(e Entity) any { return maps.Clone(e.Fields) }},
}

func equalDue(a, b Entity) bool {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return true
	case a.DueDate == nil || b.DueDate == nil:
		return false
	default:
		return a.DueDate.Equal(*b.DueDate)
	}
}

// Diff returns the names of mutable fields that differ between before and after.
// Timestamps and the id are managed by the server and never reported.
func Diff(before, after Entity) []string {
	var changed []string
	for _, spec := range mutableFields {
		if !spec.equal(before, after) {
			changed = append(changed, spec.name)
		}
	}
	return changed
}

// PatchOf builds a patch carrying e's current values for the named fields.
func PatchOf(e Entity, fields []string) Patch {
	patch := make(Patch, len(fields))
	for _, spec := range mutableFields {
		if slices.Contains(fields, spec.name) {
			patch[spec.name] = spec.value(e)
		}
	}
	return patch
}

// Apply overlays patch onto e using the wire representation.
func Apply(e Entity, patch Patch) (Entity, error) {
	if len(patch) == 0 {
		return e.Clone(), nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return Entity{}, fmt.Errorf("encode entity: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Entity{}, fmt.Errorf("decode entity: %w", err)
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return Entity{}, fmt.Errorf("encode patch: %w", err)
	}
	var out Entity
	if err := json.Unmarshal(merged, &out); err != nil {
		return Entity{}, fmt.Errorf("decode patched entity: %w", err)
	}
	return out, nil
}
