package entity

import "time"

// defaultsEpoch anchors built-in records so they are reproducible.
var defaultsEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Defaults returns the built-in seed records for a collection. They are used only
// when neither the remote store nor a fallback snapshot can provide data.
func Defaults(kind Kind) []Entity {
	var out []Entity
	switch kind {
	case KindRig:
		out = []Entity{
			seed("rig-default-01", "Rig 01", StatusInProgress, "drilling", "north"),
			seed("rig-default-02", "Rig 02", StatusOnHold, "drilling", "south"),
			seed("rig-default-03", "Rig 03", StatusOpen, "workover", "east"),
		}
	case KindAction:
		out = []Entity{
			seed("action-default-01", "Inspect BOP stack", StatusOpen, "inspection", "north"),
			seed("action-default-02", "Replace mud pump liner", StatusOpen, "mechanical", "south"),
		}
	case KindProject:
		out = []Entity{
			seed("project-default-01", "Annual recertification", StatusOpen, "compliance", ""),
		}
	case KindWorkOrder:
		out = []Entity{
			seed("wo-default-01", "Top drive service", StatusOpen, "", "north"),
		}
	}
	return out
}

func seed(id, name string, status Status, category, region string) Entity {
	return Entity{
		ID:        id,
		Name:      name,
		Status:    status,
		Category:  category,
		Region:    region,
		Severity:  SeverityMedium,
		CreatedAt: defaultsEpoch,
		UpdatedAt: defaultsEpoch,
	}
}
