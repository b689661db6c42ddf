package domain

import (
	"slices"
	"time"
)

// Storage type labels as exposed by the pool metadata "application" label.
const (
	StorageTypeAll        = "All"
	StorageTypeBlock      = "Block"
	StorageTypeFilesystem = "Filesystem"
	StorageTypeObject     = "Object"
)

// ChartStorageTypes are the only labels a chart series may carry.
var ChartStorageTypes = []string{StorageTypeBlock, StorageTypeFilesystem, StorageTypeObject}

// CapacityType selects which pool metric feeds the chart.
type CapacityType string

const (
	CapacityRaw  CapacityType = "raw"
	CapacityUsed CapacityType = "used"
)

// Valid reports whether c is a known capacity type.
func (c CapacityType) Valid() bool {
	return c == CapacityRaw || c == CapacityUsed
}

// MetricSample is one value of a per-application metric snapshot, in bytes.
type MetricSample struct {
	Application string  `json:"application"`
	Value       float64 `json:"value"`
}

// SeriesPoint is one chart series entry.
type SeriesPoint struct {
	Group string  `json:"group"`
	Value float64 `json:"value"`
}

// DropdownItem is one storage type selector entry.
type DropdownItem struct {
	Content string `json:"content"`
}

// DefaultDropdownItems is the selector before the first sample arrives.
func DefaultDropdownItems() []DropdownItem {
	return []DropdownItem{
		{Content: StorageTypeAll},
		{Content: StorageTypeBlock},
		{Content: StorageTypeFilesystem},
		{Content: StorageTypeObject},
	}
}

// BuildSeries converts samples into the display unit and keeps only chart
// labels with a strictly positive value.
func BuildSeries(samples []MetricSample, unit string, precision int) []SeriesPoint {
	out := make([]SeriesPoint, 0, len(samples))
	for _, s := range samples {
		if !slices.Contains(ChartStorageTypes, s.Application) {
			continue
		}
		v, err := ConvertToUnit(s.Value, unit, precision)
		if err != nil || !(v > 0) {
			continue
		}
		out = append(out, SeriesPoint{Group: s.Application, Value: v})
	}
	return out
}

// FilterSeries returns the points shown for the selected storage type.
func FilterSeries(all []SeriesPoint, selected string) []SeriesPoint {
	if selected == StorageTypeAll {
		return all
	}
	out := make([]SeriesPoint, 0, 1)
	for _, p := range all {
		if p.Group == selected {
			out = append(out, p)
		}
	}
	return out
}

// ReconcileDropdown derives the selector entries and the selection from a new
// series.
//
// A single observed label collapses the selector to that label and selects it.
// Otherwise All is offered first; a previous selection that vanished falls
// back to All when more than one label remains.
func ReconcileDropdown(all []SeriesPoint, selected string) ([]DropdownItem, string) {
	dynamic := make([]DropdownItem, 0, len(all))
	hasExisting := false
	for _, p := range all {
		dynamic = append(dynamic, DropdownItem{Content: p.Group})
		if p.Group == selected {
			hasExisting = true
		}
	}

	var items []DropdownItem
	if len(dynamic) == 1 {
		items = dynamic
		selected = dynamic[0].Content
	} else {
		items = append([]DropdownItem{{Content: StorageTypeAll}}, dynamic...)
	}
	if !hasExisting && len(dynamic) > 1 {
		selected = StorageTypeAll
	}
	return items, selected
}

// CapacityDisplay is a byte count formatted for display.
type CapacityDisplay struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Bytes float64 `json:"bytes"`
}

// CapacitySnapshot is the full derived state of the capacity card.
type CapacitySnapshot struct {
	Total               *CapacityDisplay `json:"total,omitempty"`
	Used                *CapacityDisplay `json:"used,omitempty"`
	CapacityType        CapacityType     `json:"capacity_type"`
	SelectedStorageType string           `json:"selected_storage_type"`
	DropdownItems       []DropdownItem   `json:"dropdown_items"`
	ChartUnit           string           `json:"chart_unit,omitempty"`
	AllData             []SeriesPoint    `json:"all_data"`
	DisplayData         []SeriesPoint    `json:"display_data"`
	UpdatedAt           time.Time        `json:"updated_at,omitzero"`
	LastError           string           `json:"last_error,omitempty"`
}
