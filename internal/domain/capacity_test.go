package domain

import (
	"math"
	"testing"
)

func TestBuildSeries(t *testing.T) {
	samples := []MetricSample{
		{Application: "Block", Value: 2 * 1024 * 1024 * 1024},
		{Application: "Filesystem", Value: 512 * 1024 * 1024},
		{Application: "Object", Value: 0},
		{Application: "mgr", Value: 1024},
		{Application: "", Value: 1024},
		{Application: "Block", Value: -5},
		{Application: "Filesystem", Value: math.NaN()},
	}

	series := BuildSeries(samples, "GiB", 10)
	if len(series) != 2 {
		t.Fatalf("BuildSeries() returned %d points, want 2: %v", len(series), series)
	}
	if series[0].Group != "Block" || series[0].Value != 2 {
		t.Errorf("series[0] = %+v, want Block/2", series[0])
	}
	if series[1].Group != "Filesystem" || series[1].Value != 0.5 {
		t.Errorf("series[1] = %+v, want Filesystem/0.5", series[1])
	}
	for _, p := range series {
		if p.Value <= 0 {
			t.Errorf("series contains non-positive value %+v", p)
		}
	}
}

func TestBuildSeriesUnknownUnit(t *testing.T) {
	series := BuildSeries([]MetricSample{{Application: "Block", Value: 10}}, "furlong", 2)
	if len(series) != 0 {
		t.Errorf("BuildSeries() with unknown unit = %v, want empty", series)
	}
}

func TestFilterSeries(t *testing.T) {
	all := []SeriesPoint{{Group: "Block", Value: 1}, {Group: "Object", Value: 2}}

	if got := FilterSeries(all, StorageTypeAll); len(got) != 2 {
		t.Errorf("FilterSeries(All) = %v", got)
	}
	got := FilterSeries(all, "Object")
	if len(got) != 1 || got[0].Group != "Object" {
		t.Errorf("FilterSeries(Object) = %v", got)
	}
	if got := FilterSeries(all, "Filesystem"); len(got) != 0 {
		t.Errorf("FilterSeries(Filesystem) = %v, want empty", got)
	}
}

func TestReconcileDropdown(t *testing.T) {
	tests := []struct {
		name         string
		series       []SeriesPoint
		selected     string
		wantItems    []string
		wantSelected string
	}{
		{
			name:         "single label collapses and auto-selects",
			series:       []SeriesPoint{{Group: "Block", Value: 1}},
			selected:     StorageTypeAll,
			wantItems:    []string{"Block"},
			wantSelected: "Block",
		},
		{
			name:         "several labels keep All first",
			series:       []SeriesPoint{{Group: "Block", Value: 1}, {Group: "Object", Value: 1}},
			selected:     StorageTypeAll,
			wantItems:    []string{"All", "Block", "Object"},
			wantSelected: "All",
		},
		{
			name:         "existing selection is kept",
			series:       []SeriesPoint{{Group: "Block", Value: 1}, {Group: "Object", Value: 1}},
			selected:     "Object",
			wantItems:    []string{"All", "Block", "Object"},
			wantSelected: "Object",
		},
		{
			name:         "vanished selection falls back to All",
			series:       []SeriesPoint{{Group: "Block", Value: 1}, {Group: "Object", Value: 1}},
			selected:     "Filesystem",
			wantItems:    []string{"All", "Block", "Object"},
			wantSelected: "All",
		},
		{
			name:         "empty series keeps selection",
			series:       nil,
			selected:     "Block",
			wantItems:    []string{"All"},
			wantSelected: "Block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, selected := ReconcileDropdown(tt.series, tt.selected)
			got := make([]string, 0, len(items))
			for _, it := range items {
				got = append(got, it.Content)
			}
			if !equalStrings(got, tt.wantItems) {
				t.Errorf("items = %v, want %v", got, tt.wantItems)
			}
			if selected != tt.wantSelected {
				t.Errorf("selected = %q, want %q", selected, tt.wantSelected)
			}
		})
	}
}
