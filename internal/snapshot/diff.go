package snapshot

import "veilleboard/internal/models"

// ChangeKind classifies a KPI difference.
type ChangeKind string

const (
	Added     ChangeKind = "added"
	Removed   ChangeKind = "removed"
	Changed   ChangeKind = "changed"
	Retyped   ChangeKind = "retyped"
	Unchanged ChangeKind = "unchanged"
)

// Delta is the difference of one KPI between two snapshots.
// Change is only meaningful when both sides are counts.
type Delta struct {
	Name   string     `json:"name"`
	Kind   ChangeKind `json:"kind"`
	Before string     `json:"before,omitempty"`
	After  string     `json:"after,omitempty"`
	Change int        `json:"change"`
}

// DiffKPIs compares the KPI blocks of two snapshots. Keys of the newer
// snapshot come first in its order, followed by keys it dropped.
func DiffKPIs(before, after models.Snapshot) []Delta {
	var out []Delta
	for _, kpi := range after.KPIs {
		old, ok := before.KPIs.Get(kpi.Name)
		d := Delta{Name: kpi.Name, After: kpi.Value.String()}
		switch {
		case !ok:
			d.Kind = Added
		case old.Kind != kpi.Value.Kind:
			d.Kind = Retyped
			d.Before = old.String()
		default:
			d.Before = old.String()
			d.Kind = Unchanged
			if d.Before != d.After {
				d.Kind = Changed
			}
			if old.Kind == models.KindCount {
				d.Change = kpi.Value.Count - old.Count
			}
		}
		out = append(out, d)
	}
	for _, kpi := range before.KPIs {
		if !after.KPIs.Has(kpi.Name) {
			out = append(out, Delta{Name: kpi.Name, Kind: Removed, Before: kpi.Value.String()})
		}
	}
	return out
}

// SeriesDelta is the change of one label between two series.
type SeriesDelta struct {
	Label  string `json:"label"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// DiffSeries lists the labels whose count moved, including labels present on one side only.
func DiffSeries(before, after models.Series) []SeriesDelta {
	var out []SeriesDelta
	for i, l := range after.Labels {
		if i >= len(after.Values) {
			break
		}
		old, _ := before.Value(l)
		if old != after.Values[i] {
			out = append(out, SeriesDelta{Label: l, Before: old, After: after.Values[i]})
		}
	}
	for i, l := range before.Labels {
		if i >= len(before.Values) {
			break
		}
		if _, ok := after.Value(l); !ok && before.Values[i] != 0 {
			out = append(out, SeriesDelta{Label: l, Before: before.Values[i]})
		}
	}
	return out
}
