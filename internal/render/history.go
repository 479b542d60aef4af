package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"veilleboard/internal/models"
	"veilleboard/internal/snapshot"
	"veilleboard/internal/store"
)

// History prints stored generations, newest first.
func History(w io.Writer, recs []store.SnapshotRecord, now time.Time) error {
	table := newTable(w)
	table.Header("Run", "Généré", "Schéma", "Textes suivis", "Actions requises")
	for _, r := range recs {
		row := []string{
			shortID(r.ID),
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			r.Schema,
			kpiCell(r.Snapshot, models.KPITotalTracked),
			kpiCell(r.Snapshot, models.KPIActionsRequired),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func kpiCell(s models.Snapshot, key string) string {
	v, ok := s.KPIs.Get(key)
	if !ok {
		return "-"
	}
	return v.String()
}

// Diff prints the KPI and breakdown changes between two snapshots.
func Diff(w io.Writer, before, after models.Snapshot, catalog Catalog) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s → %s\n", headline("Comparaison"), before.LastUpdate, after.LastUpdate)

	kpis := newTable(&b)
	kpis.Header("Indicateur", "Avant", "Après", "Écart")
	for _, d := range snapshot.DiffKPIs(before, after) {
		title := d.Name
		if spec, ok := catalog.Spec(d.Name); ok {
			title = spec.Title
		}
		if err := kpis.Append([]string{title, orDash(d.Before), orDash(d.After), change(d)}); err != nil {
			return err
		}
	}
	if err := kpis.Render(); err != nil {
		return err
	}

	for _, section := range []struct {
		title         string
		before, after models.Series
	}{
		{"Thèmes", before.Themes, after.Themes},
		{"Conformité", before.Compliance, after.Compliance},
		{"Criticité", before.Criticite, after.Criticite},
	} {
		deltas := snapshot.DiffSeries(section.before, section.after)
		if len(deltas) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", headline(section.title))
		table := newTable(&b)
		table.Header("Libellé", "Avant", "Après")
		for _, d := range deltas {
			if err := table.Append([]string{d.Label, strconv.Itoa(d.Before), strconv.Itoa(d.After)}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func change(d snapshot.Delta) string {
	switch d.Kind {
	case snapshot.Changed:
		if d.Change != 0 {
			return fmt.Sprintf("%+d", d.Change)
		}
		return "modifié"
	case snapshot.Added:
		return "nouveau"
	case snapshot.Removed:
		return "retiré"
	case snapshot.Retyped:
		return "type changé"
	default:
		return "="
	}
}
