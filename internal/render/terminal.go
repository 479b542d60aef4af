package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"veilleboard/internal/models"
)

func headline(s string) string { return color.HiBlue.Sprint(s) }

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off, ShowHeader: tw.On}},
		})))
}

// Generated describes when a snapshot was produced, relative to now.
func Generated(s models.Snapshot, now time.Time) string {
	at, err := time.ParseInLocation(models.LastUpdateLayout, s.LastUpdate, now.Location())
	if err != nil {
		return s.LastUpdate
	}
	return fmt.Sprintf("%s (%s)", s.LastUpdate, humanize.RelTime(at, now, "ago", "from now"))
}

// Terminal prints the snapshot as tables: KPI tiles, then the theme,
// compliance and criticité breakdowns.
func Terminal(w io.Writer, s models.Snapshot, catalog Catalog, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", headline("Dernière mise à jour:"), Generated(s, now))

	fmt.Fprintf(&b, "%s\n", headline("Indicateurs"))
	kpis := newTable(&b)
	kpis.Header("Indicateur", "Valeur")
	for _, t := range Tiles(s, catalog) {
		if err := kpis.Append([]string{t.Title, tileValue(t)}); err != nil {
			return err
		}
	}
	if err := kpis.Render(); err != nil {
		return err
	}

	for _, section := range []struct {
		title  string
		header string
		series models.Series
	}{
		{"Thèmes", "Thème", s.Themes},
		{"Conformité", "Statut", s.Compliance},
		{"Criticité", "Niveau", s.Criticite},
	} {
		fmt.Fprintf(&b, "\n%s\n", headline(section.title))
		if err := seriesTable(&b, section.header, section.series); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func tileValue(t Tile) string {
	if t.Kind != models.KindCount.String() {
		return t.Value
	}
	n, err := strconv.ParseInt(t.Value, 10, 64)
	if err != nil {
		return t.Value
	}
	return humanize.Comma(n)
}

func seriesTable(w io.Writer, header string, s models.Series) error {
	table := newTable(w)
	table.Header(header, "Nombre", "Part")
	total := s.Sum()
	rows := make([][]string, 0, len(s.Labels))
	for i, label := range s.Labels {
		v := s.At(i)
		share := "-"
		if total > 0 {
			share = fmt.Sprintf("%.1f%%", 100*float64(v)/float64(total))
		}
		rows = append(rows, []string{label, humanize.Comma(int64(v)), share})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// Status colors a compliance or criticité label for one-line summaries.
func Status(label string) string {
	switch label {
	case "Conforme", "Basse":
		return color.FgGreen.Sprint(label)
	case "Non Conforme", "Haute":
		return color.FgRed.Sprint(label)
	default:
		return color.FgYellow.Sprint(label)
	}
}
