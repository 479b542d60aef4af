package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilleboard/internal/models"
	"veilleboard/internal/register"
	"veilleboard/internal/store"
)

var now = time.Date(2025, 6, 15, 11, 30, 0, 0, time.UTC)

func snap(keys ...string) models.Snapshot {
	kpis := models.KPIs{}
	for i, k := range keys {
		if k == models.KPIProofScore {
			kpis.Set(k, models.Percent(42))
			continue
		}
		kpis.Set(k, models.Count(1000+i))
	}
	return models.Snapshot{
		LastUpdate: "15/06/2025 09:30",
		KPIs:       kpis,
		Themes:     models.NewSeries([]string{"EAU", "AIR <b>"}, []int{3, 1}),
		Compliance: models.NewSeries(models.ComplianceLabels, []int{1, 2, 1}),
		Criticite:  models.NewSeries(models.CriticiteLabels, []int{2, 1, 1}),
	}
}

func keysOf(tiles []Tile) []string {
	var out []string
	for _, t := range tiles {
		out = append(out, t.Key)
	}
	return out
}

func TestTilesFollowCatalogOrder(t *testing.T) {
	s := snap(models.KPIProofScore, models.KPITotalTracked, models.KPIAlertsIA)
	tiles := Tiles(s, DefaultCatalog)
	assert.Equal(t, []string{models.KPITotalTracked, models.KPIAlertsIA, models.KPIProofScore}, keysOf(tiles))
	assert.Equal(t, "Score de preuves", tiles[2].Title)
	assert.Equal(t, "42%", tiles[2].Value)
	assert.Equal(t, "percent", tiles[2].Kind)
}

func TestTilesOmitMissingKeys(t *testing.T) {
	// v1 payload: no alerts_ia nor proof_score.
	v1 := snap(models.KPITotalTracked, models.KPIApplicable, models.KPINewAlerts)
	assert.Equal(t, []string{models.KPITotalTracked, models.KPIApplicable, models.KPINewAlerts}, keysOf(Tiles(v1, DefaultCatalog)))

	// v2 payload without new_alerts.
	v2 := snap(models.KPITotalTracked, models.KPIAlertsIA, models.KPIProofScore)
	assert.NotContains(t, keysOf(Tiles(v2, DefaultCatalog)), models.KPINewAlerts)

	assert.Empty(t, Tiles(models.Snapshot{}, DefaultCatalog))
}

func TestTilesAppendUnknownKeys(t *testing.T) {
	s := snap(models.KPITotalTracked, "audits_due")
	tiles := Tiles(s, DefaultCatalog)
	require.Len(t, tiles, 2)
	assert.Equal(t, Tile{Key: "audits_due", Title: "audits_due", Value: "1001", Kind: "count"}, tiles[1])
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := snap(models.KPITotalTracked, models.KPIProofScore)
	require.NoError(t, Terminal(&buf, s, DefaultCatalog, now))
	out := buf.String()
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "Textes suivis")
	assert.Contains(t, out, "1,000")
	assert.Contains(t, out, "42%")
	assert.Contains(t, out, "À évaluer")
	assert.Contains(t, out, "50.0%")
	assert.NotContains(t, out, "Nouveautés")
}

func TestGeneratedFallsBackToRawValue(t *testing.T) {
	assert.Equal(t, "hier", Generated(models.Snapshot{LastUpdate: "hier"}, now))
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	s := snap(models.KPITotalTracked, models.KPINewAlerts)
	require.NoError(t, HTML(&buf, s, DefaultCatalog, "", now))
	page := buf.String()
	assert.Contains(t, page, `data-kpi="total_tracked"`)
	assert.Contains(t, page, `data-kpi="new_alerts"`)
	assert.NotContains(t, page, `data-kpi="proof_score"`)
	assert.Contains(t, page, "AIR &lt;b&gt;")
	assert.NotContains(t, page, "AIR <b>")
	assert.Contains(t, page, "DASHBOARD_DATA")
}

func TestHTMLToleratesShortSeries(t *testing.T) {
	s := snap(models.KPITotalTracked)
	s.Themes = models.Series{Labels: []string{"EAU", "AIR", "SOL"}, Values: []int{4, 2}}
	s.Criticite = models.Series{Labels: models.CriticiteLabels}

	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, s, DefaultCatalog, "", now))
	page := buf.String()
	assert.Contains(t, page, "<td>SOL</td><td class=\"n\">0</td>")
	assert.Contains(t, page, "</html>")

	buf.Reset()
	require.NoError(t, Terminal(&buf, s, DefaultCatalog, now))
	assert.Contains(t, buf.String(), "SOL")
}

func records() []models.Record {
	return []models.Record{
		{Row: 2, Title: "Arrêté ICPE", Theme: "ICPE", Compliance: "", Comments: "Vérifier les seuils", Criticite: "haute"},
		{Row: 3, Title: "Décret REP", Theme: "Déchets", Compliance: "À évaluer", Comments: "Mettre à jour le registre", TextType: "Pour info"},
		{Row: 4, Title: "Texte conforme", Theme: "Eau", Compliance: "Conforme", Comments: "RAS"},
		{Row: 5, Title: "Sans action", Theme: "Eau", Compliance: "", Comments: "Aucune action spécifiée"},
		{Row: 6, Title: "", Theme: "Eau", Compliance: "", Comments: "Lire"},
		{Row: 7, Title: "Note", Theme: "", Compliance: "", Comments: "Lire", Criticite: "Moyenne"},
	}
}

func TestBuildSheetNews(t *testing.T) {
	sheet := BuildSheet(records(), SheetNews, now)
	assert.Equal(t, register.News, sheet.Register)
	assert.Equal(t, 3, sheet.Total)
	assert.Equal(t, 3, sheet.MEC)
	assert.Equal(t, 1, sheet.Haute)
	assert.Equal(t, 1, sheet.Moyenne)
	assert.Equal(t, 1, sheet.Basse)

	var themes []string
	for _, sec := range sheet.Sections {
		themes = append(themes, sec.Theme)
	}
	assert.Equal(t, []string{"Déchets", "ICPE", "Non classé"}, themes)

	dechets := sheet.Sections[0].Items[0]
	assert.True(t, dechets.Informative)
	assert.Equal(t, "#", dechets.URL)
	assert.Equal(t, "Non spécifiée", dechets.ExpectedProof)
}

func TestBuildSheetBase(t *testing.T) {
	recs := []models.Record{
		{Row: 2, Title: "Échu", Theme: "Air", Compliance: "C", NextEvaluation: "01/01/2024", Comments: "Réévaluer"},
		{Row: 3, Title: "À jour", Theme: "Air", Compliance: "C", NextEvaluation: "01/01/2030", Comments: "RAS"},
		{Row: 4, Title: "Étude", Theme: "Air", Compliance: "En étude", Comments: "Analyser"},
	}
	sheet := BuildSheet(recs, SheetBase, now)
	assert.Equal(t, register.BaseActive, sheet.Register)
	require.Len(t, sheet.Sections, 1)
	items := sheet.Sections[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "REVAL", items[0].Type)
	assert.Equal(t, "MEC", items[1].Type)
	assert.Equal(t, 1, sheet.MEC)
}

func TestChecklistHTML(t *testing.T) {
	var buf bytes.Buffer
	sheet := BuildSheet(records(), SheetNews, now)
	require.NoError(t, Checklist(&buf, sheet, "http://localhost:5000"))
	page := buf.String()
	assert.Contains(t, page, "Fiche de Contrôle - Nouveautés")
	assert.Contains(t, page, `data-row="2"`)
	assert.Contains(t, page, "crit-haute")
	assert.Contains(t, page, "Tout (3)")
	assert.Equal(t, 2, strings.Count(page, "Dern. Éval"), "informative texts hide the evaluation tag")
	assert.Contains(t, page, "Rapport_Veille_Auto")
}

func TestHistory(t *testing.T) {
	recs := []store.SnapshotRecord{{
		ID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		CreatedAt: now.Add(-3 * time.Hour),
		Schema:    "v2",
		Snapshot:  snap(models.KPITotalTracked),
	}}
	var buf bytes.Buffer
	require.NoError(t, History(&buf, recs, now))
	out := buf.String()
	assert.Contains(t, out, "0f8fad5b")
	assert.NotContains(t, out, "0f8fad5b-d9cb")
	assert.Contains(t, out, "3 hours ago")
	assert.Contains(t, out, "1000")
}

func TestDiff(t *testing.T) {
	before := snap(models.KPITotalTracked, models.KPIApplicable)
	after := snap(models.KPITotalTracked)
	after.KPIs.Set(models.KPITotalTracked, models.Count(1010))
	after.Themes = models.NewSeries([]string{"EAU"}, []int{5})

	var buf bytes.Buffer
	require.NoError(t, Diff(&buf, before, after, DefaultCatalog))
	out := buf.String()
	assert.Contains(t, out, "Textes suivis")
	assert.Contains(t, out, "+10")
	assert.Contains(t, out, "retiré")
	assert.Contains(t, out, "Thèmes")
	assert.NotContains(t, out, "Criticité", "unchanged breakdowns are skipped")
}
