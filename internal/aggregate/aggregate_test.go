package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"veilleboard/internal/classify"
	"veilleboard/internal/models"
)

var fixedNow = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

func opts(schema Schema) Options {
	return Options{
		Now:         func() time.Time { return fixedNow },
		Schema:      schema,
		CleanThemes: true,
	}
}

func sampleBase() []models.Record {
	return []models.Record{
		{Title: "Arrêté déchets", Theme: "Déchets", Compliance: "C", NextEvaluation: "01/01/2030", Criticite: "Haute", ProofsAvailable: "Oui"},
		{Title: "Tri des biodéchets", Theme: "Déchets", Compliance: "NC", Criticite: "moyenne"},
		{Title: "Rejets aqueux", Theme: "Eau", Compliance: "Conforme", NextEvaluation: "01/01/2020", Criticite: "Haute", ProofsAvailable: "oui"},
		{Title: "Note de service", Theme: "Divers", Compliance: "Sans objet", Criticite: ""},
		{Title: "Ancien texte", Theme: "Eau", Compliance: "Archivé", Criticite: "critique"},
		{Title: "Texte en cours", Theme: "Eau", Compliance: "À évaluer", Criticite: "Basse"},
	}
}

func sampleNews() []models.Record {
	return []models.Record{
		{Title: "Nouveau décret", Compliance: "À évaluer", Source: "Veille Auto"},
		{Title: "Nouvel arrêté", Compliance: "", Source: "Veille Auto"},
		{Title: "Note", Compliance: "Sans objet", Source: "Manuel"},
	}
}

func TestBuildV2(t *testing.T) {
	s := Build(sampleBase(), sampleNews(), opts(SchemaV2))

	assert.Equal(t, "15/06/2025 09:30", s.LastUpdate)
	assert.Equal(t, []string{
		models.KPITotalTracked, models.KPIApplicable, models.KPIActionsRequired,
		models.KPISubMEC, models.KPISubReeval, models.KPISubQualif,
		models.KPIAlertsIA, models.KPIProofScore,
	}, s.KPIs.Names())

	get := func(name string) string {
		v, ok := s.KPIs.Get(name)
		require.True(t, ok, name)
		return v.String()
	}
	assert.Equal(t, "6", get(models.KPITotalTracked))
	assert.Equal(t, "4", get(models.KPIApplicable))
	assert.Equal(t, "1", get(models.KPISubMEC))
	assert.Equal(t, "1", get(models.KPISubReeval))
	assert.Equal(t, "0", get(models.KPISubQualif))
	assert.Equal(t, "2", get(models.KPIActionsRequired))
	assert.False(t, s.KPIs.Has(models.KPINewAlerts))
	assert.Equal(t, "2", get(models.KPIAlertsIA))
	assert.Equal(t, "50%", get(models.KPIProofScore))

	// C not due: 1; NC: 1; to evaluate: (4-1-1) + 1 applicable news.
	assert.Equal(t, models.ComplianceLabels, s.Compliance.Labels)
	assert.Equal(t, []int{1, 1, 3}, s.Compliance.Values)

	assert.Equal(t, models.CriticiteLabels, s.Criticite.Labels)
	assert.Equal(t, []int{2, 1, 3}, s.Criticite.Values)

	assert.Equal(t, []string{classify.ThemeEau, classify.ThemeDechets, classify.ThemeAdministration}, s.Themes.Labels)
	assert.Equal(t, []int{3, 2, 1}, s.Themes.Values)
}

func TestBuildV1OmitsIAKeys(t *testing.T) {
	s := Build(sampleBase(), sampleNews(), opts(SchemaV1))
	assert.False(t, s.KPIs.Has(models.KPIAlertsIA))
	assert.False(t, s.KPIs.Has(models.KPIProofScore))
	assert.True(t, s.KPIs.Has(models.KPINewAlerts))
}

func TestBuildEmpty(t *testing.T) {
	s := Build(nil, nil, opts(SchemaV2))
	v, ok := s.KPIs.Get(models.KPIProofScore)
	require.True(t, ok)
	assert.Equal(t, "0%", v.String())
	assert.NotNil(t, s.Themes.Labels)
	assert.Empty(t, s.Themes.Labels)
	assert.Equal(t, []int{0, 0, 0}, s.Compliance.Values)
	assert.Equal(t, []int{0, 0, 0}, s.Criticite.Values)
}

func TestCountThemesRawAndTop(t *testing.T) {
	base := []models.Record{
		{Theme: "B"}, {Theme: "A"}, {Theme: " "}, {Theme: "A"}, {Theme: "C"}, {Theme: "B"},
	}
	labels, values := CountThemes(base, false, 3)
	assert.Equal(t, []string{"B", "A", classify.ThemeUnclassified}, labels)
	assert.Equal(t, []int{2, 2, 1}, values)
}

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema("V1")
	require.NoError(t, err)
	assert.Equal(t, SchemaV1, s)

	s, err = ParseSchema("")
	require.NoError(t, err)
	assert.Equal(t, SchemaV2, s)

	_, err = ParseSchema("v3")
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func genRecord(t *rapid.T, label string) models.Record {
	return models.Record{
		Title:           rapid.SampledFrom([]string{"", "Arrêté", "Décret eau", "Loi AGEC"}).Draw(t, label+"title"),
		Theme:           rapid.SampledFrom([]string{"", "Eau", "Air", "Déchets", "Divers", "Bruit", "X", "Y"}).Draw(t, label+"theme"),
		Compliance:      rapid.SampledFrom([]string{"", "C", "NC", "Conforme", "non conforme", "Sans objet", "Archivé", "À évaluer"}).Draw(t, label+"compliance"),
		NextEvaluation:  rapid.SampledFrom([]string{"", "nan", "01/01/2020", "2030-01-01", "??"}).Draw(t, label+"next"),
		Criticite:       rapid.SampledFrom([]string{"", "Haute", "moyenne", "BASSE", "critique"}).Draw(t, label+"crit"),
		ProofsAvailable: rapid.SampledFrom([]string{"", "Oui", "Non"}).Draw(t, label+"proof"),
		Source:          rapid.SampledFrom([]string{"", "Veille Auto", "Manuel"}).Draw(t, label+"source"),
	}
}

func TestBuildProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.SliceOf(rapid.Custom(func(t *rapid.T) models.Record { return genRecord(t, "b") })).Draw(t, "base")
		news := rapid.SliceOf(rapid.Custom(func(t *rapid.T) models.Record { return genRecord(t, "n") })).Draw(t, "news")
		top := rapid.IntRange(1, 12).Draw(t, "top")

		o := opts(SchemaV2)
		o.TopThemes = top
		s := Build(base, news, o)
		c := Count(base, news, fixedNow)

		if s.Criticite.Sum() != len(base) {
			t.Fatalf("criticite sums to %d, want %d", s.Criticite.Sum(), len(base))
		}
		if len(s.Themes.Labels) != len(s.Themes.Values) || len(s.Themes.Labels) > top {
			t.Fatalf("themes: %d labels, %d values, top %d", len(s.Themes.Labels), len(s.Themes.Values), top)
		}
		for i := 1; i < len(s.Themes.Values); i++ {
			if s.Themes.Values[i] > s.Themes.Values[i-1] {
				t.Fatalf("themes not sorted: %v", s.Themes.Values)
			}
		}
		if s.Compliance.Sum() != c.Applicable+c.NewsInUse {
			t.Fatalf("compliance sums to %d, want %d", s.Compliance.Sum(), c.Applicable+c.NewsInUse)
		}
		for _, v := range s.Compliance.Values {
			if v < 0 {
				t.Fatalf("negative compliance value %v", s.Compliance.Values)
			}
		}
		actions, _ := s.KPIs.Get(models.KPIActionsRequired)
		if actions.Count != c.MEC+c.Reeval+c.Qualif {
			t.Fatalf("actions_required %d != %d", actions.Count, c.Actions())
		}
		if len(s.Compliance.Labels) != 3 || len(s.Criticite.Labels) != 3 {
			t.Fatalf("fixed breakdowns must have three labels")
		}
	})
}
