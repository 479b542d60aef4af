package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilleboard/internal/register"
)

var ingestAt = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

// fakeClient answers by keyword found in the prompt.
type fakeClient struct {
	answers map[string]string
	calls   int
}

func (f *fakeClient) Request(_, prompt string) (string, error) {
	f.calls++
	for k, v := range f.answers {
		if strings.Contains(prompt, k) {
			return v, nil
		}
	}
	return "", errors.New("model unavailable")
}

func registers(t *testing.T) (news, base *register.Register) {
	t.Helper()
	dir := t.TempDir()
	newsPath := filepath.Join(dir, "rapport_veille_auto.csv")
	require.NoError(t, os.WriteFile(newsPath, []byte("Mois;Intitulé;Thème;Sources;Lien Internet\n"+
		"décembre 2025;Note déjà vue;EAU;Veille Auto;https://ex.fr/vue\n"), 0o644))
	news, err := register.Load(newsPath, register.News)
	require.NoError(t, err)
	base = register.New(register.BaseActive, []string{"Intitulé", "Lien Internet"})
	base.Append(map[string]string{"Intitulé": "Arrêté 2560"})
	return news, base
}

func TestParseAnalysis(t *testing.T) {
	a := ParseAnalysis("```json\n{\"type_texte\": \"Décret\", \"theme\": \"ENERGIE\", \"criticite\": \"moyenne\", \"resume\": \"Décret tertiaire\", \"action\": \"Déclarer\"}\n```")
	assert.True(t, a.Relevant)
	assert.Equal(t, "Moyenne", a.Criticite)
	assert.Equal(t, "Décret", a.TextType)

	assert.False(t, ParseAnalysis(`{"criticite": "Non"}`).Relevant)
	assert.False(t, ParseAnalysis("Pas pertinent.").Relevant)
	assert.Equal(t, DefaultTextType, ParseAnalysis(`{"criticite": "Haute"}`).TextType)
}

func TestMonth(t *testing.T) {
	assert.Equal(t, "janvier 2026", Month(ingestAt))
	assert.Equal(t, "août 2025", Month(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)))
}

func TestRunAppendsRelevantTexts(t *testing.T) {
	news, base := registers(t)
	client := &fakeClient{answers: map[string]string{
		"Arrêté REP": `{"type_texte": "Arrêté", "theme": "DECHETS", "date_texte": "05/01/2026", "criticite": "Haute", "resume": "Nouvelle filière REP", "action": "Mettre à jour le registre", "preuve_attendue": "Registre déchets"}`,
		"Four à pizza": `{"criticite": "Non"}`,
		"Circulaire": `{"criticite": "Basse", "resume": "Information"}`,
	}}
	in := &Ingester{Client: client, SiteContext: "Site ICPE", Now: func() time.Time { return ingestAt }}

	res, err := in.Run(context.Background(), news, base, []Candidate{
		{Title: "Arrêté REP emballages", URL: "https://ex.fr/rep", Snippet: "filière"},
		{Title: "Arrêté REP emballages", URL: "https://ex.fr/rep-bis"},
		{Title: "Autre titre", URL: "https://ex.fr/vue"},
		{Title: "ARRETE 2560"},
		{Title: "Four à pizza en promotion"},
		{Title: "Circulaire d'information"},
		{Title: "Texte sans réponse"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 3, res.Duplicates)
	assert.Equal(t, 2, res.Irrelevant)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 4, client.calls)
	assert.Equal(t, []int{3}, res.Rows)

	again, err := register.Load(news.Path, register.News)
	require.NoError(t, err)
	rec, err := again.Record(3)
	require.NoError(t, err)
	assert.Equal(t, "Arrêté REP emballages", rec.Title)
	assert.Equal(t, "Veille Auto", rec.Source)
	assert.Equal(t, StatusToProcess, rec.Status)
	assert.Equal(t, NoProof, rec.ProofsAvailable)
	assert.Equal(t, "Haute", rec.Criticite)
	assert.Equal(t, "Nouvelle filière REP (Action: Mettre à jour le registre)", rec.Comments)
	assert.Equal(t, "Registre déchets", rec.ExpectedProof)
	assert.Equal(t, "https://ex.fr/rep", rec.URL)
	month, err := again.Cell(3, register.ColMonth)
	require.NoError(t, err)
	assert.Equal(t, "janvier 2026", month)
}

func TestRunWithoutAdditionsLeavesFileAlone(t *testing.T) {
	news, base := registers(t)
	before, err := os.ReadFile(news.Path)
	require.NoError(t, err)

	in := &Ingester{Client: &fakeClient{}}
	res, err := in.Run(context.Background(), news, base, []Candidate{{Title: "Texte"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	after, err := os.ReadFile(news.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoadCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"titre": "A", "url": "u", "snippet": "s"}, {"title": "B"}]`), 0o644))
	cands, err := LoadCandidates(path)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Title: "A", URL: "u", Snippet: "s"}, {Title: "B"}}, cands)

	require.NoError(t, os.WriteFile(path, []byte(`{"titre": "A"}`), 0o644))
	_, err = LoadCandidates(path)
	assert.Error(t, err)
}
