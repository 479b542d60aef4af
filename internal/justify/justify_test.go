package justify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilleboard/internal/register"
)

type fakeClient struct {
	calls   []string
	failFor string
}

func (f *fakeClient) Request(_, prompt string) (string, error) {
	f.calls = append(f.calls, prompt)
	if f.failFor != "" && strings.Contains(prompt, f.failFor) {
		return "", errors.New("model unavailable")
	}
	return "Concerné par le stockage car seuil ICPE. Preuve de conformité : registre.", nil
}

func baseRegister(t *testing.T) *register.Register {
	t.Helper()
	csv := "Intitulé;Thème;Commentaires;Preuve de Conformité Attendue\n" +
		"Arrêté 2560;ICPE;Contrôle;\n" +
		"Arrêté 2560;ICPE;Contrôle;\n" +
		"Loi AGEC;DECHETS;Tri;Déjà justifié\n" +
		";EAU;;\n" +
		"Décret eau;EAU;Rejets;\n"
	path := filepath.Join(t.TempDir(), "base_active.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
	reg, err := register.Load(path, register.BaseActive)
	require.NoError(t, err)
	return reg
}

func TestRunFillsMissingProofsOnce(t *testing.T) {
	reg := baseRegister(t)
	client := &fakeClient{}
	j := New(client, "")
	var progress []int
	j.OnProgress = func(done, total int, _ string) { progress = append(progress, done) }

	res, err := j.Run(context.Background(), reg, 0)
	require.NoError(t, err)
	assert.Equal(t, Result{Justified: 3, Skipped: 2}, res)
	assert.Len(t, client.calls, 2, "duplicate titles reuse the answer")
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Contains(t, client.calls[0], DefaultSiteContext)

	again, err := register.Load(reg.Path, register.BaseActive)
	require.NoError(t, err)
	recs := again.Records()
	assert.True(t, strings.HasPrefix(recs[1].ExpectedProof, "Concerné par"))
	assert.Equal(t, "Déjà justifié", recs[2].ExpectedProof)
	assert.Equal(t, "", recs[3].ExpectedProof)
}

func TestRunCountsFailuresAndHonoursLimit(t *testing.T) {
	reg := baseRegister(t)
	client := &fakeClient{failFor: "Décret eau"}

	res, err := New(client, "Atelier").Run(context.Background(), reg, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Justified)

	reg = baseRegister(t)
	res, err = New(&fakeClient{}, "").Run(context.Background(), reg, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Justified)
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := baseRegister(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(&fakeClient{}, "").Run(ctx, reg, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Justified)
}

func TestLoadSiteContext(t *testing.T) {
	got, err := LoadSiteContext("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSiteContext, got)

	path := filepath.Join(t.TempDir(), "site.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("é", 2000)), 0o644))
	got, err = LoadSiteContext(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "(contexte tronqué)"))

	_, err = LoadSiteContext(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrompt(t *testing.T) {
	p := Prompt("Atelier", "Arrêté 2560", "ICPE", "Contrôle")
	assert.Contains(t, p, "- Titre : Arrêté 2560")
	assert.Contains(t, p, "CONTEXTE DU SITE :\nAtelier")
}
