package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilleboard/config"
	"veilleboard/internal/metrics"
	"veilleboard/internal/models"
	"veilleboard/internal/snapshot"
	"veilleboard/internal/store"
)

const baseCSV = "Intitulé;Thème;Conformité;date de la prochaine évaluation;Criticité;Commentaires;Preuves disponibles\n" +
	"Arrêté 2560;ICPE;C;01/01/2030;Haute;Contrôle annuel;oui\n" +
	"Décret eau;EAU;NC;;Moyenne;Rejets;\n" +
	"Loi AGEC;DECHETS;C;01/01/2020;Basse;Tri;\n"

const newsCSV = "Intitulé;Thème;Conformité;Sources;Statut;Commentaires\n" +
	"Note ministérielle;EAU;;Veille Auto;Nouveau;Lecture\n"

var fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type env struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Collector
	engine  *GenerationEngine
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sources.BaseActive = filepath.Join(dir, "base_active.csv")
	cfg.Sources.News = filepath.Join(dir, "rapport_veille_auto.csv")
	cfg.Output.Dir = filepath.Join(dir, "output")
	cfg.Store.Path = ":memory:"
	cfg.Store.Retain = 2
	require.NoError(t, os.WriteFile(cfg.Sources.BaseActive, []byte(baseCSV), 0o644))
	require.NoError(t, os.WriteFile(cfg.Sources.News, []byte(newsCSV), 0o644))
	config.AppConfig = cfg

	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mc := metrics.New()
	engine := NewGenerationEngine(cfg, st, mc)
	engine.now = func() time.Time { return fixedNow }
	return env{cfg: cfg, store: st, metrics: mc, engine: engine}
}

func kpi(t *testing.T, s models.Snapshot, name string) int {
	t.Helper()
	v, ok := s.KPIs.Get(name)
	require.True(t, ok, "missing KPI %s", name)
	return v.Count
}

func TestEngineRun(t *testing.T) {
	e := newEnv(t)
	res, err := e.engine.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Paths, 2)
	for _, p := range res.Paths {
		assert.FileExists(t, p)
	}
	assert.Equal(t, "15/06/2025 10:00", res.Snapshot.LastUpdate)
	assert.Equal(t, 3, kpi(t, res.Snapshot, models.KPITotalTracked))
	assert.Equal(t, 2, kpi(t, res.Snapshot, models.KPIActionsRequired))
	assert.Equal(t, 1, kpi(t, res.Snapshot, models.KPIAlertsIA))
	assert.Equal(t, []int{1, 1, 1}, res.Snapshot.Compliance.Values)
	assert.False(t, res.Report.HasErrors())

	onDisk, err := snapshot.ReadFile(res.Paths[0])
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.KPIs.Names(), onDisk.KPIs.Names())

	stored, err := e.store.GetSnapshot(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Schema)

	assert.Equal(t, 1, testutil.CollectAndCount(e.metrics.Registry(), "veille_generations_total"))
}

func TestEnginePrunesHistory(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 4; i++ {
		e.engine.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		_, err := e.engine.Run(context.Background())
		require.NoError(t, err)
	}
	recs, err := e.store.LatestSnapshots(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, "15/06/2025 10:03", recs[0].LastUpdate)
}

func TestEngineMissingNewsCountsAsEmpty(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.Remove(e.cfg.Sources.News))
	res, err := e.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, kpi(t, res.Snapshot, models.KPIAlertsIA))
	assert.Equal(t, []int{1, 1, 1}, res.Snapshot.Compliance.Values)
}

func TestEngineErrors(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.Remove(e.cfg.Sources.BaseActive))
	_, err := e.engine.Run(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	e = newEnv(t)
	e.cfg.Dashboard.KPISchema = "v9"
	_, err = e.engine.Run(context.Background())
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(e.cfg.Output.Dir, snapshot.JSFile))
}

func TestEngineLatestFallsBackToFile(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Latest(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	res, err := NewGenerationEngine(e.cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	got, err := e.engine.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.KPIs.Names(), got.KPIs.Names())
}

func TestEnginePatchReachesLatest(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Run(context.Background())
	require.NoError(t, err)

	res, err := e.engine.Patch(context.Background(), models.KPIProofScore, "77%")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)

	got, err := e.engine.Latest(context.Background())
	require.NoError(t, err)
	v, ok := got.KPIs.Get(models.KPIProofScore)
	require.True(t, ok)
	assert.Equal(t, "77%", v.String())

	for _, name := range []string{snapshot.JSFile, snapshot.JSONFile} {
		onDisk, err := snapshot.ReadFile(filepath.Join(e.cfg.Output.Dir, name))
		require.NoError(t, err)
		v, _ := onDisk.KPIs.Get(models.KPIProofScore)
		assert.Equal(t, "77%", v.String(), name)
	}

	recs, err := e.store.LatestSnapshots(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestEnginePatchRejectsInvalidValue(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Run(context.Background())
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(e.cfg.Output.Dir, snapshot.JSONFile))
	require.NoError(t, err)

	res, err := e.engine.Patch(context.Background(), models.KPIProofScore, "150%")
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
	assert.True(t, res.Report.HasErrors())

	after, err := os.ReadFile(filepath.Join(e.cfg.Output.Dir, snapshot.JSONFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	recs, err := e.store.LatestSnapshots(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
