package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"veilleboard/config"
	"veilleboard/internal/aggregate"
	"veilleboard/internal/metrics"
	"veilleboard/internal/models"
	"veilleboard/internal/register"
	"veilleboard/internal/snapshot"
	"veilleboard/internal/store"
	"veilleboard/internal/validate"
)

// ErrInvalidSnapshot is returned when a generated snapshot fails validation.
// Nothing is written in that case.
var ErrInvalidSnapshot = errors.New("generated snapshot is invalid")

// GenerationResult is the outcome of one run.
type GenerationResult struct {
	RunID    string
	Paths    []string
	Snapshot models.Snapshot
	Counts   aggregate.Counts
	Report   validate.Report
}

// Response converts the result for the HTTP API.
func (r GenerationResult) Response() models.GenerateResponse {
	issues := r.Report.Strings()
	if issues == nil {
		issues = []string{}
	}
	return models.GenerateResponse{RunID: r.RunID, Paths: r.Paths, Issues: issues, Snapshot: r.Snapshot}
}

// GenerationEngine computes the dashboard data from the registers.
type GenerationEngine struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Collector
	now     func() time.Time
}

// NewGenerationEngine creates an engine. The store and the collector are optional.
func NewGenerationEngine(cfg *config.Config, st *store.Store, mc *metrics.Collector) *GenerationEngine {
	return &GenerationEngine{cfg: cfg, store: st, metrics: mc, now: time.Now}
}

// step reports progress; Run passes a no-op.
type step func(eventType, step, message string, data any)

// Run performs a full generation.
func (e *GenerationEngine) Run(ctx context.Context) (GenerationResult, error) {
	return e.run(ctx, func(string, string, string, any) {})
}

// RunStreaming performs a generation and reports each step as a Server-Sent Event.
func (e *GenerationEngine) RunStreaming(ctx context.Context, w http.ResponseWriter) {
	res, err := e.run(ctx, func(eventType, stepName, message string, data any) {
		sendSSEEvent(w, models.ProgressEvent{Type: eventType, Step: stepName, Message: message, Data: data})
	})
	if err != nil {
		sendSSEEvent(w, models.ProgressEvent{Type: "error", Step: "generate", Message: err.Error(), Data: res.Report.Strings()})
		return
	}
	sendSSEEvent(w, models.ProgressEvent{Type: "result", Step: "complete", Message: "Dashboard generated", Data: res.Response()})
}

func (e *GenerationEngine) run(ctx context.Context, progress step) (res GenerationResult, err error) {
	defer func() {
		if e.metrics == nil {
			return
		}
		switch {
		case errors.Is(err, ErrInvalidSnapshot):
			e.metrics.Generation(metrics.ResultInvalid)
		case err != nil:
			e.metrics.Generation(metrics.ResultError)
		default:
			e.metrics.Generation(metrics.ResultOK)
		}
	}()

	schema, err := aggregate.ParseSchema(e.cfg.Dashboard.KPISchema)
	if err != nil {
		return res, err
	}

	logrus.Info("1. Loading registers...")
	progress("step", "load", "Loading registers...", nil)
	base, err := register.Load(e.cfg.Sources.BaseActive, register.BaseActive)
	if err != nil {
		return res, err
	}
	news, err := loadOptional(e.cfg.Sources.News, register.News)
	if err != nil {
		return res, err
	}
	progress("step", "load", fmt.Sprintf("%d texts in %s, %d in %s", base.Len(), base.Name, news.Len(), news.Name), nil)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	logrus.Info("2. Aggregating...")
	progress("step", "aggregate", "Computing indicators...", nil)
	now := e.now()
	baseRecs, newsRecs := base.Records(), news.Records()
	res.Counts = aggregate.Count(baseRecs, newsRecs, now)
	res.Snapshot = aggregate.Build(baseRecs, newsRecs, aggregate.Options{
		Now:         func() time.Time { return now },
		Schema:      schema,
		TopThemes:   e.cfg.Dashboard.TopThemes,
		CleanThemes: e.cfg.Dashboard.CleanThemes,
		AutoSource:  e.cfg.Dashboard.AutoSource,
	})
	logrus.WithFields(logrus.Fields{
		"total":      res.Counts.Total,
		"applicable": res.Counts.Applicable,
		"actions":    res.Counts.Actions(),
		"news":       res.Counts.News,
	}).Info("Indicators computed")

	logrus.Info("3. Validating...")
	progress("step", "validate", "Checking the snapshot...", nil)
	res.Report = validate.Check(res.Snapshot)
	for _, issue := range res.Report.Issues {
		logrus.Warn(issue.String())
	}
	if res.Report.HasErrors() {
		return res, fmt.Errorf("%w: %w", ErrInvalidSnapshot, res.Report.Err())
	}

	logrus.Info("4. Writing data files...")
	progress("step", "write", "Writing data files...", nil)
	res.Paths, err = snapshot.WriteFiles(e.cfg.Output.Dir, res.Snapshot, e.cfg.Output.JSVariable)
	if err != nil {
		return res, err
	}

	res.RunID = uuid.NewString()
	if e.store != nil {
		progress("step", "history", "Recording history...", nil)
		if err := e.record(ctx, res.RunID, now, schema, res.Snapshot); err != nil {
			return res, err
		}
	}
	if e.metrics != nil {
		e.metrics.Observe(res.Snapshot)
	}
	logrus.Infof("Dashboard generated (run %s): %v", res.RunID, res.Paths)
	return res, nil
}

// Patch sets one KPI in both data files and records the patched snapshot
// as a new history entry, so the server serves it. The patched payload
// must pass the schema and structural checks before anything is written.
func (e *GenerationEngine) Patch(ctx context.Context, name, value string) (GenerationResult, error) {
	var res GenerationResult
	schema, err := aggregate.ParseSchema(e.cfg.Dashboard.KPISchema)
	if err != nil {
		return res, err
	}

	paths := []string{
		filepath.Join(e.cfg.Output.Dir, snapshot.JSFile),
		jsonPath(e.cfg),
	}
	patched := make([][]byte, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return res, err
		}
		if patched[i], err = snapshot.PatchKPI(data, name, value); err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
		res.Report = validate.CheckRaw(patched[i])
		if res.Report.HasErrors() {
			return res, fmt.Errorf("%w: %s: %w", ErrInvalidSnapshot, path, res.Report.Err())
		}
	}
	if res.Snapshot, err = snapshot.Decode(patched[1]); err != nil {
		return res, err
	}

	for i, path := range paths {
		if err := snapshot.WriteAtomic(path, patched[i]); err != nil {
			return res, fmt.Errorf("could not write %s: %w", path, err)
		}
		logrus.Infof("Patched %s in %s", name, path)
	}
	res.Paths = paths

	res.RunID = uuid.NewString()
	if e.store != nil {
		if err := e.record(ctx, res.RunID, e.now(), schema, res.Snapshot); err != nil {
			return res, err
		}
	}
	if e.metrics != nil {
		e.metrics.Observe(res.Snapshot)
	}
	return res, nil
}

// record saves a snapshot in the history and prunes it to the retention.
func (e *GenerationEngine) record(ctx context.Context, id string, at time.Time, schema aggregate.Schema, snap models.Snapshot) error {
	if err := e.store.SaveSnapshot(ctx, id, at, string(schema), snap); err != nil {
		return err
	}
	if e.cfg.Store.Retain <= 0 {
		return nil
	}
	pruned, err := e.store.Prune(ctx, e.cfg.Store.Retain)
	if err != nil {
		return err
	}
	if pruned > 0 {
		logrus.Debugf("Pruned %d old snapshots", pruned)
	}
	return nil
}

// loadOptional reads a register that may not exist yet.
func loadOptional(path, name string) (*register.Register, error) {
	if path == "" {
		return register.New(name, nil), nil
	}
	reg, err := register.Load(path, name)
	if errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("Register %s not found at %s, counted as empty", name, path)
		return register.New(name, nil), nil
	}
	return reg, err
}

// Latest returns the most recent snapshot: from the history when there is
// one, otherwise from the JSON data file.
func (e *GenerationEngine) Latest(ctx context.Context) (models.Snapshot, error) {
	if e.store != nil {
		recs, err := e.store.LatestSnapshots(ctx, 1)
		if err != nil {
			return models.Snapshot{}, err
		}
		if len(recs) > 0 {
			return recs[0].Snapshot, nil
		}
	}
	return snapshot.ReadFile(jsonPath(e.cfg))
}

func jsonPath(cfg *config.Config) string {
	return filepath.Join(cfg.Output.Dir, snapshot.JSONFile)
}

// sendSSEEvent writes one Server-Sent Event and flushes it.
func sendSSEEvent(w http.ResponseWriter, event models.ProgressEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
