// Package aggregate turns the register rows into a dashboard snapshot.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"veilleboard/internal/classify"
	"veilleboard/internal/models"
)

// Schema selects the KPI key set of a snapshot.
type Schema string

const (
	// SchemaV1 emits the six volume counters plus new_alerts.
	SchemaV1 Schema = "v1"
	// SchemaV2 drops new_alerts for alerts_ia and proof_score.
	SchemaV2 Schema = "v2"
)

var ErrUnknownSchema = errors.New("aggregate: unknown KPI schema")

// ParseSchema accepts "v1" or "v2", case-insensitively. Blank means v2.
func ParseSchema(s string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SchemaV2):
		return SchemaV2, nil
	case string(SchemaV1):
		return SchemaV1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSchema, s)
	}
}

// DefaultTopThemes is the number of theme buckets kept in a snapshot.
const DefaultTopThemes = 12

// Options tune Build.
type Options struct {
	Now         func() time.Time
	Schema      Schema
	TopThemes   int
	CleanThemes bool
	// AutoSource is the Sources value of rows found by the automatic watch.
	AutoSource string
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Schema == "" {
		o.Schema = SchemaV2
	}
	if o.TopThemes <= 0 {
		o.TopThemes = DefaultTopThemes
	}
	if o.AutoSource == "" {
		o.AutoSource = "Veille Auto"
	}
	return o
}

// Counts is the breakdown behind the KPI block, kept for logging.
type Counts struct {
	Total      int
	Applicable int
	MEC        int
	Reeval     int
	Qualif     int
	Compliant  int
	NonComp    int
	ToEvaluate int
	WithProof  int
	News       int
	NewsAuto   int
	NewsInUse  int
}

// Actions is the number of texts needing work.
func (c Counts) Actions() int { return c.MEC + c.Reeval + c.Qualif }

// ProofScore is the share of applicable texts with a proof, in whole percent.
func (c Counts) ProofScore() int {
	if c.Applicable == 0 {
		return 0
	}
	return int(math.Round(100 * float64(c.WithProof) / float64(c.Applicable)))
}

// Count walks both registers once and tallies every category.
func Count(base, news []models.Record, now time.Time) Counts {
	c := Counts{Total: len(base), News: len(news)}
	for _, r := range base {
		if !classify.IsApplicable(r.Compliance) {
			continue
		}
		c.Applicable++
		if classify.HasProof(r.ProofsAvailable) {
			c.WithProof++
		}
		switch {
		case classify.IsNonCompliant(r.Compliance):
			c.MEC++
			c.NonComp++
		case classify.IsCompliant(r.Compliance):
			if classify.IsDue(r.NextEvaluation, now) {
				c.Reeval++
			} else {
				c.Compliant++
			}
		case strings.TrimSpace(r.Compliance) == "":
			// Unreachable while blank is out of scope; counted for the schema.
			c.Qualif++
		}
	}
	for _, r := range news {
		if classify.IsApplicable(r.Compliance) {
			c.NewsInUse++
		}
	}
	c.ToEvaluate = c.Applicable - c.Compliant - c.NonComp + c.NewsInUse
	return c
}

// Build computes the snapshot of the two registers.
func Build(base, news []models.Record, opts Options) models.Snapshot {
	opts = opts.withDefaults()
	now := opts.Now()
	c := Count(base, news, now)

	kpis := models.KPIs{}
	kpis.Set(models.KPITotalTracked, models.Count(c.Total))
	kpis.Set(models.KPIApplicable, models.Count(c.Applicable))
	kpis.Set(models.KPIActionsRequired, models.Count(c.Actions()))
	kpis.Set(models.KPISubMEC, models.Count(c.MEC))
	kpis.Set(models.KPISubReeval, models.Count(c.Reeval))
	kpis.Set(models.KPISubQualif, models.Count(c.Qualif))
	if opts.Schema == SchemaV1 {
		kpis.Set(models.KPINewAlerts, models.Count(c.News))
	} else {
		auto := 0
		for _, r := range news {
			if strings.EqualFold(strings.TrimSpace(r.Source), opts.AutoSource) {
				auto++
			}
		}
		kpis.Set(models.KPIAlertsIA, models.Count(auto))
		kpis.Set(models.KPIProofScore, models.Percent(c.ProofScore()))
	}

	labels, values := CountThemes(base, opts.CleanThemes, opts.TopThemes)

	return models.Snapshot{
		LastUpdate: now.Format(models.LastUpdateLayout),
		KPIs:       kpis,
		Themes:     models.NewSeries(labels, values),
		Compliance: models.NewSeries(
			append([]string(nil), models.ComplianceLabels...),
			[]int{c.Compliant, c.NonComp, c.ToEvaluate},
		),
		Criticite: CountCriticite(base),
	}
}

// CountThemes counts rows per theme, most frequent first. Ties keep the order
// in which themes first appear. At most top buckets are returned.
func CountThemes(base []models.Record, clean bool, top int) ([]string, []int) {
	counts := map[string]int{}
	var order []string
	for _, r := range base {
		var theme string
		if clean {
			theme = classify.CleanTheme(r.Theme, r.Title)
		} else {
			theme = classify.RawTheme(r.Theme)
		}
		if _, seen := counts[theme]; !seen {
			order = append(order, theme)
		}
		counts[theme]++
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if top > 0 && len(order) > top {
		order = order[:top]
	}

	labels := make([]string, len(order))
	values := make([]int, len(order))
	for i, t := range order {
		labels[i] = t
		values[i] = counts[t]
	}
	return labels, values
}

// CountCriticite tallies every base row by level; the values sum to len(base).
func CountCriticite(base []models.Record) models.Series {
	values := make([]int, len(models.CriticiteLabels))
	for _, r := range base {
		level := classify.NormalizeCriticite(r.Criticite)
		for i, l := range models.CriticiteLabels {
			if l == level {
				values[i]++
				break
			}
		}
	}
	return models.NewSeries(append([]string(nil), models.CriticiteLabels...), values)
}
