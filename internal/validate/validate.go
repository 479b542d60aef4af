// Package validate checks a dashboard snapshot for the structural
// properties its consumers rely on.
package validate

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"veilleboard/internal/models"
	"veilleboard/internal/snapshot"
)

//go:embed schema.json
var schemaDoc string

const schemaURL = "https://veilleboard.local/schemas/dashboard_stats.schema.json"

var ErrInvalid = errors.New("invalid snapshot")

// Severity ranks an issue.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// MarshalText lets severities encode as words.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Issue is one finding. Field is a dotted path into the payload.
type Issue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Message)
}

// Report collects the issues of one snapshot.
type Report struct {
	Issues []Issue `json:"issues"`
}

func (r *Report) add(sev Severity, field, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Field: field, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any issue is an error.
func (r Report) HasErrors() bool {
	return slices.ContainsFunc(r.Issues, func(i Issue) bool { return i.Severity == Error })
}

// Count returns the number of issues of a severity.
func (r Report) Count(sev Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// Err joins the error-level issues, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, i := range r.Issues {
		if i.Severity == Error {
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, i.Field, i.Message))
		}
	}
	return errors.Join(errs...)
}

// Strings renders every issue on one line each.
func (r Report) Strings() []string {
	out := make([]string, 0, len(r.Issues))
	for _, i := range r.Issues {
		out = append(out, i.String())
	}
	return out
}

var percentRe = regexp.MustCompile(`^\d{1,3}%$`)

// Check runs the structural checks on a decoded snapshot.
func Check(s models.Snapshot) Report {
	var r Report

	if _, err := time.Parse(models.LastUpdateLayout, s.LastUpdate); err != nil {
		r.add(Error, "last_update", "%q is not in DD/MM/YYYY HH:MM form", s.LastUpdate)
	}

	checkKPIs(&r, s.KPIs)

	if len(s.Themes.Labels) != len(s.Themes.Values) {
		r.add(Error, "themes", "%d labels for %d values", len(s.Themes.Labels), len(s.Themes.Values))
	}
	checkNonNegative(&r, "themes", s.Themes)
	checkFixed(&r, "compliance", s.Compliance, models.ComplianceLabels)
	checkFixed(&r, "criticite", s.Criticite, models.CriticiteLabels)

	if total, ok := s.KPIs.Get(models.KPITotalTracked); ok && total.Kind == models.KindCount {
		if sum := s.Criticite.Sum(); sum != total.Count {
			r.add(Warning, "criticite", "values sum to %d, total_tracked is %d", sum, total.Count)
		}
	}
	if applicable, ok := s.KPIs.Get(models.KPIApplicable); ok && applicable.Kind == models.KindCount {
		if sum := s.Compliance.Sum(); sum != applicable.Count {
			r.add(Info, "compliance", "values sum to %d for %d applicable texts; %d come from new items",
				sum, applicable.Count, sum-applicable.Count)
		}
	}
	return r
}

func checkKPIs(r *Report, kpis models.KPIs) {
	if len(kpis) == 0 {
		r.add(Warning, "kpis", "no KPI present")
	}
	for _, kpi := range kpis {
		field := "kpis." + kpi.Name
		switch kpi.Value.Kind {
		case models.KindCount:
			if kpi.Value.Count < 0 {
				r.add(Error, field, "negative count %d", kpi.Value.Count)
			}
		case models.KindPercent:
			p := kpi.Value.Percent
			switch {
			case percentRe.MatchString(p):
				if n, _ := strconv.Atoi(strings.TrimSuffix(p, "%")); n > 100 {
					r.add(Error, field, "percentage %s above 100%%", p)
				}
			case strings.HasSuffix(p, "%"):
				r.add(Error, field, "%q is not a whole percentage", p)
			default:
				r.add(Warning, field, "unknown value kind %q", p)
			}
		default:
			r.add(Warning, field, "unknown value kind %s", kpi.Value.Kind)
		}
	}
}

func checkNonNegative(r *Report, field string, s models.Series) {
	for i, v := range s.Values {
		if v < 0 {
			r.add(Error, fmt.Sprintf("%s.values[%d]", field, i), "negative count %d", v)
		}
	}
}

func checkFixed(r *Report, field string, s models.Series, want []string) {
	if len(s.Values) != len(want) {
		r.add(Error, field+".values", "expected %d values, got %d", len(want), len(s.Values))
	}
	if !slices.Equal(s.Labels, want) {
		r.add(Error, field+".labels", "expected %s, got %s", quoted(want), quoted(s.Labels))
	}
	checkNonNegative(r, field, s)
}

func quoted(labels []string) string {
	q := make([]string, len(labels))
	for i, l := range labels {
		q[i] = strconv.Quote(l)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaDoc)); err != nil {
			compileErr = fmt.Errorf("snapshot schema load failed: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("snapshot schema compile failed: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// CheckRaw validates a JSON or JavaScript payload against the snapshot schema,
// then decodes it and runs Check. Schema violations are errors.
func CheckRaw(data []byte) Report {
	var r Report
	obj, err := snapshot.Extract(data)
	if err != nil {
		r.add(Error, "$", "%v", err)
		return r
	}

	sch, err := schema()
	if err != nil {
		r.add(Error, "$", "%v", err)
		return r
	}
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		r.add(Error, "$", "%v", err)
		return r
	}
	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			for _, leaf := range leaves(verr) {
				r.add(Error, pointerToField(leaf.InstanceLocation), "%s", leaf.Message)
			}
		} else {
			r.add(Error, "$", "%v", err)
		}
		return r
	}

	s, err := snapshot.Decode(obj)
	if err != nil {
		r.add(Error, "$", "%v", err)
		return r
	}
	decoded := Check(s)
	r.Issues = append(r.Issues, decoded.Issues...)
	return r
}

// leaves flattens a validation error tree down to its most specific causes.
func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// pointerToField turns "/themes/values/2" into "themes.values.2".
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "$"
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}
