// Package metrics exposes the last generated dashboard as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veilleboard/internal/models"
)

// Generation outcomes counted by veille_generations_total.
const (
	ResultOK      = "ok"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Collector holds the dashboard metrics on its own registry.
type Collector struct {
	mu          sync.Mutex
	registry    *prometheus.Registry
	kpi         *prometheus.GaugeVec
	themes      *prometheus.GaugeVec
	compliance  *prometheus.GaugeVec
	criticite   *prometheus.GaugeVec
	generations *prometheus.CounterVec
}

// New registers the dashboard metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		kpi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veille_kpi",
			Help: "Dashboard KPI value; percentages are exported as their number.",
		}, []string{"name"}),
		themes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veille_theme_items",
			Help: "Regulatory texts per theme.",
		}, []string{"theme"}),
		compliance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veille_compliance_items",
			Help: "Applicable texts per compliance status.",
		}, []string{"status"}),
		criticite: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veille_criticite_items",
			Help: "Texts per criticité level.",
		}, []string{"level"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veille_generations_total",
			Help: "Dashboard generations by result.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(c.kpi, c.themes, c.compliance, c.criticite, c.generations)
	return c
}

// Observe replaces the gauges with the values of s.
func (c *Collector) Observe(s models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kpi.Reset()
	for _, k := range s.KPIs {
		if v, ok := Number(k.Value); ok {
			c.kpi.WithLabelValues(k.Name).Set(v)
		}
	}
	setSeries(c.themes, s.Themes)
	setSeries(c.compliance, s.Compliance)
	setSeries(c.criticite, s.Criticite)
}

func setSeries(g *prometheus.GaugeVec, s models.Series) {
	g.Reset()
	for i, label := range s.Labels {
		if i < len(s.Values) {
			g.WithLabelValues(label).Set(float64(s.Values[i]))
		}
	}
}

// Generation counts one generation with the given result.
func (c *Collector) Generation(result string) {
	c.generations.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Number reads a KPI value as a float: counts as is, "NN%" as NN.
func Number(v models.KPIValue) (float64, bool) {
	if v.Kind == models.KindCount {
		return float64(v.Count), true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v.String()), "%"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
