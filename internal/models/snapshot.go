package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// LastUpdateLayout is the DD/MM/YYYY HH:MM format of Snapshot.LastUpdate.
const LastUpdateLayout = "02/01/2006 15:04"

// KPI keys emitted by the generator. The set differs between schema versions.
const (
	KPITotalTracked    = "total_tracked"
	KPIApplicable      = "applicable"
	KPIActionsRequired = "actions_required"
	KPISubMEC          = "sub_mec"
	KPISubReeval       = "sub_reeval"
	KPISubQualif       = "sub_qualif"
	KPINewAlerts       = "new_alerts"
	KPIAlertsIA        = "alerts_ia"
	KPIProofScore      = "proof_score"
)

// Fixed vocabularies of the compliance and criticité breakdowns.
var (
	ComplianceLabels = []string{"Conforme", "Non Conforme", "À évaluer"}
	CriticiteLabels  = []string{"Haute", "Moyenne", "Basse"}
)

// Snapshot is one generation of the dashboard data file.
type Snapshot struct {
	LastUpdate string `json:"last_update"`
	KPIs       KPIs   `json:"kpis"`
	Themes     Series `json:"themes"`
	Compliance Series `json:"compliance"`
	Criticite  Series `json:"criticite"`
}

// Series is a pair of index-aligned label and count arrays.
type Series struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// NewSeries returns a series with non-nil slices so it always encodes as arrays.
func NewSeries(labels []string, values []int) Series {
	if labels == nil {
		labels = []string{}
	}
	if values == nil {
		values = []int{}
	}
	return Series{Labels: labels, Values: values}
}

// Sum adds up the values.
func (s Series) Sum() int {
	total := 0
	for _, v := range s.Values {
		total += v
	}
	return total
}

// At returns the value at index i, or 0 when the values array is shorter than the labels.
func (s Series) At(i int) int {
	if i < 0 || i >= len(s.Values) {
		return 0
	}
	return s.Values[i]
}

// Value returns the count attached to label.
func (s Series) Value(label string) (int, bool) {
	for i, l := range s.Labels {
		if l == label && i < len(s.Values) {
			return s.Values[i], true
		}
	}
	return 0, false
}

// KPIKind tags the variant held by a KPIValue.
type KPIKind int

const (
	KindCount KPIKind = iota
	KindPercent
)

func (k KPIKind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindPercent:
		return "percent"
	default:
		return "unknown"
	}
}

// KPIValue is either an integer counter or a percentage string such as "42%".
// Percent also carries any other text found in a decoded payload; validation flags it.
type KPIValue struct {
	Kind    KPIKind
	Count   int
	Percent string
}

// Count builds a counter value.
func Count(n int) KPIValue { return KPIValue{Kind: KindCount, Count: n} }

// Percent builds a percentage value from a whole number.
func Percent(p int) KPIValue { return KPIValue{Kind: KindPercent, Percent: fmt.Sprintf("%d%%", p)} }

// RawPercent keeps a percentage string as found.
func RawPercent(s string) KPIValue { return KPIValue{Kind: KindPercent, Percent: s} }

func (v KPIValue) String() string {
	if v.Kind == KindCount {
		return strconv.Itoa(v.Count)
	}
	return v.Percent
}

// MarshalJSON writes counts as numbers and percentages as strings.
func (v KPIValue) MarshalJSON() ([]byte, error) {
	if v.Kind == KindCount {
		return []byte(strconv.Itoa(v.Count)), nil
	}
	return json.Marshal(v.Percent)
}

// UnmarshalJSON accepts a number or a string.
func (v *KPIValue) UnmarshalJSON(data []byte) error {
	*v = valueFromResult(gjson.ParseBytes(data))
	return nil
}

func valueFromResult(r gjson.Result) KPIValue {
	switch r.Type {
	case gjson.Number:
		// Fractional or out of int range: keep the text for validation to flag.
		if r.Num != math.Trunc(r.Num) || r.Num >= float64(math.MaxInt) || r.Num < float64(math.MinInt) {
			return RawPercent(r.Raw)
		}
		return Count(int(r.Num))
	case gjson.String:
		return RawPercent(r.String())
	default:
		return RawPercent(r.Raw)
	}
}

// KPI is one named counter.
type KPI struct {
	Name  string
	Value KPIValue
}

// KPIs is an open, ordered mapping of counters. The key set is not stable
// across generator versions, so lookups report presence.
type KPIs []KPI

// Get returns the value stored under name.
func (k KPIs) Get(name string) (KPIValue, bool) {
	for _, kpi := range k {
		if kpi.Name == name {
			return kpi.Value, true
		}
	}
	return KPIValue{}, false
}

// Has reports whether name is present.
func (k KPIs) Has(name string) bool {
	_, ok := k.Get(name)
	return ok
}

// Set replaces the value under name in place, or appends it.
func (k *KPIs) Set(name string, v KPIValue) {
	for i := range *k {
		if (*k)[i].Name == name {
			(*k)[i].Value = v
			return
		}
	}
	*k = append(*k, KPI{Name: name, Value: v})
}

// Delete removes name if present.
func (k *KPIs) Delete(name string) {
	out := (*k)[:0]
	for _, kpi := range *k {
		if kpi.Name != name {
			out = append(out, kpi)
		}
	}
	*k = out
}

// Names lists the keys in order.
func (k KPIs) Names() []string {
	names := make([]string, 0, len(k))
	for _, kpi := range k {
		names = append(names, kpi.Name)
	}
	return names
}

// MarshalJSON writes an object keeping insertion order.
func (k KPIs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kpi := range k {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(kpi.Name)
		if err != nil {
			return nil, err
		}
		value, err := kpi.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping the payload's key order.
func (k *KPIs) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if r.Type == gjson.Null {
		*k = nil
		return nil
	}
	if !r.IsObject() {
		return fmt.Errorf("kpis: expected an object, got %s", r.Type)
	}
	out := KPIs{}
	r.ForEach(func(key, value gjson.Result) bool {
		out.Set(key.String(), valueFromResult(value))
		return true
	})
	*k = out
	return nil
}
