// Package ingest analyses candidate texts with a language model and appends
// the relevant ones to the automatic watch report.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"veilleboard/internal/classify"
	"veilleboard/internal/llm"
	"veilleboard/internal/register"
)

// Values written into every ingested row.
const (
	StatusToProcess = "A traiter"
	NoProof         = "Non"
	DefaultTextType = "Autre"
	DefaultSource   = "Veille Auto"
)

const systemMessage = `Rôle : Directeur QHSE expert en conformité industrielle.
Mission : évaluer l'applicabilité et l'impact d'un nouveau texte pour le site.
Ignore toute actualité commerciale ou produit grand public sans nouvelle règle pour l'usine : réponds {"criticite": "Non"}.
Grille : Haute = sanction immédiate ou arrêt possible ; Moyenne = mise en conformité requise ; Basse = information simple.
Réponds UNIQUEMENT en JSON avec les champs type_texte, theme, date_texte (JJ/MM/AAAA), resume, action, criticite, preuve_attendue.`

var months = [...]string{"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre"}

// Month formats t the way the Mois column is filled, e.g. "janvier 2026".
func Month(t time.Time) string {
	return fmt.Sprintf("%s %d", months[t.Month()-1], t.Year())
}

// Candidate is a text found by the watch, not yet analysed.
type Candidate struct {
	Title   string
	URL     string
	Snippet string
}

// Analysis is the model's reading of a candidate.
type Analysis struct {
	TextType      string
	Theme         string
	TextDate      string
	Summary       string
	Action        string
	Criticite     string
	ExpectedProof string
	// Relevant is false when the model answered "Non" or gave no usable JSON.
	Relevant bool
}

// Result summarises a run.
type Result struct {
	Added      int
	Duplicates int
	Irrelevant int
	Failed     int
	Rows       []int
}

// Ingester appends analysed candidates to the news register.
type Ingester struct {
	Client      llm.Client
	SiteContext string
	Source      string
	Now         func() time.Time
}

// Prompt builds the user prompt for one candidate.
func Prompt(siteContext string, c Candidate) string {
	var sb strings.Builder
	sb.WriteString("CONTEXTE DE L'ENTREPRISE :\n")
	sb.WriteString(siteContext)
	sb.WriteString("\n\nTEXTE À ANALYSER : '")
	sb.WriteString(strings.TrimSpace(c.Title + " " + c.Snippet))
	sb.WriteString("'")
	return sb.String()
}

// ParseAnalysis reads a model answer.
func ParseAnalysis(answer string) Analysis {
	res, ok := llm.ExtractJSON(answer)
	if !ok || !res.IsObject() {
		return Analysis{}
	}
	crit := strings.TrimSpace(res.Get("criticite").String())
	if crit == "" || strings.EqualFold(crit, "non") {
		return Analysis{}
	}
	a := Analysis{
		TextType:      strings.TrimSpace(res.Get("type_texte").String()),
		Theme:         strings.TrimSpace(res.Get("theme").String()),
		TextDate:      strings.TrimSpace(res.Get("date_texte").String()),
		Summary:       strings.TrimSpace(res.Get("resume").String()),
		Action:        strings.TrimSpace(res.Get("action").String()),
		Criticite:     classify.NormalizeCriticite(crit),
		ExpectedProof: strings.TrimSpace(res.Get("preuve_attendue").String()),
		Relevant:      true,
	}
	if a.TextType == "" {
		a.TextType = DefaultTextType
	}
	return a
}

// Row maps an analysed candidate onto the register columns.
func (in *Ingester) Row(c Candidate, a Analysis, now time.Time) map[string]string {
	return map[string]string{
		register.ColMonth:           Month(now),
		register.ColSource:          in.source(),
		register.ColTextType:        a.TextType,
		register.ColTextDate:        a.TextDate,
		register.ColTitle:           strings.TrimSpace(c.Title),
		register.ColTheme:           a.Theme,
		register.ColURL:             strings.TrimSpace(c.URL),
		register.ColStatus:          StatusToProcess,
		register.ColComments:        fmt.Sprintf("%s (Action: %s)", a.Summary, a.Action),
		register.ColCriticite:       a.Criticite,
		register.ColExpectedProof:   a.ExpectedProof,
		register.ColProofsAvailable: NoProof,
	}
}

func (in *Ingester) source() string {
	if in.Source == "" {
		return DefaultSource
	}
	return in.Source
}

// Run analyses the candidates and appends those rated Haute or Moyenne to
// news. Candidates whose URL or title is already in base or news, or seen
// earlier in the run, are skipped. news is saved once, when rows were added.
func (in *Ingester) Run(ctx context.Context, news, base *register.Register, cands []Candidate) (Result, error) {
	var res Result
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	urls, titles := map[string]bool{}, map[string]bool{}
	for _, reg := range []*register.Register{base, news} {
		if reg == nil {
			continue
		}
		for _, rec := range reg.Records() {
			if u := strings.TrimSpace(rec.URL); u != "" {
				urls[u] = true
			}
			if rec.Title != "" {
				titles[classify.TitleKey(rec.Title)] = true
			}
		}
	}

	var runErr error
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		url, key := strings.TrimSpace(c.URL), classify.TitleKey(c.Title)
		if key == "" || titles[key] || (url != "" && urls[url]) {
			res.Duplicates++
			continue
		}
		answer, err := in.Client.Request(systemMessage, Prompt(in.SiteContext, c))
		if err != nil {
			logrus.WithError(err).Warnf("Analysis failed for %q", c.Title)
			res.Failed++
			continue
		}
		a := ParseAnalysis(answer)
		if !a.Relevant || a.Criticite == classify.Basse {
			res.Irrelevant++
			continue
		}
		res.Rows = append(res.Rows, news.Append(in.Row(c, a, now())))
		res.Added++
		titles[key] = true
		if url != "" {
			urls[url] = true
		}
		logrus.Infof("Relevant %s (%s): %s", a.TextType, a.Criticite, c.Title)
	}

	if res.Added > 0 {
		if err := news.Save(); err != nil {
			return res, err
		}
	}
	logrus.Infof("Ingestion done: %d added, %d duplicates, %d not relevant, %d failed",
		res.Added, res.Duplicates, res.Irrelevant, res.Failed)
	return res, runErr
}

// LoadCandidates reads a JSON array of {"titre", "url", "snippet"} objects.
// "title" is accepted for "titre".
func LoadCandidates(path string) ([]Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%s: expected an array of candidates", path)
	}
	var out []Candidate
	root.ForEach(func(_, item gjson.Result) bool {
		title := item.Get("titre").String()
		if title == "" {
			title = item.Get("title").String()
		}
		out = append(out, Candidate{Title: title, URL: item.Get("url").String(), Snippet: item.Get("snippet").String()})
		return true
	})
	return out, nil
}
