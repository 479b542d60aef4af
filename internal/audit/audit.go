// Package audit asks a language model which major regulatory texts are
// missing from the active base.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"veilleboard/internal/classify"
	"veilleboard/internal/llm"
	"veilleboard/internal/models"
	"veilleboard/internal/store"
)

// DefaultMaxGaps bounds the number of texts the model is asked for.
const DefaultMaxGaps = 5

const defaultAction = "Ajouter à la base et évaluer"

const systemMessage = `Rôle : Auditeur expert QHSE pour la certification ISO 14001.
Objectif : analyse d'écart complète de la base réglementaire du site.
Ne cite que des textes officiels (lois, décrets, arrêtés).
Réponds UNIQUEMENT par un tableau JSON.`

// Prompt builds the audit prompt from the site context and the titles
// already tracked.
func Prompt(siteContext string, titles []string, max int) string {
	var sb strings.Builder
	sb.WriteString("CONTEXTE DU SITE :\n")
	sb.WriteString(siteContext)
	sb.WriteString("\n\nBASE RÉGLEMENTAIRE ACTUELLE (titres) :\n")
	for _, t := range titles {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nMISSION :\n")
	sb.WriteString("Identifie les textes réglementaires majeurs (ICPE, déchets, eau, air, énergie, RSE) qui manquent à cette base.\n")
	fmt.Fprintf(&sb, "Cite au maximum %d textes prioritaires manquants.\n", max)
	sb.WriteString("\nFORMAT (JSON strict) :\n")
	sb.WriteString(`[{"titre": "...", "theme": "...", "criticite": "Haute|Moyenne|Basse", "manque_justification": "...", "action": "..."}]`)
	return sb.String()
}

// Auditor runs completeness audits and records their findings.
type Auditor struct {
	Client      llm.Client
	Store       *store.Store
	SiteContext string
	MaxGaps     int
	Now         func() time.Time
}

// Run asks the model for missing texts, drops those already present in base
// (titles compared folded), and stores the rest as one audit when a store is set.
func (a *Auditor) Run(ctx context.Context, base []models.Record) ([]store.Gap, error) {
	max := a.MaxGaps
	if max <= 0 {
		max = DefaultMaxGaps
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	known := map[string]bool{}
	var titles []string
	for _, rec := range base {
		title := strings.TrimSpace(rec.Title)
		if title == "" || known[classify.TitleKey(title)] {
			continue
		}
		known[classify.TitleKey(title)] = true
		titles = append(titles, title)
	}
	logrus.Infof("Auditing completeness against %d tracked texts", len(titles))

	answer, err := a.Client.Request(systemMessage, Prompt(a.SiteContext, titles, max))
	if err != nil {
		return nil, fmt.Errorf("audit request failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gaps := Parse(answer)

	var out []store.Gap
	for _, g := range gaps {
		k := classify.TitleKey(g.Title)
		if known[k] {
			logrus.Debugf("Audit proposed %q, already tracked", g.Title)
			continue
		}
		known[k] = true
		out = append(out, g)
		if len(out) == max {
			break
		}
	}
	logrus.Infof("Audit done: %d missing texts", len(out))

	if a.Store != nil && len(out) > 0 {
		at := now()
		for i := range out {
			out[i].At = at
		}
		if err := a.Store.AddGaps(ctx, at, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Parse reads the gaps from a model answer. Entries without a title are
// dropped; an answer without a JSON array yields no gap.
func Parse(answer string) []store.Gap {
	res, ok := llm.ExtractJSON(answer)
	if !ok || !res.IsArray() {
		return nil
	}
	var out []store.Gap
	res.ForEach(func(_, item gjson.Result) bool {
		title := strings.TrimSpace(item.Get("titre").String())
		if title == "" {
			return true
		}
		action := strings.TrimSpace(item.Get("action").String())
		if action == "" {
			action = defaultAction
		}
		out = append(out, store.Gap{
			Title:         title,
			Theme:         strings.TrimSpace(item.Get("theme").String()),
			Criticite:     classify.NormalizeCriticite(item.Get("criticite").String()),
			Justification: strings.TrimSpace(item.Get("manque_justification").String()),
			Action:        action,
		})
		return true
	})
	return out
}
