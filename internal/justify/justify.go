// Package justify fills the expected-proof column of the active base with
// justifications written by a language model.
package justify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"veilleboard/internal/llm"
	"veilleboard/internal/register"
)

// DefaultSiteContext describes the site when no context file is configured.
const DefaultSiteContext = "Site de découpage et d'emboutissage des métaux, certifié ISO 14001, soumis aux rubriques ICPE 2560, 2561, 2564, 2565."

// SaveEvery is the number of justified rows between intermediate saves.
const SaveEvery = 20

const maxContextLen = 1800

const systemMessage = `Rôle : Auditeur Certification ISO 14001.
Mission : analyser un texte réglementaire et justifier la conformité du site selon la structure D-C-P.
- Donnée d'entrée : activité ou aspect du site concerné.
- Critère réglementaire : seuil ou exigence spécifique.
- Preuve attendue : document ou preuve physique (ex : FDS, bon d'enlèvement, rapport).
Réponse DIRECTE sans introduction.
Structure : "Concerné par [Donnée] car [Critère]. Preuve de conformité : [Preuve]."`

// LoadSiteContext reads the site description from path.
// An empty path or an empty file yields DefaultSiteContext.
func LoadSiteContext(path string) (string, error) {
	if path == "" {
		return DefaultSiteContext, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read site context %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return DefaultSiteContext, nil
	}
	if len(text) > maxContextLen {
		text = llm.Truncate(text, maxContextLen) + "\n...(contexte tronqué)"
	}
	return text, nil
}

// Prompt builds the user prompt for one regulatory text.
func Prompt(siteContext, title, theme, summary string) string {
	var sb strings.Builder
	sb.WriteString("CONTEXTE DU SITE :\n")
	sb.WriteString(siteContext)
	sb.WriteString("\n\nTEXTE RÉGLEMENTAIRE :\n")
	fmt.Fprintf(&sb, "- Titre : %s\n", title)
	fmt.Fprintf(&sb, "- Thème : %s\n", theme)
	fmt.Fprintf(&sb, "- Résumé actuel : %s\n", summary)
	return sb.String()
}

// Progress is called after each processed row.
type Progress func(done, total int, title string)

// Result summarises a run.
type Result struct {
	Justified int
	Skipped   int
	Failed    int
}

// Justifier asks the model for missing justifications.
type Justifier struct {
	Client      llm.Client
	SiteContext string
	OnProgress  Progress
}

// New returns a Justifier using the given client and site context.
func New(client llm.Client, siteContext string) *Justifier {
	if siteContext == "" {
		siteContext = DefaultSiteContext
	}
	return &Justifier{Client: client, SiteContext: siteContext}
}

// Run writes a justification into every row of reg whose expected proof is
// empty, up to limit rows (0 means no limit). Titles already answered in
// this run are reused. The register is saved every SaveEvery rows and at
// the end, including when ctx is cancelled.
func (j *Justifier) Run(ctx context.Context, reg *register.Register, limit int) (Result, error) {
	var res Result
	var pending []int
	for _, rec := range reg.Records() {
		if strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(rec.ExpectedProof) != "" {
			res.Skipped++
			continue
		}
		pending = append(pending, rec.Row)
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	logrus.Infof("Justifying %d rows of %s", len(pending), reg.Name)

	answers := map[string]string{}
	dirty := 0
	var runErr error
	for i, row := range pending {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		rec, err := reg.Record(row)
		if err != nil {
			runErr = err
			break
		}
		answer, seen := answers[rec.Title]
		if !seen {
			answer, err = j.Client.Request(systemMessage, Prompt(j.SiteContext, rec.Title, rec.Theme, rec.Comments))
			if err != nil {
				logrus.WithError(err).Warnf("Justification failed for row %d", row)
				res.Failed++
				j.progress(i+1, len(pending), rec.Title)
				continue
			}
			answers[rec.Title] = answer
		}
		if err := reg.Set(row, register.ColExpectedProof, answer); err != nil {
			runErr = err
			break
		}
		res.Justified++
		dirty++
		j.progress(i+1, len(pending), rec.Title)

		if dirty == SaveEvery {
			logrus.Info("Intermediate save of justifications")
			if err := reg.Save(); err != nil {
				return res, err
			}
			dirty = 0
		}
	}
	if dirty > 0 {
		if err := reg.Save(); err != nil {
			return res, err
		}
	}
	logrus.Infof("Justification done: %d written, %d failed", res.Justified, res.Failed)
	return res, runErr
}

func (j *Justifier) progress(done, total int, title string) {
	if j.OnProgress != nil {
		j.OnProgress(done, total, title)
	}
}
