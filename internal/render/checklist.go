package render

import (
	"embed"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"veilleboard/internal/classify"
	"veilleboard/internal/models"
	"veilleboard/internal/register"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"lower": strings.ToLower,
}).ParseFS(templateFS, "templates/*.tmpl"))

// SheetKind selects which rows a control sheet lists.
type SheetKind int

const (
	// SheetNews lists watch-report rows awaiting a first evaluation.
	SheetNews SheetKind = iota
	// SheetBase lists active texts whose evaluation is due.
	SheetBase
)

// Register returns the name of the register the sheet acts upon.
func (k SheetKind) Register() string {
	if k == SheetBase {
		return register.BaseActive
	}
	return register.News
}

// Title is the sheet heading.
func (k SheetKind) Title() string {
	if k == SheetBase {
		return "Base Active"
	}
	return "Nouveautés"
}

var informativeTypes = []string{"pour info", "pour information", "à titre indicatif"}

// Item is one text on a control sheet.
type Item struct {
	Row            int
	Title          string
	URL            string
	Action         string
	LastEvaluation string
	TextType       string
	TextDate       string
	Criticite      string
	ExpectedProof  string
	Observations   string
	// Type is MEC for texts to put in place, REVAL for re-evaluations.
	Type        string
	Informative bool
}

// Section groups the items of one theme.
type Section struct {
	Theme string
	Items []Item
}

// Sheet is a printable control sheet with its counters.
type Sheet struct {
	Kind        SheetKind
	Register    string
	Title       string
	GeneratedAt string
	APIBase     string
	Sections    []Section
	Total       int
	Haute       int
	Moyenne     int
	Basse       int
	MEC         int
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// BuildSheet selects and groups the rows of a control sheet. News sheets
// skip settled texts, base sheets keep texts whose evaluation is due. Rows
// without a title or without an action are left out.
func BuildSheet(recs []models.Record, kind SheetKind, now time.Time) Sheet {
	sheet := Sheet{
		Kind:        kind,
		Register:    kind.Register(),
		Title:       kind.Title(),
		GeneratedAt: now.Format("02/01/2006 à 15:04"),
	}
	byTheme := map[string][]Item{}
	for _, r := range recs {
		switch kind {
		case SheetBase:
			if !classify.IsDue(r.NextEvaluation, now) {
				continue
			}
		default:
			if classify.IsSettled(r.Compliance) {
				continue
			}
		}
		title := strings.TrimSpace(r.Title)
		action := strings.TrimSpace(r.Comments)
		if title == "" || strings.EqualFold(title, "titre manquant") ||
			action == "" || strings.EqualFold(action, "aucune action spécifiée") {
			continue
		}

		item := Item{
			Row:            r.Row,
			Title:          title,
			URL:            orDefault(r.URL, "#"),
			Action:         action,
			LastEvaluation: orDefault(r.LastEvaluation, "Jamais"),
			TextType:       orDefault(r.TextType, "N/A"),
			TextDate:       orDefault(r.TextDate, "N/A"),
			Criticite:      classify.NormalizeCriticite(r.Criticite),
			ExpectedProof:  orDefault(r.ExpectedProof, "Non spécifiée"),
			Observations:   r.Observations,
			Type:           "REVAL",
		}
		if kind == SheetNews || strings.Contains(strings.ToLower(r.Compliance), "étude") {
			item.Type = "MEC"
			sheet.MEC++
		}
		for _, t := range informativeTypes {
			if strings.EqualFold(strings.TrimSpace(r.TextType), t) {
				item.Informative = true
			}
		}
		switch item.Criticite {
		case classify.Haute:
			sheet.Haute++
		case classify.Moyenne:
			sheet.Moyenne++
		default:
			sheet.Basse++
		}
		sheet.Total++

		theme := classify.RawTheme(r.Theme)
		byTheme[theme] = append(byTheme[theme], item)
	}

	themes := make([]string, 0, len(byTheme))
	for t := range byTheme {
		themes = append(themes, t)
	}
	sort.Strings(themes)
	for _, t := range themes {
		sheet.Sections = append(sheet.Sections, Section{Theme: t, Items: byTheme[t]})
	}
	return sheet
}

// Checklist renders a control sheet. apiBase is the address of the server
// receiving the decisions taken on the page.
func Checklist(w io.Writer, sheet Sheet, apiBase string) error {
	sheet.APIBase = apiBase
	return templates.ExecuteTemplate(w, "checklist.html.tmpl", sheet)
}
