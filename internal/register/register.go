// Package register reads and rewrites the sheet exports that hold the
// regulatory texts: the active base and the automatic watch report.
package register

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"veilleboard/internal/models"
)

// Names of the two registers, as the sheets are called.
const (
	BaseActive = "Base_Active"
	News       = "Rapport_Veille_Auto"
)

// Column headers of the sheet.
const (
	ColMonth           = "Mois"
	ColTitle           = "Intitulé"
	ColTheme           = "Thème"
	ColCompliance      = "Conformité"
	ColNextEvaluation  = "date de la prochaine évaluation"
	ColLastEvaluation  = "date de la dernère évaluation"
	ColCriticite       = "Criticité"
	ColComments        = "Commentaires"
	ColURL             = "Lien Internet"
	ColTextType        = "Type de texte"
	ColTextDate        = "Date"
	ColSource          = "Sources"
	ColStatus          = "Statut"
	ColProofsAvailable = "Preuves disponibles"
	ColExpectedProof   = "Preuve de Conformité Attendue"
	ColObservations    = "Observations"
	ColValidatedBy     = "Validé par"
)

// aliases lists the header spellings accepted for each column, compared
// case-insensitively after trimming.
var aliases = map[string][]string{
	ColTitle:          {ColTitle, "titre", "Titre du texte"},
	ColTheme:          {ColTheme, "theme"},
	ColURL:            {ColURL, "Lien internet", "Lien", "URL", "url"},
	ColLastEvaluation: {ColLastEvaluation, "date de la dernière évaluation"},
}

var (
	ErrUnknownFormat = errors.New("register: unknown file format")
	ErrRowOutOfRange = errors.New("register: row out of range")
)

// Register is a sheet: a header row and data rows of raw cells.
type Register struct {
	Name   string
	Path   string
	Header []string
	Rows   [][]string
	// Comma is the CSV delimiter found on load, reused by Save.
	Comma rune
}

// New returns an empty register with the given header.
func New(name string, header []string) *Register {
	h := make([]string, len(header))
	for i, c := range header {
		h[i] = strings.TrimSpace(c)
	}
	return &Register{Name: name, Header: h}
}

// Len returns the number of data rows.
func (r *Register) Len() int { return len(r.Rows) }

// Column returns the index of the named column, or -1.
func (r *Register) Column(name string) int {
	candidates := aliases[name]
	if candidates == nil {
		candidates = []string{name}
	}
	for _, c := range candidates {
		for i, h := range r.Header {
			if strings.EqualFold(strings.TrimSpace(h), c) {
				return i
			}
		}
	}
	return -1
}

// EnsureColumn returns the index of the named column, appending it to the header if needed.
func (r *Register) EnsureColumn(name string) int {
	if i := r.Column(name); i >= 0 {
		return i
	}
	r.Header = append(r.Header, name)
	return len(r.Header) - 1
}

// index converts a sheet row number into a slice index.
func (r *Register) index(row int) (int, error) {
	i := row - 2
	if i < 0 || i >= len(r.Rows) {
		return 0, fmt.Errorf("%w: %s has no row %d", ErrRowOutOfRange, r.Name, row)
	}
	return i, nil
}

// Cell returns the value at sheet row and column name; missing cells read as empty.
func (r *Register) Cell(row int, name string) (string, error) {
	i, err := r.index(row)
	if err != nil {
		return "", err
	}
	return cellAt(r.Rows[i], r.Column(name)), nil
}

// Set writes value at sheet row and column name, creating the column if absent.
func (r *Register) Set(row int, name, value string) error {
	i, err := r.index(row)
	if err != nil {
		return err
	}
	col := r.EnsureColumn(name)
	for len(r.Rows[i]) <= col {
		r.Rows[i] = append(r.Rows[i], "")
	}
	r.Rows[i][col] = value
	return nil
}

// Values returns the row as a header → value map.
func (r *Register) Values(row int) (map[string]string, error) {
	i, err := r.index(row)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.Header))
	for c, h := range r.Header {
		out[h] = cellAt(r.Rows[i], c)
	}
	return out, nil
}

// Append adds a row given as header → value, creating missing columns.
// It returns the sheet row number of the new row.
func (r *Register) Append(values map[string]string) int {
	// Keep column creation deterministic: follow the existing header first.
	row := make([]string, len(r.Header))
	for c, h := range r.Header {
		row[c] = values[h]
	}
	var missing []string
	for h, v := range values {
		if r.Column(h) < 0 && v != "" {
			missing = append(missing, h)
		}
	}
	sort.Strings(missing)
	for _, h := range missing {
		r.Header = append(r.Header, h)
		row = append(row, values[h])
	}
	r.Rows = append(r.Rows, row)
	return len(r.Rows) + 1
}

// Move copies a row into dst, matching columns by header name, and deletes it from r.
func (r *Register) Move(row int, dst *Register) (int, error) {
	values, err := r.Values(row)
	if err != nil {
		return 0, err
	}
	mapped := make(map[string]string, len(values))
	for h, v := range values {
		if c := dst.Column(h); c >= 0 {
			mapped[dst.Header[c]] = v
		} else {
			mapped[h] = v
		}
	}
	newRow := dst.Append(mapped)
	return newRow, r.Delete(row)
}

// Delete removes the sheet row; following rows shift up.
func (r *Register) Delete(row int) error {
	i, err := r.index(row)
	if err != nil {
		return err
	}
	r.Rows = append(r.Rows[:i], r.Rows[i+1:]...)
	return nil
}

// Records maps every row onto the known columns.
func (r *Register) Records() []models.Record {
	cols := r.columns()
	out := make([]models.Record, 0, len(r.Rows))
	for i, row := range r.Rows {
		out = append(out, cols.record(row, i+2))
	}
	return out
}

// Record maps one sheet row onto the known columns.
func (r *Register) Record(row int) (models.Record, error) {
	i, err := r.index(row)
	if err != nil {
		return models.Record{}, err
	}
	return r.columns().record(r.Rows[i], row), nil
}

type columnIndex struct {
	title, theme, compliance, next, last, crit, comments, url, textType,
	textDate, source, status, proofs, expected, observations, validated int
}

func (r *Register) columns() columnIndex {
	return columnIndex{
		title:        r.Column(ColTitle),
		theme:        r.Column(ColTheme),
		compliance:   r.Column(ColCompliance),
		next:         r.Column(ColNextEvaluation),
		last:         r.Column(ColLastEvaluation),
		crit:         r.Column(ColCriticite),
		comments:     r.Column(ColComments),
		url:          r.Column(ColURL),
		textType:     r.Column(ColTextType),
		textDate:     r.Column(ColTextDate),
		source:       r.Column(ColSource),
		status:       r.Column(ColStatus),
		proofs:       r.Column(ColProofsAvailable),
		expected:     r.Column(ColExpectedProof),
		observations: r.Column(ColObservations),
		validated:    r.Column(ColValidatedBy),
	}
}

func (c columnIndex) record(row []string, n int) models.Record {
	return models.Record{
		Row:             n,
		Title:           cellAt(row, c.title),
		Theme:           cellAt(row, c.theme),
		Compliance:      cellAt(row, c.compliance),
		NextEvaluation:  cellAt(row, c.next),
		LastEvaluation:  cellAt(row, c.last),
		Criticite:       cellAt(row, c.crit),
		Comments:        cellAt(row, c.comments),
		URL:             cellAt(row, c.url),
		TextType:        cellAt(row, c.textType),
		TextDate:        cellAt(row, c.textDate),
		Source:          cellAt(row, c.source),
		Status:          cellAt(row, c.status),
		ProofsAvailable: cellAt(row, c.proofs),
		ExpectedProof:   cellAt(row, c.expected),
		Observations:    cellAt(row, c.observations),
		ValidatedBy:     cellAt(row, c.validated),
	}
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
