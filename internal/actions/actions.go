// Package actions applies the decisions taken on the control sheets to the
// register files and journals each of them.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"veilleboard/internal/models"
	"veilleboard/internal/register"
	"veilleboard/internal/store"
)

// Actions accepted by Execute.
const (
	Conforme    = "conforme"
	NonConforme = "non_conforme"
	Info        = "info"
	Supprimer   = "supprimer"
	Observation = "observation"
)

// Values written into the registers.
const (
	CompliantValue    = "C"
	NonCompliantValue = "NC"
	PlanAction        = "Mise en conformité requise"
	PlanStatus        = "À faire"
	DateLayout        = "02/01/2006"
)

var (
	ErrUnknownAction   = errors.New("actions: unknown action")
	ErrUnknownRegister = errors.New("actions: unknown register")
)

// Journaler records what Execute did. *store.Store implements it.
type Journaler interface {
	Journal(ctx context.Context, e store.JournalEntry) error
	AddPlanItem(ctx context.Context, p store.PlanItem) (int64, error)
	AddInformative(ctx context.Context, at time.Time, register string, payload []byte) error
}

// Options tune a Service.
type Options struct {
	Now         func() time.Time
	ReevalYears int
	// Actor is written in "Validé par" when a request names nobody.
	Actor string
}

// Service owns the register files while actions are applied.
type Service struct {
	mu      sync.Mutex
	paths   map[string]string
	journal Journaler
	opts    Options
}

// NewService builds a service over the register files, keyed by register name.
func NewService(paths map[string]string, journal Journaler, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReevalYears <= 0 {
		opts.ReevalYears = 3
	}
	if opts.Actor == "" {
		opts.Actor = "veilleboard"
	}
	return &Service{paths: paths, journal: journal, opts: opts}
}

func (s *Service) load(name string) (*register.Register, error) {
	path, ok := s.paths[name]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	return register.Load(path, name)
}

// Execute applies one decision and returns the message shown to the user.
func (s *Service) Execute(ctx context.Context, req models.ActionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action := strings.ToLower(strings.TrimSpace(req.Action))
	actor := req.Actor
	if actor == "" {
		actor = s.opts.Actor
	}
	now := s.opts.Now()

	reg, err := s.load(req.Register)
	if err != nil {
		return "", err
	}
	rec, err := reg.Record(req.Row)
	if err != nil {
		return "", err
	}

	var msg, detail string
	switch action {
	case Supprimer:
		if err := reg.Delete(req.Row); err != nil {
			return "", err
		}
		if err := reg.Save(); err != nil {
			return "", err
		}
		msg, detail = "Ligne supprimée", rec.Title

	case Info:
		payload, err := reg.RowJSON(req.Row)
		if err != nil {
			return "", err
		}
		if err := s.journal.AddInformative(ctx, now, reg.Name, payload); err != nil {
			return "", err
		}
		if err := reg.Delete(req.Row); err != nil {
			return "", err
		}
		if err := reg.Save(); err != nil {
			return "", err
		}
		msg, detail = "Transféré vers Informative", rec.Title

	case NonConforme:
		if err := reg.Set(req.Row, register.ColCompliance, NonCompliantValue); err != nil {
			return "", err
		}
		if err := reg.Save(); err != nil {
			return "", err
		}
		crit := rec.Criticite
		if reg.Column(register.ColCriticite) < 0 {
			crit = "N/A"
		}
		id, err := s.journal.AddPlanItem(ctx, store.PlanItem{
			At:        now,
			Title:     rec.Title,
			Theme:     rec.Theme,
			Criticite: crit,
			Action:    PlanAction,
			Status:    PlanStatus,
		})
		if err != nil {
			return "", err
		}
		msg, detail = "NC enregistré et envoyé au Plan d'Action", fmt.Sprintf("plan item %d", id)

	case Conforme:
		msg, detail, err = s.validate(reg, req.Row, actor, now)
		if err != nil {
			return "", err
		}

	case Observation:
		if err := reg.Set(req.Row, register.ColObservations, req.Text); err != nil {
			return "", err
		}
		if err := reg.Save(); err != nil {
			return "", err
		}
		msg, detail = "Observation enregistrée", req.Text

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	entry := journalEntry(now, reg.Name, action, actor, detail)
	entry.Row = req.Row
	if err := s.journal.Journal(ctx, entry); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"action":   action,
		"register": reg.Name,
		"row":      req.Row,
		"actor":    actor,
	}).Info("Action applied")
	return msg, nil
}

// validate marks a row compliant. A news row then moves to the active base.
func (s *Service) validate(reg *register.Register, row int, actor string, now time.Time) (string, string, error) {
	today := now.Format(DateLayout)
	next := now.AddDate(s.opts.ReevalYears, 0, 0).Format(DateLayout)
	for _, cell := range []struct{ col, value string }{
		{register.ColCompliance, CompliantValue},
		{register.ColLastEvaluation, today},
		{register.ColNextEvaluation, next},
		{register.ColValidatedBy, actor},
	} {
		if err := reg.Set(row, cell.col, cell.value); err != nil {
			return "", "", err
		}
	}

	if reg.Name != register.News {
		if err := reg.Save(); err != nil {
			return "", "", err
		}
		return "Conformité validée", "next evaluation " + next, nil
	}

	base, err := s.load(register.BaseActive)
	if err != nil {
		return "", "", err
	}
	newRow, err := reg.Move(row, base)
	if err != nil {
		return "", "", err
	}
	// Base first: a crash between the two saves duplicates the text instead of losing it.
	if err := base.Save(); err != nil {
		return "", "", err
	}
	if err := reg.Save(); err != nil {
		return "", "", err
	}
	return "Evalué et transféré en Base Active", fmt.Sprintf("moved to %s row %d", register.BaseActive, newRow), nil
}

func journalEntry(at time.Time, reg, action, actor, detail string) store.JournalEntry {
	return store.JournalEntry{At: at, Register: reg, Action: action, Actor: actor, Detail: detail}
}

// Search looks for query in the title, theme, comments and status of every
// row of the named registers. Matching ignores case; a blank query finds nothing.
func (s *Service) Search(query string, names ...string) ([]models.SearchHit, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	hits := []models.SearchHit{}
	if query == "" {
		return hits, nil
	}
	if len(names) == 0 {
		names = []string{register.News, register.BaseActive}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		reg, err := s.load(name)
		if err != nil {
			return nil, err
		}
		for _, r := range reg.Records() {
			text := strings.ToLower(strings.Join([]string{r.Title, r.Theme, r.Comments, r.Status}, " "))
			if strings.Contains(text, query) {
				hits = append(hits, models.SearchHit{
					Register: reg.Name,
					Row:      r.Row,
					Title:    r.Title,
					Theme:    r.Theme,
					Comments: r.Comments,
					Status:   r.Status,
				})
			}
		}
	}
	return hits, nil
}
