package actions

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"veilleboard/internal/classify"
	"veilleboard/internal/register"
)

// Reclassify is the journal action name of a criticité pass.
const Reclassify = "reclassify"

// ReclassifyResult reports a criticité pass over one register.
type ReclassifyResult struct {
	Rows    int
	Changed int
	Levels  map[string]int
}

// Reclassify rewrites the Criticité of every row of the named register from
// the wording of its title and comments. With dryRun the file is left as is.
func (s *Service) Reclassify(ctx context.Context, name string, dryRun bool) (ReclassifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := ReclassifyResult{Levels: map[string]int{}}
	reg, err := s.load(name)
	if err != nil {
		return res, err
	}
	for _, rec := range reg.Records() {
		level := classify.ReclassifyCriticite(rec.Title, rec.Comments)
		res.Rows++
		res.Levels[level]++
		if rec.Criticite == level {
			continue
		}
		res.Changed++
		if !dryRun {
			if err := reg.Set(rec.Row, register.ColCriticite, level); err != nil {
				return res, err
			}
		}
	}

	log := logrus.WithFields(logrus.Fields{"register": reg.Name, "rows": res.Rows, "changed": res.Changed})
	if dryRun || res.Changed == 0 {
		log.Info("Reclassification computed, nothing written")
		return res, nil
	}
	if err := reg.Save(); err != nil {
		return res, err
	}
	now := s.opts.Now()
	detail := fmt.Sprintf("%d/%d rows changed (Haute %d, Moyenne %d, Basse %d)",
		res.Changed, res.Rows, res.Levels[classify.Haute], res.Levels[classify.Moyenne], res.Levels[classify.Basse])
	if err := s.journal.Journal(ctx, journalEntry(now, reg.Name, Reclassify, s.opts.Actor, detail)); err != nil {
		return res, err
	}
	log.Info("Reclassification written")
	return res, nil
}
