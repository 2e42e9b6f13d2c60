package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/absence"
)

type absenceRepository struct {
	db *Database
}

var _ absence.Repository = (*absenceRepository)(nil)

func NewAbsenceRepository(db *Database) absence.Repository {
	return &absenceRepository{db: db}
}

func (repo *absenceRepository) CreateAbsence(ctx context.Context, abs absence.Absence) (absence.Absence, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	abs.ID = newID()
	repo.db.absences[abs.ID] = abs
	return abs, nil
}

func (repo *absenceRepository) GetAbsenceByID(ctx context.Context, id string) (absence.Absence, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if abs, ok := repo.db.absences[id]; ok {
		return abs, nil
	}
	return absence.Absence{}, absence.ErrNotFound
}

func (repo *absenceRepository) FilterAbsences(ctx context.Context, filter absence.QueryFilter, ordering ...core.DBOrdering) ([]absence.Absence, error) {
	repo.db.mu.RLock()
	absences := make([]absence.Absence, 0)
	for _, abs := range repo.db.absences {
		if matchAbsence(abs, filter) {
			absences = append(absences, abs)
		}
	}
	repo.db.mu.RUnlock()

	sortAbsences(absences, ordering)
	return absences, nil
}

func matchAbsence(abs absence.Absence, filter absence.QueryFilter) bool {
	if filter.UserID != "" && abs.UserID != filter.UserID {
		return false
	}
	if filter.Status != "" && abs.Status != filter.Status {
		return false
	}
	if filter.Type != "" && abs.Type != filter.Type {
		return false
	}
	if !filter.From.IsZero() && abs.EndDate.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && abs.StartDate.After(filter.To) {
		return false
	}
	return true
}

func sortAbsences(absences []absence.Absence, ordering []core.DBOrdering) {
	less := func(a, b absence.Absence) bool { return a.CreatedAt.After(b.CreatedAt) } // newest first
	if len(ordering) > 0 {
		ord := ordering[0]
		less = func(a, b absence.Absence) bool {
			var res bool
			switch ord.Field {
			case "start_date":
				res = a.StartDate.Before(b.StartDate)
			case "end_date":
				res = a.EndDate.Before(b.EndDate)
			case "status":
				res = a.Status < b.Status
			default:
				res = a.CreatedAt.Before(b.CreatedAt)
			}
			if !ord.Ascending {
				return !res
			}
			return res
		}
	}
	sort.Slice(absences, func(i, j int) bool { return less(absences[i], absences[j]) })
}

func (repo *absenceRepository) HasOverlappingAbsence(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, abs := range repo.db.absences {
		if abs.UserID != userID {
			continue
		}
		if abs.Status != absence.StatusPending && abs.Status != absence.StatusApproved {
			continue
		}
		if !abs.StartDate.After(end) && !abs.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *absenceRepository) UpdateAbsence(ctx context.Context, abs absence.Absence) (absence.Absence, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.absences[abs.ID]; !ok {
		return absence.Absence{}, absence.ErrNotFound
	}
	repo.db.absences[abs.ID] = abs
	return abs, nil
}

func (repo *absenceRepository) DeleteAbsencesByID(ctx context.Context, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.absences, id)
	}
	return nil
}
