package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/intervention"
)

type interventionRepository struct {
	db *Database
}

var _ intervention.Repository = (*interventionRepository)(nil)

func NewInterventionRepository(db *Database) intervention.Repository {
	return &interventionRepository{db: db}
}

func (repo *interventionRepository) CreateIntervention(ctx context.Context, iv intervention.Intervention) (intervention.Intervention, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	iv.ID = newID()
	repo.db.interventions[iv.ID] = iv
	return iv, nil
}

func (repo *interventionRepository) GetInterventionByID(ctx context.Context, id string) (intervention.Intervention, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if iv, ok := repo.db.interventions[id]; ok {
		return iv, nil
	}
	return intervention.Intervention{}, intervention.ErrNotFound
}

func (repo *interventionRepository) FilterInterventions(ctx context.Context, filter intervention.QueryFilter, ordering ...core.DBOrdering) ([]intervention.Intervention, error) {
	repo.db.mu.RLock()
	ivs := make([]intervention.Intervention, 0)
	for _, iv := range repo.db.interventions {
		if matchIntervention(iv, filter) {
			ivs = append(ivs, iv)
		}
	}
	repo.db.mu.RUnlock()

	sortInterventions(ivs, ordering)
	return ivs, nil
}

func matchIntervention(iv intervention.Intervention, filter intervention.QueryFilter) bool {
	if filter.UserID != "" && iv.UserID != filter.UserID {
		return false
	}
	if filter.AssigneeID != "" && iv.AssigneeID != filter.AssigneeID {
		return false
	}
	if filter.Status != "" && iv.Status != filter.Status {
		return false
	}
	if filter.Priority != "" && iv.Priority != filter.Priority {
		return false
	}
	if filter.Site != "" && !strings.Contains(strings.ToLower(iv.Site), strings.ToLower(filter.Site)) {
		return false
	}
	return true
}

func sortInterventions(ivs []intervention.Intervention, ordering []core.DBOrdering) {
	less := func(a, b intervention.Intervention) bool { return a.CreatedAt.After(b.CreatedAt) } // newest first
	if len(ordering) > 0 {
		ord := ordering[0]
		less = func(a, b intervention.Intervention) bool {
			var res bool
			switch ord.Field {
			case "priority":
				res = a.Priority < b.Priority
			case "status":
				res = a.Status < b.Status
			case "site":
				res = a.Site < b.Site
			case "updated_at":
				res = a.UpdatedAt.Before(b.UpdatedAt)
			default:
				res = a.CreatedAt.Before(b.CreatedAt)
			}
			if !ord.Ascending {
				return !res
			}
			return res
		}
	}
	sort.Slice(ivs, func(i, j int) bool { return less(ivs[i], ivs[j]) })
}

func (repo *interventionRepository) UpdateIntervention(ctx context.Context, iv intervention.Intervention) (intervention.Intervention, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.interventions[iv.ID]; !ok {
		return intervention.Intervention{}, intervention.ErrNotFound
	}
	repo.db.interventions[iv.ID] = iv
	return iv, nil
}

func (repo *interventionRepository) DeleteInterventionsByID(ctx context.Context, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.interventions, id)
	}
	return nil
}
