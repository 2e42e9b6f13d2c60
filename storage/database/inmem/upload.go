package inmemdb

import (
	"context"

	"github.com/chantio/chantio/core/upload"
)

type uploadRepository struct {
	db *Database
}

var _ upload.Repository = (*uploadRepository)(nil)

func NewUploadRepository(db *Database) upload.Repository {
	return &uploadRepository{db: db}
}

func (repo *uploadRepository) CreateFile(ctx context.Context, f upload.StoredFile) (upload.StoredFile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	f.ID = newID()
	repo.db.files[f.ID] = f
	return f, nil
}

func (repo *uploadRepository) GetFileByID(ctx context.Context, id string) (upload.StoredFile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if f, ok := repo.db.files[id]; ok {
		return f, nil
	}
	return upload.StoredFile{}, upload.ErrNotFound
}
