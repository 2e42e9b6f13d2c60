package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/chantio/chantio/core"
)

var (
	// errors
	ErrNotFound = errors.New("file not found")

	errTypeRefused = errors.New("this file type is not allowed")
	errTooLarge    = errors.New("file exceeds the maximum allowed size")
	errEmptyFile   = errors.New("file is empty")
)

type (
	// SavedFile describes the outcome of a completed disk write.
	SavedFile struct {
		Path     string
		Size     int64
		Checksum string // SHA-256, hex
	}

	// Storer is any store that can persist upload content.
	// Save must be restartable: it seeks r back to the start itself.
	Storer interface {
		Save(name string, r io.ReadSeeker) (SavedFile, error)
		Thumbnail(path string) (string, error)
		Open(path string) (io.ReadSeekCloser, error)
		Remove(path string) error
	}

	Repository interface {
		CreateFile(ctx context.Context, f StoredFile) (StoredFile, error)
		GetFileByID(ctx context.Context, id string) (StoredFile, error)
	}

	// Input is one multipart file handed to the pipeline.
	Input struct {
		Name        string
		ContentType string
		Size        int64
		Body        io.ReadSeeker
		UploadedBy  string
	}

	Service struct {
		repo     Repository
		store    Storer
		notifier core.Notifier
		logger   core.Logger
		conf     core.UploadConfig
	}
)

func NewService(repo Repository, store Storer, notifier core.Notifier, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		notifier: notifier,
		logger:   logger,
		conf:     conf.Upload,
	}
}

// Process runs the pipeline for one file: validate, write to disk with
// bounded retries, thumbnail images, persist the record. Progress events are
// pushed to the uploader at every stage; a failed write leaves no record and
// no partial file behind.
func (svc *Service) Process(ctx context.Context, in Input) (StoredFile, error) {
	uploadID := uuid.New().String()
	progress := func(stage string, pct int, errMsg string) {
		svc.notifier.Notify(core.Event{
			Type:       core.EventUploadProgress,
			Payload:    Progress{UploadID: uploadID, Name: in.Name, Stage: stage, Percent: pct, Error: errMsg},
			Recipients: []string{in.UploadedBy},
		})
	}

	kind, err := svc.validate(in)
	if err != nil {
		progress(StageFailed, 0, err.Error())
		return StoredFile{}, err
	}
	progress(StageReceived, 10, "")

	policy := RetryPolicy{Attempts: svc.conf.RetryAttempts, Delay: svc.conf.RetryDelay}
	var saved SavedFile
	if err := retryDo(ctx, policy, func() error {
		var saveErr error
		saved, saveErr = svc.store.Save(in.Name, in.Body)
		return saveErr
	}); err != nil {
		progress(StageFailed, 10, "storage failed")
		return StoredFile{}, pkgerrors.Wrap(err, "saving upload")
	}
	progress(StageStored, 60, "")

	f := StoredFile{
		OriginalName: in.Name,
		ContentType:  in.ContentType,
		Kind:         kind,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
		Path:         saved.Path,
		UploadedBy:   in.UploadedBy,
		CreatedAt:    time.Now().UTC(),
	}

	if kind == KindImage {
		if thumb, err := svc.store.Thumbnail(saved.Path); err != nil {
			// a missing thumbnail is not worth failing the upload
			svc.logger.Warn(fmt.Sprintf("thumbnailing %s: %v", in.Name, err), err)
		} else {
			f.ThumbPath = thumb
			progress(StageThumbnailed, 80, "")
		}
	}

	f, err = svc.repo.CreateFile(ctx, f)
	if err != nil {
		if rmErr := svc.store.Remove(saved.Path); rmErr != nil {
			svc.logger.Error(fmt.Sprintf("removing orphaned upload %s: %v", saved.Path, rmErr), rmErr)
		}
		progress(StageFailed, 80, "storage failed")
		return StoredFile{}, pkgerrors.Wrap(err, "persisting upload record")
	}
	progress(StageComplete, 100, "")
	return f, nil
}

// ProcessAll runs the pipeline for several files sequentially; the first
// failure aborts the batch.
func (svc *Service) ProcessAll(ctx context.Context, ins ...Input) ([]StoredFile, error) {
	files := make([]StoredFile, 0, len(ins))
	for _, in := range ins {
		f, err := svc.Process(ctx, in)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (StoredFile, error) {
	return svc.repo.GetFileByID(ctx, id)
}

func (svc *Service) Open(f StoredFile) (io.ReadSeekCloser, error) {
	return svc.store.Open(f.Path)
}

func (svc *Service) OpenThumbnail(f StoredFile) (io.ReadSeekCloser, error) {
	if !f.HasThumbnail() {
		return nil, ErrNotFound
	}
	return svc.store.Open(f.ThumbPath)
}

func (svc *Service) validate(in Input) (kind string, err error) {
	ct := in.ContentType
	if ct == "" {
		ct = TypeByName(in.Name)
	}
	kind, ok := KindOf(ct)
	if !ok {
		return "", core.NewValidationError(errTypeRefused, core.FieldError{Field: "file", Error: errTypeRefused.Error()})
	}
	if in.Size <= 0 {
		return "", core.NewValidationError(errEmptyFile, core.FieldError{Field: "file", Error: errEmptyFile.Error()})
	}

	max := svc.conf.MaxDocumentSize
	if kind == KindImage {
		max = svc.conf.MaxImageSize
	}
	if max > 0 && in.Size > max {
		return "", core.NewValidationError(errTooLarge, core.FieldError{Field: "file", Error: errTooLarge.Error()})
	}
	return kind, nil
}
