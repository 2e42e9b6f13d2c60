// Package filestore implements upload storage on the local filesystem.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/upload"
)

const thumbSuffix = "_thumb"

// DiskStore writes uploads under a root directory, partitioned by month
// (<root>/2006/01/<uuid><ext>). Paths handed back are relative to the root.
type DiskStore struct {
	root      string
	thumbSize int
}

var _ upload.Storer = (*DiskStore)(nil)

func NewDiskStore(conf *core.Config) (*DiskStore, error) {
	root := conf.Upload.Dir
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload dir")
	}
	return &DiskStore{root: root, thumbSize: conf.Upload.ThumbnailSize}, nil
}

// Save writes r to a fresh file and returns its relative path, size and
// SHA-256 checksum. The write goes to a temp file first so a failure never
// leaves a partial upload behind.
func (st *DiskStore) Save(name string, r io.ReadSeeker) (upload.SavedFile, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return upload.SavedFile{}, errors.Wrap(err, "rewinding upload")
	}

	relDir := time.Now().UTC().Format("2006/01")
	if err := os.MkdirAll(filepath.Join(st.root, relDir), 0o755); err != nil {
		return upload.SavedFile{}, errors.Wrap(err, "creating month dir")
	}
	relPath := filepath.Join(relDir, uuid.New().String()+strings.ToLower(filepath.Ext(name)))
	absPath := filepath.Join(st.root, relPath)

	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".upload-*")
	if err != nil {
		return upload.SavedFile{}, errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	sum := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, sum), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return upload.SavedFile{}, errors.Wrap(err, "writing upload")
	}
	if err := os.Rename(tmp.Name(), absPath); err != nil {
		return upload.SavedFile{}, errors.Wrap(err, "placing upload")
	}

	return upload.SavedFile{
		Path:     relPath,
		Size:     size,
		Checksum: hex.EncodeToString(sum.Sum(nil)),
	}, nil
}

// Thumbnail renders a bounded-size preview next to the original and returns
// its relative path.
func (st *DiskStore) Thumbnail(path string) (string, error) {
	absPath, err := st.abs(path)
	if err != nil {
		return "", err
	}
	img, err := imaging.Open(absPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrap(err, "opening image")
	}
	thumb := imaging.Fit(img, st.thumbSize, st.thumbSize, imaging.Lanczos)

	ext := filepath.Ext(path)
	relThumb := strings.TrimSuffix(path, ext) + thumbSuffix + ext
	absThumb := filepath.Join(st.root, relThumb)
	if err := imaging.Save(thumb, absThumb); err != nil {
		return "", errors.Wrap(err, "saving thumbnail")
	}
	return relThumb, nil
}

func (st *DiskStore) Open(path string) (io.ReadSeekCloser, error) {
	absPath, err := st.abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(absPath)
	if os.IsNotExist(err) {
		return nil, upload.ErrNotFound
	}
	return f, err
}

func (st *DiskStore) Remove(path string) error {
	absPath, err := st.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// abs resolves a relative path and refuses anything escaping the root.
func (st *DiskStore) abs(path string) (string, error) {
	absPath := filepath.Join(st.root, filepath.Clean("/"+path))
	if !strings.HasPrefix(absPath, st.root+string(filepath.Separator)) {
		return "", upload.ErrNotFound
	}
	return absPath, nil
}
