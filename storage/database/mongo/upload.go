package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/chantio/chantio/core/upload"
)

type uploadRepository struct {
	coll *mongo.Collection
}

var _ upload.Repository = (*uploadRepository)(nil)

func NewUploadRepository(db *mongo.Database) upload.Repository {
	return &uploadRepository{coll: db.Collection(filesCollection)}
}

type fileDoc struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	OriginalName string        `bson:"original_name"`
	ContentType  string        `bson:"content_type"`
	Kind         string        `bson:"kind"`
	Size         int64         `bson:"size"`
	Checksum     string        `bson:"checksum"`
	Path         string        `bson:"path"`
	ThumbPath    string        `bson:"thumb_path,omitempty"`
	UploadedBy   string        `bson:"uploaded_by"`
	CreatedAt    time.Time     `bson:"created_at"`
}

func (doc fileDoc) toStoredFile() upload.StoredFile {
	return upload.StoredFile{
		ID:           doc.ID.Hex(),
		OriginalName: doc.OriginalName,
		ContentType:  doc.ContentType,
		Kind:         doc.Kind,
		Size:         doc.Size,
		Checksum:     doc.Checksum,
		Path:         doc.Path,
		ThumbPath:    doc.ThumbPath,
		UploadedBy:   doc.UploadedBy,
		CreatedAt:    doc.CreatedAt,
	}
}

func (repo *uploadRepository) CreateFile(ctx context.Context, f upload.StoredFile) (upload.StoredFile, error) {
	doc := fileDoc{
		OriginalName: f.OriginalName,
		ContentType:  f.ContentType,
		Kind:         f.Kind,
		Size:         f.Size,
		Checksum:     f.Checksum,
		Path:         f.Path,
		ThumbPath:    f.ThumbPath,
		UploadedBy:   f.UploadedBy,
		CreatedAt:    f.CreatedAt,
	}
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		return upload.StoredFile{}, errors.Wrap(err, "inserting file record")
	}
	f.ID = res.InsertedID.(bson.ObjectID).Hex()
	return f, nil
}

func (repo *uploadRepository) GetFileByID(ctx context.Context, id string) (upload.StoredFile, error) {
	oid, err := oidFromHex(id, upload.ErrNotFound)
	if err != nil {
		return upload.StoredFile{}, err
	}
	var doc fileDoc
	err = repo.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return upload.StoredFile{}, upload.ErrNotFound
	}
	if err != nil {
		return upload.StoredFile{}, errors.Wrap(err, "finding file record")
	}
	return doc.toStoredFile(), nil
}
