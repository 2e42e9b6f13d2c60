package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/intervention"
	"github.com/chantio/chantio/core/upload"
)

type interventionRepository struct {
	coll *mongo.Collection
}

var _ intervention.Repository = (*interventionRepository)(nil)

func NewInterventionRepository(db *mongo.Database) intervention.Repository {
	return &interventionRepository{coll: db.Collection(interventionsCollection)}
}

type attachmentDoc struct {
	FileID       string `bson:"file_id"`
	Name         string `bson:"name"`
	ContentType  string `bson:"content_type"`
	Size         int64  `bson:"size"`
	HasThumbnail bool   `bson:"has_thumbnail"`
}

func newAttachmentDocs(atts []upload.Attachment) []attachmentDoc {
	if atts == nil {
		return nil
	}
	docs := make([]attachmentDoc, 0, len(atts))
	for _, at := range atts {
		docs = append(docs, attachmentDoc(at))
	}
	return docs
}

func toAttachments(docs []attachmentDoc) []upload.Attachment {
	if docs == nil {
		return nil
	}
	atts := make([]upload.Attachment, 0, len(docs))
	for _, doc := range docs {
		atts = append(atts, upload.Attachment(doc))
	}
	return atts
}

type interventionDoc struct {
	ID             bson.ObjectID   `bson:"_id,omitempty"`
	UserID         string          `bson:"user_id"`
	Site           string          `bson:"site"`
	Equipment      string          `bson:"equipment"`
	Description    string          `bson:"description"`
	Priority       string          `bson:"priority"`
	Status         string          `bson:"status"`
	AssigneeID     string          `bson:"assignee_id,omitempty"`
	ResolutionNote string          `bson:"resolution_note,omitempty"`
	Photos         []attachmentDoc `bson:"photos,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at"`
}

func newInterventionDoc(iv intervention.Intervention) (interventionDoc, error) {
	doc := interventionDoc{
		UserID:         iv.UserID,
		Site:           iv.Site,
		Equipment:      iv.Equipment,
		Description:    iv.Description,
		Priority:       iv.Priority,
		Status:         iv.Status,
		AssigneeID:     iv.AssigneeID,
		ResolutionNote: iv.ResolutionNote,
		Photos:         newAttachmentDocs(iv.Photos),
		CreatedAt:      iv.CreatedAt,
		UpdatedAt:      iv.UpdatedAt,
	}
	if iv.ID != "" {
		oid, err := oidFromHex(iv.ID, intervention.ErrNotFound)
		if err != nil {
			return interventionDoc{}, err
		}
		doc.ID = oid
	}
	return doc, nil
}

func (doc interventionDoc) toIntervention() intervention.Intervention {
	return intervention.Intervention{
		ID:             doc.ID.Hex(),
		UserID:         doc.UserID,
		Site:           doc.Site,
		Equipment:      doc.Equipment,
		Description:    doc.Description,
		Priority:       doc.Priority,
		Status:         doc.Status,
		AssigneeID:     doc.AssigneeID,
		ResolutionNote: doc.ResolutionNote,
		Photos:         toAttachments(doc.Photos),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func (repo *interventionRepository) CreateIntervention(ctx context.Context, iv intervention.Intervention) (intervention.Intervention, error) {
	doc, err := newInterventionDoc(iv)
	if err != nil {
		return intervention.Intervention{}, err
	}
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		return intervention.Intervention{}, errors.Wrap(err, "inserting intervention")
	}
	iv.ID = res.InsertedID.(bson.ObjectID).Hex()
	return iv, nil
}

func (repo *interventionRepository) GetInterventionByID(ctx context.Context, id string) (intervention.Intervention, error) {
	oid, err := oidFromHex(id, intervention.ErrNotFound)
	if err != nil {
		return intervention.Intervention{}, err
	}
	var doc interventionDoc
	err = repo.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return intervention.Intervention{}, intervention.ErrNotFound
	}
	if err != nil {
		return intervention.Intervention{}, errors.Wrap(err, "finding intervention")
	}
	return doc.toIntervention(), nil
}

var interventionOrderingFields = map[string]string{
	"priority":   "priority",
	"status":     "status",
	"site":       "site",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (repo *interventionRepository) FilterInterventions(ctx context.Context, filter intervention.QueryFilter, ordering ...core.DBOrdering) ([]intervention.Intervention, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.AssigneeID != "" {
		query["assignee_id"] = filter.AssigneeID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	if filter.Site != "" {
		query["site"] = caseInsensitive(filter.Site)
	}

	sort := sortFromOrdering(ordering, interventionOrderingFields, bson.D{{Key: "created_at", Value: -1}})
	cursor, err := repo.coll.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "finding interventions")
	}
	var docs []interventionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding interventions")
	}
	ivs := make([]intervention.Intervention, 0, len(docs))
	for _, doc := range docs {
		ivs = append(ivs, doc.toIntervention())
	}
	return ivs, nil
}

func (repo *interventionRepository) UpdateIntervention(ctx context.Context, iv intervention.Intervention) (intervention.Intervention, error) {
	doc, err := newInterventionDoc(iv)
	if err != nil {
		return intervention.Intervention{}, err
	}
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return intervention.Intervention{}, errors.Wrap(err, "updating intervention")
	}
	if res.MatchedCount == 0 {
		return intervention.Intervention{}, intervention.ErrNotFound
	}
	return iv, nil
}

func (repo *interventionRepository) DeleteInterventionsByID(ctx context.Context, ids ...string) error {
	oids := oidsFromHex(ids)
	if len(oids) == 0 {
		return nil
	}
	_, err := repo.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	return errors.Wrap(err, "deleting interventions")
}
