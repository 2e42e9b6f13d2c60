package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/absence"
)

type absenceRepository struct {
	coll *mongo.Collection
}

var _ absence.Repository = (*absenceRepository)(nil)

func NewAbsenceRepository(db *mongo.Database) absence.Repository {
	return &absenceRepository{coll: db.Collection(absencesCollection)}
}

type absenceDoc struct {
	ID            bson.ObjectID `bson:"_id,omitempty"`
	UserID        string        `bson:"user_id"`
	Type          string        `bson:"type"`
	StartDate     time.Time     `bson:"start_date"`
	EndDate       time.Time     `bson:"end_date"`
	Reason        string        `bson:"reason,omitempty"`
	Status        string        `bson:"status"`
	ReviewerID    string        `bson:"reviewer_id,omitempty"`
	ReviewComment string        `bson:"review_comment,omitempty"`
	ReviewedAt    time.Time     `bson:"reviewed_at,omitempty"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
}

func newAbsenceDoc(abs absence.Absence) (absenceDoc, error) {
	doc := absenceDoc{
		UserID:        abs.UserID,
		Type:          abs.Type,
		StartDate:     abs.StartDate,
		EndDate:       abs.EndDate,
		Reason:        abs.Reason,
		Status:        abs.Status,
		ReviewerID:    abs.ReviewerID,
		ReviewComment: abs.ReviewComment,
		ReviewedAt:    abs.ReviewedAt,
		CreatedAt:     abs.CreatedAt,
		UpdatedAt:     abs.UpdatedAt,
	}
	if abs.ID != "" {
		oid, err := oidFromHex(abs.ID, absence.ErrNotFound)
		if err != nil {
			return absenceDoc{}, err
		}
		doc.ID = oid
	}
	return doc, nil
}

func (doc absenceDoc) toAbsence() absence.Absence {
	return absence.Absence{
		ID:            doc.ID.Hex(),
		UserID:        doc.UserID,
		Type:          doc.Type,
		StartDate:     doc.StartDate,
		EndDate:       doc.EndDate,
		Reason:        doc.Reason,
		Status:        doc.Status,
		ReviewerID:    doc.ReviewerID,
		ReviewComment: doc.ReviewComment,
		ReviewedAt:    doc.ReviewedAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func (repo *absenceRepository) CreateAbsence(ctx context.Context, abs absence.Absence) (absence.Absence, error) {
	doc, err := newAbsenceDoc(abs)
	if err != nil {
		return absence.Absence{}, err
	}
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		return absence.Absence{}, errors.Wrap(err, "inserting absence")
	}
	abs.ID = res.InsertedID.(bson.ObjectID).Hex()
	return abs, nil
}

func (repo *absenceRepository) GetAbsenceByID(ctx context.Context, id string) (absence.Absence, error) {
	oid, err := oidFromHex(id, absence.ErrNotFound)
	if err != nil {
		return absence.Absence{}, err
	}
	var doc absenceDoc
	err = repo.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return absence.Absence{}, absence.ErrNotFound
	}
	if err != nil {
		return absence.Absence{}, errors.Wrap(err, "finding absence")
	}
	return doc.toAbsence(), nil
}

var absenceOrderingFields = map[string]string{
	"start_date": "start_date",
	"end_date":   "end_date",
	"status":     "status",
	"created_at": "created_at",
}

func (repo *absenceRepository) FilterAbsences(ctx context.Context, filter absence.QueryFilter, ordering ...core.DBOrdering) ([]absence.Absence, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	// period filter keeps requests overlapping [From, To]
	if !filter.From.IsZero() {
		query["end_date"] = bson.M{"$gte": filter.From}
	}
	if !filter.To.IsZero() {
		query["start_date"] = bson.M{"$lte": filter.To}
	}

	sort := sortFromOrdering(ordering, absenceOrderingFields, bson.D{{Key: "created_at", Value: -1}})
	cursor, err := repo.coll.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "finding absences")
	}
	var docs []absenceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding absences")
	}
	absences := make([]absence.Absence, 0, len(docs))
	for _, doc := range docs {
		absences = append(absences, doc.toAbsence())
	}
	return absences, nil
}

func (repo *absenceRepository) HasOverlappingAbsence(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	n, err := repo.coll.CountDocuments(ctx, bson.M{
		"user_id":    userID,
		"status":     bson.M{"$in": bson.A{absence.StatusPending, absence.StatusApproved}},
		"start_date": bson.M{"$lte": end},
		"end_date":   bson.M{"$gte": start},
	})
	if err != nil {
		return false, errors.Wrap(err, "counting overlapping absences")
	}
	return n > 0, nil
}

func (repo *absenceRepository) UpdateAbsence(ctx context.Context, abs absence.Absence) (absence.Absence, error) {
	doc, err := newAbsenceDoc(abs)
	if err != nil {
		return absence.Absence{}, err
	}
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return absence.Absence{}, errors.Wrap(err, "updating absence")
	}
	if res.MatchedCount == 0 {
		return absence.Absence{}, absence.ErrNotFound
	}
	return abs, nil
}

func (repo *absenceRepository) DeleteAbsencesByID(ctx context.Context, ids ...string) error {
	oids := oidsFromHex(ids)
	if len(oids) == 0 {
		return nil
	}
	_, err := repo.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	return errors.Wrap(err, "deleting absences")
}
