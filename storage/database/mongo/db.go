// Package mongodb implements the repositories on MongoDB.
package mongodb

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/chantio/chantio/core"
)

// Collections
const (
	usersCollection         = "users"
	absencesCollection      = "absences"
	interventionsCollection = "interventions"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	filesCollection         = "files"
)

// Open connects to the configured MongoDB deployment and pings it.
// The caller owns the client and must Disconnect it on shutdown.
func Open(conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(conf.Database.URI))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, nil, errors.Wrap(err, "pinging mongodb")
	}
	return client, client.Database(conf.Database.Name), nil
}

// EnsureIndexes creates the indexes every repository relies on.
// Run once at startup; index creation is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for coll, models := range map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "roles", Value: 1}}},
		},
		absencesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		interventionsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "assignee_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: 1}}},
		},
		conversationsCollection: {
			{Keys: bson.D{{Key: "member_ids", Value: 1}, {Key: "last_message_at", Value: -1}}},
			{Keys: bson.D{{Key: "direct_key", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		filesCollection: {
			{Keys: bson.D{{Key: "uploaded_by", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	} {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

// oidFromHex parses a hex document ID; notFound is returned for garbage so
// lookups by a malformed ID read as a missing document, not a server error.
func oidFromHex(id string, notFound error) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, notFound
	}
	return oid, nil
}

func oidsFromHex(ids []string) []bson.ObjectID {
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	return oids
}

// sortFromOrdering maps API ordering params onto a Mongo sort document.
// Unknown fields are dropped; fallback applies when nothing survives.
func sortFromOrdering(ordering []core.DBOrdering, allowed map[string]string, fallback bson.D) bson.D {
	sort := bson.D{}
	for _, ord := range ordering {
		field, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	if len(sort) == 0 {
		return fallback
	}
	return sort
}

// caseInsensitive builds an anchored-nowhere, case-insensitive regex filter
// with the user input escaped.
func caseInsensitive(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}
