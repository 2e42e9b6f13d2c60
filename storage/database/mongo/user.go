package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/user"
)

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *mongo.Database) user.Repository {
	return &userRepository{coll: db.Collection(usersCollection)}
}

type userDoc struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Name         string        `bson:"name"`
	Username     string        `bson:"username,omitempty"`
	Email        string        `bson:"email,omitempty"`
	Phone        string        `bson:"phone,omitempty"`
	IsActive     bool          `bson:"is_active"`
	Roles        []string      `bson:"roles,omitempty"`
	PasswordHash []byte        `bson:"password_hash"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
	LastLogin    time.Time     `bson:"last_login,omitempty"`
}

func newUserDoc(usr user.User) (userDoc, error) {
	doc := userDoc{
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		Phone:        usr.Phone,
		IsActive:     usr.IsActive,
		Roles:        usr.Roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
		LastLogin:    usr.LastLogin,
	}
	if usr.ID != "" {
		oid, err := oidFromHex(usr.ID, user.ErrNotFound)
		if err != nil {
			return userDoc{}, err
		}
		doc.ID = oid
	}
	return doc, nil
}

func (doc userDoc) toUser() user.User {
	return user.User{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Username:     doc.Username,
		Email:        doc.Email,
		Phone:        doc.Phone,
		IsActive:     doc.IsActive,
		Roles:        doc.Roles,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		LastLogin:    doc.LastLogin,
	}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	check := func(field, value string, dupErr error) error {
		if value == "" {
			return nil
		}
		filter := bson.M{field: value}
		if len(excluded) > 0 {
			filter["_id"] = bson.M{"$nin": oidsFromHex(excluded)}
		}
		n, err := repo.coll.CountDocuments(ctx, filter)
		if err != nil {
			return errors.Wrap(err, "counting users")
		}
		if n > 0 {
			return dupErr
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc, err := newUserDoc(usr)
	if err != nil {
		return user.User{}, err
	}
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = res.InsertedID.(bson.ObjectID).Hex()
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	return repo.find(ctx, bson.M{}, bson.D{{Key: "created_at", Value: 1}})
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	oid, err := oidFromHex(id, user.ErrNotFound)
	if err != nil {
		return user.User{}, err
	}
	return repo.findOne(ctx, bson.M{"_id": oid})
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"username": username})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"email": email})
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": username},
	}})
}

var userOrderingFields = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	query := bson.M{}
	if filter.Search != "" {
		term := caseInsensitive(filter.Search)
		query["$or"] = bson.A{
			bson.M{"name": term},
			bson.M{"username": term},
			bson.M{"email": term},
		}
	}
	if len(filter.Roles) > 0 {
		// role values are hierarchical prefixes; "admin:" matches "admin:owner"
		prefixes := make(bson.A, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			prefixes = append(prefixes, bson.M{"roles": bson.M{"$regex": "^" + role}})
		}
		query["$and"] = bson.A{bson.M{"$or": prefixes}}
	}
	if filter.IsActive != nil {
		query["is_active"] = *filter.IsActive
	}
	createdAt := bson.M{}
	if !filter.CreatedFrom.IsZero() {
		createdAt["$gte"] = filter.CreatedFrom
	}
	if !filter.CreatedTo.IsZero() {
		createdAt["$lte"] = filter.CreatedTo
	}
	if len(createdAt) > 0 {
		query["created_at"] = createdAt
	}

	sort := sortFromOrdering(ordering, userOrderingFields, bson.D{{Key: "created_at", Value: 1}})
	return repo.find(ctx, query, sort)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	oid, err := oidFromHex(usr.ID, user.ErrNotFound)
	if err != nil {
		return user.User{}, err
	}

	set := bson.M{"updated_at": usr.UpdatedAt}
	if usr.Name != "" {
		set["name"] = usr.Name
	}
	if usr.Username != "" {
		set["username"] = usr.Username
	}
	if usr.Email != "" {
		set["email"] = usr.Email
	}
	if usr.Phone != "" {
		set["phone"] = usr.Phone
	}
	if usr.Roles != nil {
		set["roles"] = usr.Roles
	}
	if usr.PasswordHash != nil {
		set["password_hash"] = usr.PasswordHash
	}
	if !usr.LastLogin.IsZero() {
		set["last_login"] = usr.LastLogin
	}
	if isActive != nil {
		set["is_active"] = *isActive
	}

	var doc userDoc
	err = repo.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return doc.toUser(), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	doc, err := newUserDoc(usr)
	if err != nil {
		return user.User{}, err
	}
	_, err = repo.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return user.User{}, errors.Wrap(err, "upserting user")
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	oids := oidsFromHex(ids)
	if len(oids) == 0 {
		return nil
	}
	_, err := repo.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	return errors.Wrap(err, "deleting users")
}

func (repo *userRepository) findOne(ctx context.Context, filter bson.M) (user.User, error) {
	var doc userDoc
	err := repo.coll.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return doc.toUser(), nil
}

func (repo *userRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]user.User, error) {
	cursor, err := repo.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "finding users")
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, nil
}
