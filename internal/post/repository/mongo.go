package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on the "posts" collection. Documents keep
// ObjectID primary keys so ids created by earlier versions stay valid.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(ctx context.Context, col *mongo.Collection) *MongoRepo {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "number", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
		logger.Warnf("posts: index creation failed: %v", err)
	}
	return &MongoRepo{col: col}
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, ErrNotFound
	}
	return oid, nil
}

func filterDoc(f post.Filter) bson.M {
	q := bson.M{}
	if f.Owner != "" {
		q["user"] = f.Owner
	}
	if f.Q != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Q), Options: "i"}
		q["$or"] = bson.A{bson.M{"title": re}, bson.M{"content": re}}
	}
	return q
}

func (m *MongoRepo) Create(ctx context.Context, p *post.Post) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	_, err := m.col.InsertOne(ctx, p)
	return err
}

func (m *MongoRepo) FindByID(ctx context.Context, id string) (*post.Post, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var p post.Post
	if err := m.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (m *MongoRepo) FindLatestByOwner(ctx context.Context, owner string) (*post.Post, error) {
	var p post.Post
	opts := options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}})
	if err := m.col.FindOne(ctx, bson.M{"user": owner}, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (m *MongoRepo) List(ctx context.Context, f post.Filter) ([]*post.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := m.col.Find(ctx, filterDoc(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*post.Post{}
	for cur.Next(ctx) {
		var p post.Post
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

func (m *MongoRepo) Count(ctx context.Context, f post.Filter) (int64, error) {
	return m.col.CountDocuments(ctx, filterDoc(f))
}

func (m *MongoRepo) UpdateFields(ctx context.Context, id string, patch post.Patch) (*post.Post, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.FileRefs != nil {
		files := []string(*patch.FileRefs)
		if files == nil {
			files = []string{}
		}
		set["fileUrl"] = files
	}
	update := bson.M{"$set": set}
	if patch.ClearLegacy {
		update["$unset"] = bson.M{"imageUrl": ""}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p post.Post
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (m *MongoRepo) Remove(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) ReferencedKeys(ctx context.Context, fn func(ref string)) error {
	opts := options.Find().SetProjection(bson.M{"fileUrl": 1, "imageUrl": 1})
	cur, err := m.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var p post.Post
		if err := cur.Decode(&p); err != nil {
			return err
		}
		for _, r := range p.FileRefs {
			fn(r)
		}
		if p.LegacyImage != "" {
			fn(p.LegacyImage)
		}
	}
	return cur.Err()
}
