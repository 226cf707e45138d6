package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Counter hands out per-owner post numbers. Next is an atomic
// increment-and-fetch: two calls for the same owner never return the same value.
type Counter interface {
	Next(ctx context.Context, owner string) (int64, error)
}

// SeedFunc returns the highest number already used by owner (0 if none).
// Counters call it the first time they see an owner so numbering continues
// after posts created before the counter existed.
type SeedFunc func(ctx context.Context, owner string) (int64, error)

// LatestNumberSeed derives a SeedFunc from a repository's findOneOrdered query.
func LatestNumberSeed(repo Repository) SeedFunc {
	return func(ctx context.Context, owner string) (int64, error) {
		latest, err := repo.FindLatestByOwner(ctx, owner)
		if err != nil {
			return 0, err
		}
		if latest == nil {
			return 0, nil
		}
		return latest.Number, nil
	}
}

// MemoryCounter is a mutex-guarded counter for tests and single-process runs.
type MemoryCounter struct {
	mu   sync.Mutex
	seq  map[string]int64
	seed SeedFunc
}

func NewMemoryCounter(seed SeedFunc) *MemoryCounter {
	return &MemoryCounter{seq: map[string]int64{}, seed: seed}
}

func (c *MemoryCounter) Next(ctx context.Context, owner string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.seq[owner]
	if !ok && c.seed != nil {
		s, err := c.seed(ctx, owner)
		if err != nil {
			return 0, fmt.Errorf("seed counter: %w", err)
		}
		cur = s
	}
	cur++
	c.seq[owner] = cur
	return cur, nil
}

// MongoCounter keeps one {_id: owner, seq} document per owner and advances it
// with $inc, which MongoDB applies atomically per document.
type MongoCounter struct {
	col  *mongo.Collection
	seed SeedFunc
}

func NewMongoCounter(col *mongo.Collection, seed SeedFunc) *MongoCounter {
	return &MongoCounter{col: col, seed: seed}
}

type counterDoc struct {
	Owner string `bson:"_id"`
	Seq   int64  `bson:"seq"`
}

func (c *MongoCounter) inc(ctx context.Context, owner string, upsert bool) (int64, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(upsert)
	var doc counterDoc
	err := c.col.FindOneAndUpdate(ctx, bson.M{"_id": owner}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (c *MongoCounter) Next(ctx context.Context, owner string) (int64, error) {
	n, err := c.inc(ctx, owner, false)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("advance counter: %w", err)
	}

	// First number for this owner: raise the counter to the existing maximum.
	// $max never lowers it, so concurrent seeders cannot move it backwards.
	var start int64
	if c.seed != nil {
		if start, err = c.seed(ctx, owner); err != nil {
			return 0, fmt.Errorf("seed counter: %w", err)
		}
	}
	_, err = c.col.UpdateOne(ctx, bson.M{"_id": owner}, bson.M{"$max": bson.M{"seq": start}}, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return 0, fmt.Errorf("seed counter: %w", err)
	}
	n, err = c.inc(ctx, owner, true)
	if err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	return n, nil
}
