package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Record is a persisted sweep run.
type Record struct {
	RunID      string    `bson:"runId" json:"runId"`
	StartedAt  time.Time `bson:"startedAt" json:"startedAt"`
	FinishedAt time.Time `bson:"finishedAt" json:"finishedAt"`
	Scanned    int       `bson:"scanned" json:"scanned"`
	Referenced int       `bson:"referenced" json:"referenced"`
	Orphans    int       `bson:"orphans" json:"orphans"`
	Deleted    int       `bson:"deleted" json:"deleted"`
	Failed     []string  `bson:"failed,omitempty" json:"failed,omitempty"`
	DryRun     bool      `bson:"dryRun" json:"dryRun"`
}

func newRecord(start time.Time, rep *Report) *Record {
	rec := &Record{
		RunID:      uuid.NewString(),
		StartedAt:  start.UTC(),
		FinishedAt: start.Add(rep.Duration).UTC(),
		Scanned:    rep.Scanned,
		Referenced: rep.Referenced,
		Orphans:    len(rep.Orphans),
		Deleted:    len(rep.Deleted),
		DryRun:     rep.DryRun,
	}
	for _, f := range rep.Failed {
		rec.Failed = append(rec.Failed, f.Key)
	}
	return rec
}

// History stores sweep runs. Last returns nil, nil before the first run.
type History interface {
	Save(ctx context.Context, r *Record) error
	Last(ctx context.Context) (*Record, error)
}

// MongoHistory keeps runs in a collection, one document per run.
type MongoHistory struct {
	col *mongo.Collection
}

func NewMongoHistory(col *mongo.Collection) *MongoHistory {
	return &MongoHistory{col: col}
}

func (h *MongoHistory) Save(ctx context.Context, r *Record) error {
	opts := options.Update().SetUpsert(true)
	if _, err := h.col.UpdateOne(ctx, bson.M{"runId": r.RunID}, bson.M{"$set": r}, opts); err != nil {
		return fmt.Errorf("save sweep run: %w", err)
	}
	return nil
}

func (h *MongoHistory) Last(ctx context.Context) (*Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	var r Record
	if err := h.col.FindOne(ctx, bson.M{}, opts).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("load last sweep run: %w", err)
	}
	return &r, nil
}

// MemoryHistory keeps the most recent runs in process.
type MemoryHistory struct {
	mu   sync.Mutex
	runs []Record
	max  int
}

func NewMemoryHistory(n int) *MemoryHistory {
	if n <= 0 {
		n = 20
	}
	return &MemoryHistory{max: n}
}

func (h *MemoryHistory) Save(_ context.Context, r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, *r)
	if len(h.runs) > h.max {
		h.runs = h.runs[len(h.runs)-h.max:]
	}
	return nil
}

func (h *MemoryHistory) Last(_ context.Context) (*Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.runs) == 0 {
		return nil, nil
	}
	r := h.runs[len(h.runs)-1]
	return &r, nil
}
