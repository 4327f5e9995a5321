package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/pkg/logger"
)

const (
	collectionSubmissions = "submissions"
	collectionLocks       = "locks"

	writerLeaseID  = "submissions-writer"
	writerLeaseTTL = 30 * time.Second
)

// SnapshotAdapter mirrors the list into one document per submission.
type SnapshotAdapter struct {
	collection *mongo.Collection
	locks      *mongo.Collection
}

var (
	_ out.SnapshotStore  = (*SnapshotAdapter)(nil)
	_ out.SnapshotWriter = (*SnapshotAdapter)(nil)
)

func NewSnapshotAdapter(db *mongo.Database) *SnapshotAdapter {
	return &SnapshotAdapter{
		collection: db.Collection(collectionSubmissions),
		locks:      db.Collection(collectionLocks),
	}
}

func (a *SnapshotAdapter) Name() string { return "mongodb" }

type submissionDoc struct {
	domain.Submission `bson:",inline"`
	Position          int `bson:"position"`
}

// EnsureIndexes creates the id and position indexes.
func (a *SnapshotAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "position", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *SnapshotAdapter) Load(ctx context.Context) ([]domain.Submission, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := a.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find submissions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []submissionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}

	items := make([]domain.Submission, len(docs))
	for i, d := range docs {
		items[i] = d.Submission
	}
	return items, nil
}

// Save upserts every submission with its position and drops documents that are
// no longer part of the list.
func (a *SnapshotAdapter) Save(ctx context.Context, items []domain.Submission) error {
	models := writeModels(items)
	if len(models) > 0 {
		opts := options.BulkWrite().SetOrdered(false)
		if _, err := a.collection.BulkWrite(ctx, models, opts); err != nil {
			return fmt.Errorf("write submissions: %w", err)
		}
	}

	ids := make([]int64, len(items))
	for i, s := range items {
		ids[i] = s.ID
	}
	if _, err := a.collection.DeleteMany(ctx, bson.M{"id": bson.M{"$nin": ids}}); err != nil {
		return fmt.Errorf("prune submissions: %w", err)
	}
	return nil
}

func writeModels(items []domain.Submission) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(items))
	for i, s := range items {
		model := mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": s.ID}).
			SetReplacement(submissionDoc{Submission: s, Position: i}).
			SetUpsert(true)
		models = append(models, model)
	}
	return models
}

// AcquireWriter takes the writer lease document and renews it until release.
// A lease left by a crashed process expires after writerLeaseTTL.
func (a *SnapshotAdapter) AcquireWriter(ctx context.Context) (func(), error) {
	owner := uuid.NewString()
	if err := a.renewLease(ctx, owner, time.Now()); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: lease %s", out.ErrSnapshotOwned, writerLeaseID)
		}
		return nil, fmt.Errorf("acquire lease: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(writerLeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), writerLeaseTTL/3)
				if err := a.renewLease(ctx, owner, now); err != nil {
					logger.WithError(err).Error("failed to renew snapshot writer lease")
				}
				cancel()
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.locks.DeleteOne(ctx, bson.M{"_id": writerLeaseID, "owner": owner})
		})
	}
	return release, nil
}

// renewLease takes or extends the lease. While another owner holds an unexpired
// lease the filter matches nothing and the upsert fails on the _id index.
func (a *SnapshotAdapter) renewLease(ctx context.Context, owner string, now time.Time) error {
	update := bson.M{"$set": bson.M{"owner": owner, "expires_at": now.Add(writerLeaseTTL)}}
	_, err := a.locks.UpdateOne(ctx, leaseFilter(owner, now), update, options.Update().SetUpsert(true))
	return err
}

func leaseFilter(owner string, now time.Time) bson.M {
	return bson.M{
		"_id": writerLeaseID,
		"$or": bson.A{
			bson.M{"owner": owner},
			bson.M{"expires_at": bson.M{"$lt": now}},
		},
	}
}
