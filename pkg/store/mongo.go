package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jihwankim/telesim/pkg/config"
	"github.com/jihwankim/telesim/pkg/event"
)

// Mongo implements Store on a MongoDB database.
type Mongo struct {
	client        *mongo.Client
	incidents     *mongo.Collection
	repairs       *mongo.Collection
	runs          *mongo.Collection
	repairTTLDays int
}

// NewMongo connects to the configured MongoDB deployment. The caller owns
// the returned store and must Close it.
func NewMongo(ctx context.Context, cfg config.StoreConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Mongo{
		client:        client,
		incidents:     db.Collection(cfg.IncidentCollection),
		repairs:       db.Collection(cfg.RepairCollection),
		runs:          db.Collection(cfg.RunCollection),
		repairTTLDays: cfg.RepairTTLDays,
	}, nil
}

// Ping verifies connectivity.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates all required indexes. Safe to call repeatedly.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	incidentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{
			Keys:    bson.D{{Key: "geo", Value: "2dsphere"}},
			Options: options.Index().SetSparse(true),
		},
		{Keys: bson.D{{Key: "runId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "city", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := m.incidents.Indexes().CreateMany(ctx, incidentIndexes); err != nil {
		return fmt.Errorf("failed to create incident indexes: %w", err)
	}

	repairIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}, {Key: "incidentId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "runId", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if m.repairTTLDays > 0 {
		ttl := int32(m.repairTTLDays * 24 * 60 * 60)
		repairIndexes = append(repairIndexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttl),
		})
	}
	if _, err := m.repairs.Indexes().CreateMany(ctx, repairIndexes); err != nil {
		return fmt.Errorf("failed to create repair indexes: %w", err)
	}

	runIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := m.runs.Indexes().CreateMany(ctx, runIndexes); err != nil {
		return fmt.Errorf("failed to create run indexes: %w", err)
	}
	return nil
}

// OpenRun persists a fresh run descriptor.
func (m *Mongo) OpenRun(ctx context.Context, run RunDescriptor) error {
	if _, err := m.runs.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("failed to insert run descriptor: %w", err)
	}
	return nil
}

// CloseRun stamps endedAt on the run descriptor.
func (m *Mongo) CloseRun(ctx context.Context, runID string, endedAt time.Time) error {
	_, err := m.runs.UpdateOne(ctx,
		bson.M{"runId": runID},
		bson.M{"$set": bson.M{"endedAt": endedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to close run descriptor: %w", err)
	}
	return nil
}

// InsertIncidents bulk-inserts one batch. Unordered so a single bad document
// does not abort the rest of the batch.
func (m *Mongo) InsertIncidents(ctx context.Context, events []event.IncidentEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]interface{}, len(events))
	for i := range events {
		docs[i] = events[i]
	}
	opts := options.InsertMany().SetOrdered(false)
	if _, err := m.incidents.InsertMany(ctx, docs, opts); err != nil {
		return fmt.Errorf("failed to insert incident batch: %w", err)
	}
	return nil
}

// RecentIncidents returns up to limit incidents of the run newer than since,
// newest first, projected to (_id, timestamp, issue).
func (m *Mongo) RecentIncidents(ctx context.Context, runID string, since time.Time, limit int64) ([]IncidentRef, error) {
	filter := bson.M{
		"runId":     runID,
		"timestamp": bson.M{"$gte": since},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit).
		SetProjection(bson.M{"_id": 1, "timestamp": 1, "issue": 1})

	cur, err := m.incidents.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent incidents: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID        primitive.ObjectID `bson:"_id"`
		Timestamp time.Time          `bson:"timestamp"`
		Issue     event.Issue        `bson:"issue"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode recent incidents: %w", err)
	}

	refs := make([]IncidentRef, len(rows))
	for i, row := range rows {
		refs[i] = IncidentRef{
			ID:        row.ID.Hex(),
			Timestamp: row.Timestamp,
			Issue:     row.Issue,
		}
	}
	return refs, nil
}

// InsertRepair persists one repair record, mapping a duplicate-key rejection
// to ErrDuplicate.
func (m *Mongo) InsertRepair(ctx context.Context, repair RepairEvent) error {
	if _, err := m.repairs.InsertOne(ctx, repair); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert repair record: %w", err)
	}
	return nil
}

// CountRepairs counts repair records for the run.
func (m *Mongo) CountRepairs(ctx context.Context, runID string) (int64, error) {
	n, err := m.repairs.CountDocuments(ctx, bson.M{"runId": runID})
	if err != nil {
		return 0, fmt.Errorf("failed to count repairs: %w", err)
	}
	return n, nil
}
