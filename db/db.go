// Package db is the trip document store.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripy/apperr"
	"tripy/models"
)

// Store persists trips. Writes after creation are optimistic: they only land
// if the stored version still equals the version the writer read.
type Store interface {
	// Get returns the stored trip; its Version is the one to pass back to
	// UpdateIfVersion. A missing trip is apperr.TripNotFound.
	Get(ctx context.Context, tripID string) (models.Trip, error)

	// Create stores a new trip with Version 1 and fills the timestamps.
	Create(ctx context.Context, trip *models.Trip) error

	// UpdateIfVersion replaces the trip if its stored version equals version.
	// On success trip.Version becomes version+1. A mismatch is
	// apperr.EditConflict and leaves the stored trip untouched.
	UpdateIfVersion(ctx context.Context, tripID string, version int64, trip *models.Trip) error
}

var (
	Client          *mongo.Client
	TripsCollection *mongo.Collection
)

// Connect opens the Mongo client and ensures the trip indexes.
func Connect(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	Client = client
	TripsCollection = client.Database(database).Collection("trips")

	store := NewMongoStore(TripsCollection)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func Disconnect(ctx context.Context) error {
	if Client == nil {
		return nil
	}
	return Client.Disconnect(ctx)
}

type MongoStore struct {
	trips *mongo.Collection
	now   func() time.Time
}

func NewMongoStore(trips *mongo.Collection) *MongoStore {
	return &MongoStore{trips: trips, now: time.Now}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.trips.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tripid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create trip indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, tripID string) (models.Trip, error) {
	var trip models.Trip
	err := s.trips.FindOne(ctx, bson.M{"tripid": tripID}).Decode(&trip)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Trip{}, apperr.Newf(apperr.TripNotFound, "trip %s not found", tripID)
	}
	if err != nil {
		return models.Trip{}, fmt.Errorf("find trip %s: %w", tripID, err)
	}
	return trip, nil
}

func (s *MongoStore) Create(ctx context.Context, trip *models.Trip) error {
	now := s.now().UTC()
	trip.Version = 1
	trip.CreatedAt = now
	trip.UpdatedAt = now
	if _, err := s.trips.InsertOne(ctx, trip); err != nil {
		return fmt.Errorf("insert trip %s: %w", trip.ID, err)
	}
	return nil
}

func (s *MongoStore) UpdateIfVersion(ctx context.Context, tripID string, version int64, trip *models.Trip) error {
	next := *trip
	next.ID = tripID
	next.Version = version + 1
	next.UpdatedAt = s.now().UTC()

	res, err := s.trips.ReplaceOne(ctx, bson.M{"tripid": tripID, "version": version}, next)
	if err != nil {
		return fmt.Errorf("replace trip %s: %w", tripID, err)
	}
	if res.MatchedCount == 0 {
		n, err := s.trips.CountDocuments(ctx, bson.M{"tripid": tripID})
		if err != nil {
			return fmt.Errorf("count trip %s: %w", tripID, err)
		}
		if n == 0 {
			return apperr.Newf(apperr.TripNotFound, "trip %s not found", tripID)
		}
		return apperr.Newf(apperr.EditConflict, "trip %s changed since version %d", tripID, version)
	}
	*trip = next
	return nil
}
