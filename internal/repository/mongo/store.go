// Package mongo contains MongoDB implementations of repository interfaces.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	// DefaultDBName is used when Config.DBName is empty.
	DefaultDBName = "ecoreport"

	usersCollection   = "users"
	reportsCollection = "reports"
)

// Store holds the collections used by the repositories.
type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	reports   *mongo.Collection
	opTimeout time.Duration
}

// Connect dials MongoDB. serverSelection bounds how long an operation waits for a usable server.
func Connect(ctx context.Context, uri, dbName string, serverSelection, opTimeout time.Duration) (*Store, error) {
	opts := options.Client().ApplyURI(uri)
	if serverSelection > 0 {
		opts.SetServerSelectionTimeout(serverSelection)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return NewStore(client, dbName, opTimeout), nil
}

// NewStore binds a Store to an existing client.
func NewStore(client *mongo.Client, dbName string, opTimeout time.Duration) *Store {
	if dbName == "" {
		dbName = DefaultDBName
	}
	db := client.Database(dbName)
	return &Store{
		client:    client,
		users:     db.Collection(usersCollection),
		reports:   db.Collection(reportsCollection),
		opTimeout: opTimeout,
	}
}

// userIndexes: unique email, and a sparse session pointer index that only holds
// users with a live session (the field is unset otherwise).
func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sessionKey", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
}

func reportIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "imageUrl", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
}

// EnsureIndexes creates the user and report indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateMany(ctx, userIndexes()); err != nil {
		return err
	}
	_, err := s.reports.Indexes().CreateMany(ctx, reportIndexes())
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// now returns the current time at the precision MongoDB stores.
func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
