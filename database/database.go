package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DB owns the Mongo client for the lifetime of the process.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri, name string, timeout time.Duration) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &DB{client: client, database: client.Database(name)}, nil
}

func (d *DB) Database() *mongo.Database {
	return d.database
}

func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// ReplicaSet reports the replica set name, or "" for a standalone server.
func (d *DB) ReplicaSet(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result bson.M
	// "hello" replaces the deprecated "isMaster"
	if err := d.client.Database("admin").RunCommand(ctx, bson.M{"hello": 1}).Decode(&result); err != nil {
		return "", err
	}
	if setName, ok := result["setName"].(string); ok {
		return setName, nil
	}
	return "", nil
}

// LogTopology logs whether the server is part of a replica set.
func (d *DB) LogTopology(ctx context.Context, logger *zap.Logger) {
	setName, err := d.ReplicaSet(ctx)
	switch {
	case err != nil:
		logger.Warn("error checking replica set", zap.Error(err))
	case setName != "":
		logger.Info("part of replica set", zap.String("set", setName))
	default:
		logger.Info("not part of a replica set")
	}
}
