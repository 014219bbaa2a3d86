package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// SessionsCollection holds the one-document-per-user session records.
const SessionsCollection = "user_sessions"

var (
	clientInstance *mongo.Client
	clientOnce     sync.Once
	dbInstance     *mongo.Database
)

// Init connects the MongoDB client and selects the database. It should be
// called once at application startup.
func Init(ctx context.Context, uri, dbName string) error {
	var err error
	clientOnce.Do(func() {
		log.Info().Str("db", dbName).Msg("Initializing MongoDB client")

		opts := options.Client().ApplyURI(uri)
		opts.SetConnectTimeout(10 * time.Second)
		opts.SetMonitor(otelmongo.NewMonitor())

		client, connErr := mongo.Connect(opts)
		if connErr != nil {
			err = connErr
			return
		}
		if pingErr := client.Ping(ctx, readpref.Primary()); pingErr != nil {
			err = pingErr
			return
		}
		clientInstance = client
		dbInstance = client.Database(dbName)
	})
	if err != nil {
		return err
	}
	if dbInstance == nil {
		return errors.New("mongodb not initialized")
	}
	return nil
}

// DB returns the database instance. Init must have succeeded first.
func DB() *mongo.Database {
	if dbInstance == nil {
		log.Fatal().Msg("MongoDB is not initialized. Call Init first.")
	}
	return dbInstance
}

// Ping verifies connectivity, for health checks.
func Ping(ctx context.Context) error {
	if clientInstance == nil {
		return errors.New("mongodb client is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return clientInstance.Ping(pingCtx, readpref.Primary())
}

// Close disconnects the client on shutdown.
func Close(ctx context.Context) {
	if clientInstance != nil {
		if err := clientInstance.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing MongoDB connection")
		}
	}
}
