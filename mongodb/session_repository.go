package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/framerate-dev/tokenvault/domain"
)

// SessionRepositoryMongo implements domain.SessionRepository on a single
// MongoDB collection with unique indexes on user_id and session_id.
type SessionRepositoryMongo struct {
	collection *mongo.Collection
}

// NewSessionRepositoryMongo creates the repository and ensures its indexes.
func NewSessionRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.SessionRepository, error) {
	repo := &SessionRepositoryMongo{
		collection: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for user_sessions collection (might already exist)")
	}

	return repo, nil
}

// FindByUserID returns the user's session, or domain.ErrSessionNotFound.
func (r *SessionRepositoryMongo) FindByUserID(ctx context.Context, userID string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"user_id": userID})
}

// FindBySessionID returns the session holding the given provider session id,
// or domain.ErrSessionNotFound.
func (r *SessionRepositoryMongo) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"session_id": sessionID})
}

func (r *SessionRepositoryMongo) findOne(ctx context.Context, filter bson.M) (*domain.Session, error) {
	var session domain.Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		log.Error().Err(err).Msg("Error reading session from MongoDB")
		return nil, err
	}
	return &session, nil
}

// Upsert applies the rotation-aware write semantics of domain.SessionUpsert.
func (r *SessionRepositoryMongo) Upsert(ctx context.Context, up domain.SessionUpsert) error {
	now := time.Now().UTC()

	existing, err := r.FindByUserID(ctx, up.UserID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	if existing == nil {
		session := domain.Session{
			ID:               uuid.NewString(),
			UserID:           up.UserID,
			SessionID:        up.SessionID,
			RefreshToken:     up.RefreshToken,
			DeviceSecretHash: up.DeviceSecretHash,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if _, err := r.collection.InsertOne(ctx, session); err != nil {
			log.Error().Err(err).Str("user_id", up.UserID).Msg("Error inserting session in MongoDB")
			return err
		}
		return nil
	}

	set := bson.M{
		"refresh_token":      up.RefreshToken,
		"session_id":         up.SessionID,
		"device_secret_hash": up.DeviceSecretHash,
		"updated_at":         now,
	}
	if up.PreviousRefreshToken != "" {
		// An explicit previous token marks a real rotation.
		set["previous_refresh_token"] = up.PreviousRefreshToken
		set["rotated_at"] = now
	} else {
		set["previous_refresh_token"] = existing.RefreshToken
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("user_id", up.UserID).Msg("Error updating session in MongoDB")
	}
	return err
}

// StoreInitial records the post-login handoff without touching the rotation
// bookkeeping fields.
func (r *SessionRepositoryMongo) StoreInitial(ctx context.Context, userID, sessionID, refreshToken, deviceSecretHash string) error {
	now := time.Now().UTC()

	existing, err := r.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	if existing == nil {
		session := domain.Session{
			ID:               uuid.NewString(),
			UserID:           userID,
			SessionID:        sessionID,
			RefreshToken:     refreshToken,
			DeviceSecretHash: deviceSecretHash,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		_, err := r.collection.InsertOne(ctx, session)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Error inserting session in MongoDB")
		}
		return err
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": bson.M{
		"refresh_token":      refreshToken,
		"session_id":         sessionID,
		"device_secret_hash": deviceSecretHash,
		"updated_at":         now,
	}})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error updating session in MongoDB")
	}
	return err
}

// DeleteByUserID removes the user's session. No-op if absent.
func (r *SessionRepositoryMongo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.deleteOne(ctx, bson.M{"user_id": userID})
}

// DeleteBySessionID removes the session with the given provider session id.
// No-op if absent.
func (r *SessionRepositoryMongo) DeleteBySessionID(ctx context.Context, sessionID string) error {
	return r.deleteOne(ctx, bson.M{"session_id": sessionID})
}

func (r *SessionRepositoryMongo) deleteOne(ctx context.Context, filter bson.M) error {
	_, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("Error deleting session from MongoDB")
	}
	return err
}

var _ domain.SessionRepository = (*SessionRepositoryMongo)(nil)
