package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the durable backend settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoStore is the durable document backend.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect tries to reach the durable backend within the configured timeout.
// If it is unreachable the ephemeral in-memory backend is returned instead;
// the rest of the application never needs to know which one it got. After
// this decision there is no re-fallback: a later outage surfaces as an
// operation error.
func Connect(cfg Config, log *logrus.Logger) Store {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err == nil {
		err = client.Ping(ctx, nil)
	}
	if err != nil {
		log.WithError(err).Warn("durable backend unreachable, falling back to in-memory storage")
		return NewMemoryStore()
	}

	store := &MongoStore{client: client, db: client.Database(cfg.Database)}
	if err := store.ensureIndexes(ctx); err != nil {
		log.WithError(err).Warn("failed to create indexes")
	}
	log.WithField("uri", cfg.URI).Info("connected to durable backend")
	return store
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	frameIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "video_id", Value: 1}}},
		{Keys: bson.D{{Key: "video_id", Value: 1}, {Key: "frame_number", Value: 1}}},
		{Keys: bson.D{{Key: "video_id", Value: 1}, {Key: "face_found", Value: 1}}},
	}
	if _, err := s.db.Collection(CollectionFrames).Indexes().CreateMany(ctx, frameIndexes); err != nil {
		return fmt.Errorf("frame indexes: %w", err)
	}
	segmentIndex := mongo.IndexModel{Keys: bson.D{{Key: "video_id", Value: 1}}}
	if _, err := s.db.Collection(CollectionSegments).Indexes().CreateOne(ctx, segmentIndex); err != nil {
		return fmt.Errorf("segment index: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, doc Doc) (string, error) {
	stored := cloneDoc(doc)
	id, _ := stored["_id"].(string)
	if id == "" {
		id = uuid.New().String()
		stored["_id"] = id
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC()
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

func (s *MongoStore) CreateMany(ctx context.Context, collection string, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := make([]any, 0, len(docs))
	for _, doc := range docs {
		stored := cloneDoc(doc)
		if _, ok := stored["created_at"]; !ok {
			stored["created_at"] = now
		}
		batch = append(batch, stored)
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var doc Doc
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// findSort picks the sort keys that reproduce the memory backend's insertion
// order. created_at alone can tie when consecutive inserts land in the same
// millisecond, so the per-collection monotonic field breaks the tie.
func findSort(collection string) bson.D {
	switch collection {
	case CollectionFrames:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "frame_number", Value: 1}}
	case CollectionSegments:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "start_time", Value: 1}}
	default:
		return bson.D{{Key: "created_at", Value: 1}}
	}
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter Doc, skip, limit int64) ([]Doc, error) {
	if filter == nil {
		filter = Doc{}
	}
	opts := options.Find().SetSort(findSort(collection))
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Doc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	if filter == nil {
		filter = Doc{}
	}
	count, err := s.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, patch Doc) (Doc, error) {
	set := cloneDoc(patch)
	set["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc Doc
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) (int64, error) {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return 0, ErrNotFound
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter Doc) (int64, error) {
	if filter == nil {
		filter = Doc{}
	}
	res, err := s.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Fallback() bool { return false }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
