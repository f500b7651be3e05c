package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLog stores entries as documents in one MongoDB collection.
type MongoLog struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoLog connects to uri and makes sure the session index exists.
func NewMongoLog(ctx context.Context, uri, database, collection string) (*MongoLog, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "session", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}

	return &MongoLog{client: client, collection: coll}, nil
}

func (m *MongoLog) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid history entry: %w", err)
	}
	if _, err := m.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

func (m *MongoLog) List(ctx context.Context, session string) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.D{{Key: "session", Value: session}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	entries := make([]Entry, 0)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}

func (m *MongoLog) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
