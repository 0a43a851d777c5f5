package eventlog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/teamtask/internal/domain"
)

// Collection names.
const (
	EventLogsCollection      = "event_logs"
	UserActivitiesCollection = "user_activities"
)

// eventDoc is the stored shape of an event record.
type eventDoc struct {
	ID        string               `bson:"_id"`
	EventType string               `bson:"event_type"`
	EventData map[string]any       `bson:"event_data"`
	Metadata  domain.EventMetadata `bson:"metadata"`
	UserID    string               `bson:"user_id,omitempty"`
	Timestamp time.Time            `bson:"timestamp"`
}

// activityDoc mirrors a user's event into the activity timeline.
type activityDoc struct {
	EventID   string               `bson:"event_id"`
	UserID    string               `bson:"user_id"`
	EventType string               `bson:"event_type"`
	EventData map[string]any       `bson:"event_data"`
	Metadata  domain.EventMetadata `bson:"metadata"`
	Timestamp time.Time            `bson:"timestamp"`
}

// MongoSink archives events in MongoDB.
type MongoSink struct {
	events     *mongo.Collection
	activities *mongo.Collection
}

var (
	_ Sink   = (*MongoSink)(nil)
	_ Reader = (*MongoSink)(nil)
)

// NewMongoSink uses the event collections of db.
func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{
		events:     db.Collection(EventLogsCollection),
		activities: db.Collection(UserActivitiesCollection),
	}
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// AppendEvent inserts the record and, when it carries a user, the
// activity entry.
func (m *MongoSink) AppendEvent(ctx context.Context, rec domain.EventRecord) error {
	data := map[string]any(rec.EventData)
	if data == nil {
		data = map[string]any{}
	}
	ts := rec.Timestamp.UTC()

	_, err := m.events.InsertOne(ctx, eventDoc{
		ID:        rec.ID,
		EventType: string(rec.EventType),
		EventData: data,
		Metadata:  rec.Metadata,
		UserID:    rec.UserID,
		Timestamp: ts,
	})
	if err != nil {
		return fmt.Errorf("insert event %s: %w", rec.ID, err)
	}

	if rec.UserID == "" {
		return nil
	}
	_, err = m.activities.InsertOne(ctx, activityDoc{
		EventID:   rec.ID,
		UserID:    rec.UserID,
		EventType: string(rec.EventType),
		EventData: data,
		Metadata:  rec.Metadata,
		Timestamp: ts,
	})
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", rec.ID, err)
	}
	return nil
}

// ReadEvents returns up to limit events matching f, newest first.
func (m *MongoSink) ReadEvents(ctx context.Context, f domain.EventFilter, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{}
	if f.EventType != "" {
		filter["event_type"] = string(f.EventType)
	}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		window := bson.M{}
		if !f.Since.IsZero() {
			window["$gte"] = f.Since.UTC()
		}
		if !f.Until.IsZero() {
			window["$lte"] = f.Until.UTC()
		}
		filter["timestamp"] = window
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	records := make([]domain.EventRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, domain.EventRecord{
			ID:        d.ID,
			EventType: domain.EventType(d.EventType),
			EventData: d.EventData,
			Metadata:  d.Metadata,
			UserID:    d.UserID,
			Timestamp: d.Timestamp,
		})
	}
	return records, nil
}

// ReadUserActivity returns up to limit activity entries, newest first.
func (m *MongoSink) ReadUserActivity(ctx context.Context, userID string, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.activities.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("read user activity: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []activityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read user activity: %w", err)
	}
	records := make([]domain.EventRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, domain.EventRecord{
			ID:        d.EventID,
			EventType: domain.EventType(d.EventType),
			EventData: d.EventData,
			Metadata:  d.Metadata,
			UserID:    d.UserID,
			Timestamp: d.Timestamp,
		})
	}
	return records, nil
}
