package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/roach88/teamtask/internal/domain"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMongoSink_AppendEvent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("with user writes event and activity", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())
		sink := NewMongoSink(mt.DB)

		err := sink.AppendEvent(context.Background(), domain.EventRecord{
			ID:        "e1",
			EventType: domain.EventTaskCreated,
			EventData: domain.EventData{"task_id": "t1"},
			UserID:    "u1",
			Timestamp: ts,
		})
		require.NoError(t, err)

		events := mt.GetAllStartedEvents()
		require.Len(t, events, 2)
		assert.Equal(t, "insert", events[0].CommandName)
		assert.Equal(t, EventLogsCollection, events[0].Command.Lookup("insert").StringValue())
		assert.Equal(t, UserActivitiesCollection, events[1].Command.Lookup("insert").StringValue())
	})

	mt.Run("without user writes event only", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		sink := NewMongoSink(mt.DB)

		err := sink.AppendEvent(context.Background(), domain.EventRecord{
			ID:        "e2",
			EventType: domain.EventSecurityFailedLogin,
			Timestamp: ts,
		})
		require.NoError(t, err)
		assert.Len(t, mt.GetAllStartedEvents(), 1)
	})

	mt.Run("insert failure is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		sink := NewMongoSink(mt.DB)

		err := sink.AppendEvent(context.Background(), domain.EventRecord{ID: "e1", UserID: "u1", Timestamp: ts})
		assert.ErrorContains(t, err, "insert event e1")
	})
}

func TestMongoSink_ReadEvents(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes documents", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + EventLogsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "e2"},
				{Key: "event_type", Value: "TASK_ASSIGNED"},
				{Key: "event_data", Value: bson.D{{Key: "assigned_to", Value: "member-a"}}},
				{Key: "metadata", Value: bson.D{{Key: "ip", Value: "10.0.0.1"}}},
				{Key: "user_id", Value: "manager-1"},
				{Key: "timestamp", Value: ts},
			},
		))
		sink := NewMongoSink(mt.DB)

		got, err := sink.ReadEvents(context.Background(), domain.EventFilter{UserID: "manager-1"}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "e2", got[0].ID)
		assert.Equal(t, domain.EventTaskAssigned, got[0].EventType)
		assert.Equal(t, "member-a", got[0].EventData["assigned_to"])
		assert.Equal(t, "10.0.0.1", got[0].Metadata.IP)
		assert.True(t, ts.Equal(got[0].Timestamp))
	})

	mt.Run("activity", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + UserActivitiesCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "event_id", Value: "e1"},
				{Key: "user_id", Value: "u1"},
				{Key: "event_type", Value: "USER_LOGIN"},
				{Key: "timestamp", Value: ts},
			},
		))
		sink := NewMongoSink(mt.DB)

		got, err := sink.ReadUserActivity(context.Background(), "u1", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "e1", got[0].ID)
		assert.Equal(t, domain.EventUserLogin, got[0].EventType)
	})
}
