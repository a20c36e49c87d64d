package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sql-rag-platform/utils"
)

// QueryLog records one orchestrated question/answer cycle, including any
// per-stage warnings the call survived.
type QueryLog struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Question     string             `bson:"question" json:"question"`
	GeneratedSQL string             `bson:"generated_sql,omitempty" json:"generated_sql,omitempty"`
	Answer       string             `bson:"answer" json:"answer"`
	Status       string             `bson:"status" json:"status"` // success, failed
	Warnings     map[string]string  `bson:"warnings,omitempty" json:"warnings,omitempty"`
	DurationMS   int64              `bson:"duration_ms" json:"duration_ms"`
	Timestamp    time.Time          `bson:"timestamp" json:"timestamp"`
}

type QueryLogStore struct {
	col *mongo.Collection
}

func NewQueryLogStore(db *mongo.Database) *QueryLogStore {
	return &QueryLogStore{col: db.Collection("query_logs")}
}

func (s *QueryLogStore) Insert(ctx context.Context, entry *QueryLog) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	entry.Timestamp = time.Now().UTC()
	_, err := s.col.InsertOne(ctx, entry)
	return err
}

// List returns entries newest first, up to limit.
func (s *QueryLogStore) List(ctx context.Context, limit int64) ([]QueryLog, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := s.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []QueryLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
