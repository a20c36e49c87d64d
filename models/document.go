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

// DocumentRecord tracks one uploaded file's lifecycle. Records are never
// physically removed: deletion flips is_deleted and the chunks are purged
// from the vector index separately.
type DocumentRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Filename     string             `bson:"filename" json:"filename"`
	FilePath     string             `bson:"file_path" json:"file_path"`
	FileSize     int64              `bson:"file_size" json:"file_size"`
	FileType     string             `bson:"file_type" json:"file_type"`
	UploadedBy   string             `bson:"uploaded_by" json:"uploaded_by"`
	IsIndexed    bool               `bson:"is_indexed" json:"is_indexed"`
	IsDeleted    bool               `bson:"is_deleted" json:"is_deleted"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	LastModified time.Time          `bson:"last_modified" json:"last_modified"`
}

// DocumentStore persists DocumentRecords in the documents collection.
type DocumentStore struct {
	col *mongo.Collection
}

func NewDocumentStore(db *mongo.Database) *DocumentStore {
	return &DocumentStore{col: db.Collection("documents")}
}

// Create inserts a new record with is_indexed=false.
func (s *DocumentStore) Create(ctx context.Context, record *DocumentRecord) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	record.UploadedAt = now
	record.LastModified = now
	record.IsIndexed = false
	record.IsDeleted = false

	res, err := s.col.InsertOne(ctx, record)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		record.ID = id
	}
	return nil
}

// MarkIndexed flips is_indexed on the record.
func (s *DocumentStore) MarkIndexed(ctx context.Context, id primitive.ObjectID, indexed bool) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"is_indexed":    indexed,
			"last_modified": time.Now().UTC(),
		},
	})
	return err
}

// MarkDeleted soft-deletes the record.
func (s *DocumentStore) MarkDeleted(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"is_deleted":    true,
			"last_modified": time.Now().UTC(),
		},
	})
	return err
}

// FindByFilename returns the most recent non-deleted record for filename,
// or mongo.ErrNoDocuments.
func (s *DocumentStore) FindByFilename(ctx context.Context, filename string) (*DocumentRecord, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var record DocumentRecord
	err := s.col.FindOne(ctx,
		bson.M{"filename": filename, "is_deleted": false},
		options.FindOne().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}),
	).Decode(&record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns records, newest first.
func (s *DocumentStore) List(ctx context.Context, includeDeleted bool, limit int64) ([]DocumentRecord, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if !includeDeleted {
		filter["is_deleted"] = false
	}
	cursor, err := s.col.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []DocumentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
