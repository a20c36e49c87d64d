package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	usersCollection := db.Collection("users")
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := usersCollection.Indexes().CreateMany(context.Background(), userIndexes); err != nil {
		return err
	}

	documentsCollection := db.Collection("documents")
	documentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "filename", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "is_indexed", Value: 1}, {Key: "is_deleted", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "uploaded_by", Value: 1}},
		},
	}
	if _, err := documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes); err != nil {
		return err
	}

	llmConfigsCollection := db.Collection("llm_configs")
	llmIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "is_default", Value: 1}, {Key: "is_active", Value: 1}},
		},
	}
	if _, err := llmConfigsCollection.Indexes().CreateMany(context.Background(), llmIndexes); err != nil {
		return err
	}

	queryLogsCollection := db.Collection("query_logs")
	queryLogIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := queryLogsCollection.Indexes().CreateMany(context.Background(), queryLogIndexes); err != nil {
		return err
	}

	auditCollection := db.Collection("audit_logs")
	auditIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "module", Value: 1}, {Key: "action", Value: 1}},
		},
	}
	if _, err := auditCollection.Indexes().CreateMany(context.Background(), auditIndexes); err != nil {
		return err
	}

	return nil
}
