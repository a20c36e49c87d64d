package models

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"sql-rag-platform/utils"
)

// LLMConfig is one selectable model configuration. Queries may name a
// config by id; otherwise the default active config is used, falling back
// to the environment-provided Gemini settings when none is stored.
type LLMConfig struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Provider    string             `bson:"provider" json:"provider"` // "google"
	ModelName   string             `bson:"model_name" json:"model_name"`
	Temperature float64            `bson:"temperature" json:"temperature"`
	IsDefault   bool               `bson:"is_default" json:"is_default"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
}

type LLMConfigStore struct {
	col *mongo.Collection
}

func NewLLMConfigStore(db *mongo.Database) *LLMConfigStore {
	return &LLMConfigStore{col: db.Collection("llm_configs")}
}

// Resolve returns the config for id, or the default active config when id is
// empty. A missing or inactive id is an error; a missing default is not —
// the caller falls back to its environment settings.
func (s *LLMConfigStore) Resolve(ctx context.Context, id string) (*LLMConfig, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if id != "" {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid llm config id %q: %v", id, err)
		}
		var cfg LLMConfig
		err = s.col.FindOne(ctx, bson.M{"_id": oid, "is_active": true}).Decode(&cfg)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("llm config %s not found or not active", id)
		}
		if err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	var cfg LLMConfig
	err := s.col.FindOne(ctx, bson.M{"is_default": true, "is_active": true}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert stores a config; clearing is_default elsewhere when this one is
// marked default.
func (s *LLMConfigStore) Upsert(ctx context.Context, cfg *LLMConfig) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if cfg.IsDefault {
		if _, err := s.col.UpdateMany(ctx, bson.M{"is_default": true},
			bson.M{"$set": bson.M{"is_default": false}}); err != nil {
			return err
		}
	}
	if cfg.ID.IsZero() {
		res, err := s.col.InsertOne(ctx, cfg)
		if err != nil {
			return err
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			cfg.ID = id
		}
		return nil
	}
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": cfg.ID}, cfg)
	return err
}

// List returns all configs.
func (s *LLMConfigStore) List(ctx context.Context) ([]LLMConfig, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := s.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var configs []LLMConfig
	if err := cursor.All(ctx, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}
