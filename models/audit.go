package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sql-rag-platform/utils"
)

// AuditEvent is an immutable admin audit entry. Entries form a hash chain:
// each event carries the hash of the previous one, so tampering with stored
// history is detectable.
type AuditEvent struct {
	ID           string         `bson:"_id,omitempty"`
	Timestamp    time.Time      `bson:"timestamp"`
	Username     string         `bson:"username"`
	Action       string         `bson:"action"` // create, index, delete, sync, export
	Module       string         `bson:"module"` // documents, sql, queries, users
	Details      map[string]any `bson:"details,omitempty"`
	PreviousHash string         `bson:"previous_hash"`
	CurrentHash  string         `bson:"current_hash"`
}

// ComputeHash hashes the chained fields of this event.
func (e *AuditEvent) ComputeHash() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		e.Timestamp.Format(time.RFC3339Nano),
		e.Username,
		e.Action,
		e.Module,
		e.PreviousHash,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// AuditLogger appends to the insert-only audit_logs collection.
type AuditLogger struct {
	col *mongo.Collection

	// Serializes the read-head-then-insert sequence within this process.
	mu sync.Mutex
}

func NewAuditLogger(db *mongo.Database) *AuditLogger {
	return &AuditLogger{col: db.Collection("audit_logs")}
}

// Log records an admin action. The previous hash is read from the newest
// stored event on every insert, so the chain stays linked across process
// restarts and across the server and worker writing to the same collection.
// Audit failures are logged, not fatal: the operation being audited has
// already happened.
func (al *AuditLogger) Log(ctx context.Context, username, action, module string, details map[string]any) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	previous, err := al.chainHead(ctx)
	if err != nil {
		slog.Error("failed to read audit chain head", "action", action, "module", module, "error", err)
		return err
	}

	event := &AuditEvent{
		ID:           fmt.Sprintf("%d_%s", time.Now().UnixNano(), module),
		Timestamp:    time.Now().UTC(),
		Username:     username,
		Action:       action,
		Module:       module,
		Details:      details,
		PreviousHash: previous,
	}
	event.CurrentHash = event.ComputeHash()

	if _, err := al.col.InsertOne(ctx, event); err != nil {
		slog.Error("failed to write audit event", "action", action, "module", module, "error", err)
		return err
	}
	return nil
}

// chainHead returns the newest stored event's hash, or "" for an empty
// collection.
func (al *AuditLogger) chainHead(ctx context.Context) (string, error) {
	var newest AuditEvent
	err := al.col.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})).Decode(&newest)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return newest.CurrentHash, nil
}

// VerifyChain walks the stored events in timestamp order and checks that
// each entry links to its predecessor.
func (al *AuditLogger) VerifyChain(ctx context.Context) (bool, error) {
	ctx, cancel := utils.WithLongTimeout(ctx)
	defer cancel()

	cursor, err := al.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return false, err
	}
	defer cursor.Close(ctx)

	var events []AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return false, err
	}
	return chainIntact(events), nil
}

// chainIntact checks a timestamp-ordered event sequence: every entry must
// hash to its stored value and link to its predecessor's hash.
func chainIntact(events []AuditEvent) bool {
	var previous string
	for i, event := range events {
		if i > 0 && event.PreviousHash != previous {
			slog.Warn("audit chain broken", "event_id", event.ID)
			return false
		}
		if event.ComputeHash() != event.CurrentHash {
			slog.Warn("audit event hash mismatch", "event_id", event.ID)
			return false
		}
		previous = event.CurrentHash
	}
	return true
}

// Recent returns the newest events up to limit.
func (al *AuditLogger) Recent(ctx context.Context, limit int64) ([]AuditEvent, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := al.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
