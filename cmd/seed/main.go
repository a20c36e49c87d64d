package main

import (
	"context"
	"log"
	"os"
	"time"

	"sql-rag-platform/internal/config"
	"sql-rag-platform/models"
	"sql-rag-platform/utils"
)

// Seeds the initial admin account. Username and password come from
// SEED_ADMIN_USER / SEED_ADMIN_PASSWORD.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	username := os.Getenv("SEED_ADMIN_USER")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("SEED_ADMIN_USER and SEED_ADMIN_PASSWORD are required")
	}
	if len(password) < 8 {
		log.Fatal("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := models.NewUserStore(mongoClient.Database(cfg.DBName))
	if existing, err := users.FindByUsername(ctx, username); err == nil && existing != nil {
		log.Printf("admin %q already exists, nothing to do", username)
		return
	}

	hash, err := utils.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	user := &models.User{
		Username:     username,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         "admin",
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatal("Failed to create admin:", err)
	}
	log.Printf("admin %q created", username)
}
