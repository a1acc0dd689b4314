// seed inserts a development login so a fresh database is usable immediately.
// Not for production.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"roomly/identity/internal/config"
	"roomly/identity/internal/db"
	"roomly/identity/internal/identity/domain"
	identityrepo "roomly/identity/internal/identity/repository"
	"roomly/identity/internal/security"
)

const (
	seedEmail    = "dev@roomly.local"
	seedPassword = "devpassword"
	seedName     = "Dev User"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" {
		fmt.Fprintln(os.Stderr, "seed: refusing to run with APP_ENV=production")
		os.Exit(1)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	repo := identityrepo.NewPostgresRepository(database)

	existing, err := repo.GetByEmail(ctx, seedEmail)
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	if existing != nil {
		fmt.Printf("seed identity already present: %s (%s)\n", seedEmail, existing.ID)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(seedPassword))
	if err != nil {
		log.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	id := &domain.Identity{
		ID:           uuid.New().String(),
		DisplayName:  seedName,
		Email:        seedEmail,
		AuthProvider: domain.AuthProviderPassword,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, id); err != nil {
		log.Fatalf("create: %v", err)
	}
	fmt.Printf("seeded %s / %s (%s)\n", seedEmail, seedPassword, id.ID)
}
