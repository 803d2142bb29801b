// seed inserts development accounts for local testing.
// Idempotent: accounts whose email already exists are left untouched.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"donorhub/backend/internal/config"
	"donorhub/backend/internal/db"
	"donorhub/backend/internal/password"
	passwordrepo "donorhub/backend/internal/password/repository"
	"donorhub/backend/internal/security"
	"donorhub/backend/internal/user/domain"
	userrepo "donorhub/backend/internal/user/repository"
)

type account struct {
	email       string
	name        string
	role        domain.Role
	passwordEnv string
	fallback    string
}

var accounts = []account{
	{email: "admin@example.com", name: "Admin", role: domain.RoleAdmin, passwordEnv: "SEED_ADMIN_PASSWORD", fallback: "Adm1n!Passw0rd"},
	{email: "staff@example.com", name: "Staff", role: domain.RoleStaff, passwordEnv: "SEED_STAFF_PASSWORD", fallback: "St4ff!Passw0rd"},
	{email: "donor@example.com", name: "Donor", role: domain.RoleDonor, passwordEnv: "SEED_DONOR_PASSWORD", fallback: "D0nor!Passw0rd"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	guard := password.NewGuard(hasher, passwordrepo.NewPostgresRepository(conn),
		password.WithDepth(cfg.PasswordHistoryCheck, cfg.PasswordHistoryRetain))

	created := 0
	for _, a := range accounts {
		ok, err := seedAccount(ctx, users, guard, a)
		if err != nil {
			log.Fatalf("seed %s: %v", a.email, err)
		}
		if ok {
			created++
			fmt.Printf("created %s (%s)\n", a.email, a.role)
		}
	}
	if created == 0 {
		fmt.Println("Seed already applied. Skipping.")
	}
}

func seedAccount(ctx context.Context, users *userrepo.PostgresRepository, guard *password.Guard, a account) (bool, error) {
	existing, err := users.GetByEmail(ctx, a.email)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	plaintext := os.Getenv(a.passwordEnv)
	if plaintext == "" {
		plaintext = a.fallback
	}
	hash, err := guard.HashWithHistory(ctx, plaintext, "")
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        a.email,
		Name:         a.name,
		Role:         a.role,
		Status:       domain.UserStatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		return false, err
	}
	return true, guard.Commit(ctx, u.ID, hash)
}
