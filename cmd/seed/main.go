package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"usersvc/internal/auth"
	"usersvc/internal/config"
	"usersvc/internal/db"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/handler"
	"usersvc/internal/logger"
	"usersvc/internal/repository"
	"usersvc/internal/service"
)

// SeedUser is one entry of the optional -users JSON file.
type SeedUser struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

func main() {
	username := flag.String("username", os.Getenv("FIRST_SUPERUSER"), "superuser username")
	email := flag.String("email", os.Getenv("FIRST_SUPERUSER_EMAIL"), "superuser email")
	password := flag.String("password", os.Getenv("FIRST_SUPERUSER_PASSWORD"), "superuser password")
	fullName := flag.String("full-name", "", "superuser full name")
	usersFile := flag.String("users", "", "optional JSON file with regular users to register")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.Environment, cfg.LogLevel, os.Stdout)
	log.Info("starting seed script")

	gormDB, err := db.Open(cfg.DatabaseURL, db.Options{})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	log.Info("database migrations completed")

	repo := repository.NewUserRepository(gormDB)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	tokens, err := auth.NewTokenService(cfg.SecretKey, cfg.Algorithm, cfg.AccessTokenTTL())
	if err != nil {
		log.WithError(err).Fatal("token service init")
	}
	users := service.NewUserService(repo, hasher, nil, 0, log)
	authService := service.NewAuthService(repo, hasher, tokens, log, nil)
	ctx := context.Background()

	if *username != "" {
		if *email == "" || *password == "" {
			log.Fatal("-email and -password are required with -username")
		}
		in := service.RegisterInput{Email: *email, Username: *username, Password: *password}
		if *fullName != "" {
			in.FullName = fullName
		}
		user, created, err := users.EnsureSuperuser(ctx, in)
		if err != nil {
			log.WithError(err).Fatal("failed to seed superuser")
		}
		log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username, "created": created}).Info("superuser ready")
	}

	if *usersFile != "" {
		entries, err := readSeedUsers(*usersFile)
		if err != nil {
			log.WithError(err).Fatal("failed to read users file")
		}
		seeded, skipped, err := seedUsers(ctx, authService, validator.New(), entries)
		if err != nil {
			log.WithError(err).Fatal("failed to seed users")
		}
		log.WithFields(logrus.Fields{"created": seeded, "skipped": skipped}).Info("users seeded")
	}

	log.Info("seed completed")
}

func readSeedUsers(path string) ([]SeedUser, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []SeedUser
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

// seedUsers registers every entry, skipping users that already exist. Entries
// are checked against the same rules as the register endpoint.
func seedUsers(ctx context.Context, svc service.AuthService, validate *validator.Validate, entries []SeedUser) (seeded, skipped int, err error) {
	for i, entry := range entries {
		req := handler.RegisterRequest{
			Email:    entry.Email,
			Username: entry.Username,
			Password: entry.Password,
			FullName: entry.FullName,
		}
		if err := validate.Struct(req); err != nil {
			return seeded, skipped, fmt.Errorf("entry %d (%q): %w", i, entry.Username, err)
		}

		_, err := svc.Register(ctx, service.RegisterInput{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
			FullName: req.FullName,
		})
		if errors.Is(err, apperrors.ErrDuplicateUser) {
			skipped++
			continue
		}
		if err != nil {
			return seeded, skipped, fmt.Errorf("register %s: %w", entry.Username, err)
		}
		seeded++
	}
	return seeded, skipped, nil
}
