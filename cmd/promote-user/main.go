package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/logger"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
	"github.com/stemsi/classpoll/internal/service"
)

func main() {
	var email, role string
	flag.StringVar(&email, "email", "", "Email of the user to promote")
	flag.StringVar(&role, "role", string(model.RoleTeacher), "Target role (TEACHER or ADMIN)")
	flag.Parse()

	target := model.Role(strings.ToUpper(role))
	if email == "" || target.Rank() < 1 {
		fmt.Println("Usage: promote-user -email <email> [-role TEACHER|ADMIN]")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	userService := service.NewUserService(pool, userRepo, log)

	u, err := userRepo.GetByEmail(ctx, email)
	if err != nil {
		if database.IsNotFound(err) {
			fmt.Printf("Error: no user with email %s\n", email)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to look up user")
	}

	fmt.Printf("=== Promote %s (%s → %s) ===\n", u.Email, u.Role, target)

	u, err = userService.Escalate(ctx, u.ID, target)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to promote user")
	}
	fmt.Printf("Done: id=%d role=%s\n", u.ID, u.Role)
}
