package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/logger"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
	"github.com/stemsi/classpoll/internal/service"
	"golang.org/x/term"
)

func main() {
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

	// ─── Initialize Services ───────────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	// Registration only touches Postgres; no Redis client is needed here.
	authService := service.NewAuthService(cfg, userRepo, nil, log)
	userService := service.NewUserService(pool, userRepo, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Admin User ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println()
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// Accounts always start as STUDENT and climb the lattice one step at a time.
	u, err := authService.Register(ctx, &model.RegisterRequest{Email: email, Name: name, Password: password})
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			fmt.Println("Error: Email is already registered. Use promote-user instead.")
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	id := u.ID
	u, err = userService.Escalate(ctx, id, model.RoleAdmin)
	if err != nil {
		log.Fatal().Err(err).Int("user_id", id).Msg("Failed to escalate user")
	}

	fmt.Printf("\nAdmin user created: id=%d email=%s role=%s\n", u.ID, u.Email, u.Role)
}
