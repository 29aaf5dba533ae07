package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/logger"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
	"github.com/stemsi/classpoll/internal/service"
)

func main() {
	var (
		count    int
		code     string
		password string
	)
	flag.IntVar(&count, "n", 50, "Number of students to create")
	flag.StringVar(&code, "code", "", "Access code of a session to enroll them in (optional)")
	flag.StringVar(&password, "password", "classpoll", "Password for every seeded student")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	authService := service.NewAuthService(cfg, userRepo, nil, log)

	fmt.Printf("=== Seeding %d Students ===\n", count)

	// One hash for all rows; bcrypt per row would dominate the run.
	hash, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	users := make([]model.User, 0, count)
	emails := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		email := fmt.Sprintf("student%03d@classpoll.local", i)
		users = append(users, model.User{
			Email:        email,
			Name:         fmt.Sprintf("Student %03d", i),
			PasswordHash: hash,
			Role:         model.RoleStudent,
		})
		emails = append(emails, email)
	}

	// CopyFrom aborts on duplicates, so skip emails that already exist.
	existing, err := userRepo.ListIDsByEmail(ctx, emails)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check existing students")
	}
	fresh := users[:0]
	for _, u := range users {
		if _, ok := existing[u.Email]; !ok {
			fresh = append(fresh, u)
		}
	}

	n, err := userRepo.CreateMany(ctx, fresh)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create students")
	}
	fmt.Printf("Created %d students (%d already existed)\n", n, len(existing))

	if code == "" {
		return
	}

	sess, err := sessionRepo.GetByAccessCode(ctx, code)
	if err != nil {
		log.Fatal().Err(err).Str("access_code", code).Msg("Session not found")
	}

	ids, err := userRepo.ListIDsByEmail(ctx, emails)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve student IDs")
	}
	enrolled, err := sessionRepo.ListEnrolledIDs(ctx, sess.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list enrollments")
	}
	already := make(map[int]bool, len(enrolled))
	for _, id := range enrolled {
		already[id] = true
	}
	studentIDs := make([]int, 0, len(ids))
	for _, id := range ids {
		if !already[id] {
			studentIDs = append(studentIDs, id)
		}
	}

	err = database.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := sessionRepo.WithTx(tx).EnrollMany(ctx, sess.ID, studentIDs); err != nil {
			return fmt.Errorf("enroll: %w", err)
		}
		responses := responseRepo.WithTx(tx)
		for _, id := range studentIDs {
			if _, err := responses.SeedForStudent(ctx, sess.ID, id); err != nil {
				return fmt.Errorf("seed responses: %w", err)
			}
		}
		tree, err := sessionRepo.WithTx(tx).LoadTree(ctx, sess.ID)
		if err != nil {
			return err
		}
		return responses.Recount(ctx, tree.QuestionIDs())
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enroll students")
	}

	fmt.Printf("Enrolled %d students in %q (%s)\n", len(studentIDs), sess.Title, sess.AccessCode)
}
