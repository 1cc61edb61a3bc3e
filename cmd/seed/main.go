// Command seed loads sample issues into the postgres issue store for local
// dashboard development.
package main

import (
	"context"
	"flag"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebear/internal/config"
	"carebear/internal/logging"
	"carebear/internal/repository"
	"carebear/pkg/models"
)

func main() {
	ctx := context.Background()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, "console")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	// Connect to DB
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresIssueStore(pool)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	reporter := models.Profile{ID: "U0SEED", Name: "Seed Script", Handle: "seed", TeamID: "T0SEED"}
	channel := models.Channel{ID: "C0SEED", Name: "oncall"}

	samples := []struct {
		Text   string
		Rank   models.Rank
		Status models.Status
	}{
		{"Checkout page returns 500 for every EU customer", models.RankCritical, models.StatusInProgress},
		{"Nightly export finished two hours late again", models.RankHigh, models.StatusBacklog},
		{"Typo in the password reset email subject", models.RankLow, models.StatusBacklog},
		{"Search results are missing archived projects", models.RankHigh, models.StatusDone},
	}

	now := time.Now().UTC()
	for i, s := range samples {
		// Deterministic ids make a rerun a no-op.
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("carebear-seed:"+s.Text)).String()
		created := now.Add(-time.Duration(len(samples)-i) * time.Hour)

		issue := &models.Issue{
			ID:   id,
			Rank: s.Rank,
			Message: models.Message{
				Channel:   channel,
				Timestamp: strconv.FormatInt(created.Unix(), 10) + ".000100",
				Text:      s.Text,
				Author:    reporter,
			},
			ReportingUser: reporter,
			Status:        s.Status,
			CreatedAt:     created,
			UpdatedAt:     created,
		}

		if err := store.Create(ctx, issue); err != nil {
			log.Printf("Failed to create issue %q: %v", s.Text, err)
		} else {
			logger.Info("Seeded issue", "id", id, "rank", string(s.Rank), "status", string(s.Status))
		}
	}
	logger.Info("Seeding complete!")
}
