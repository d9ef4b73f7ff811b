// Command cleanup removes expired refresh tokens and revoked rows past their
// retention window. Run it from cron or a Kubernetes CronJob.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"gymgate.io/internal/audit"
	"gymgate.io/internal/auth"
	"gymgate.io/internal/obs"
	"gymgate.io/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	lg := obs.NewLogger()
	defer func() { _ = lg.Sync() }()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		lg.Fatal("DATABASE_URL is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		lg.Fatalw("open database", "error", err)
	}
	defer store.Close()

	issuer, err := auth.NewTokenIssuer(
		os.Getenv("JWT_ACCESS_SECRET"),
		os.Getenv("JWT_REFRESH_SECRET"),
	)
	if err != nil {
		lg.Fatalw("configure token issuer", "error", err)
	}
	rotation := auth.NewRotationService(store, issuer, auth.NewResolver(store), audit.New(lg), lg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := rotation.CleanupExpired(ctx)
	if err != nil {
		lg.Fatalw("cleanup failed", "error", err)
	}
	lg.Infow("cleanup finished", "tokens_removed", removed)
}
