package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gymgate.io/internal/audit"
	"gymgate.io/internal/auth"
	"gymgate.io/internal/httpapi"
	"gymgate.io/internal/mailer"
	"gymgate.io/internal/obs"
	"gymgate.io/internal/store/pg"
)

var version = "0.3.0"

func main() {
	_ = godotenv.Load()

	lg := obs.NewLogger()
	defer func() { _ = lg.Sync() }()

	obs.Init()

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

	auditor := audit.New(lg)
	resolver := auth.NewResolver(store)
	rotation := auth.NewRotationService(store, issuer, resolver, auditor, lg)
	service := auth.NewService(store, issuer, resolver, rotation, mailer.NewFromEnv(lg), auditor, lg)

	api := httpapi.New(service, rotation, issuer, store, store, lg,
		httpapi.WithCORSOrigins(splitList(os.Getenv("CORS_ORIGINS"))),
	)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lg.Infow("starting gymgate-api", "version", version, "addr", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatalw("listen", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	lg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	lg.Info("stopped")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
