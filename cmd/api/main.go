package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grcore.org/internal/access"
	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/config"
	"grcore.org/internal/httpapi"
	"grcore.org/internal/obs"
	"grcore.org/internal/report"
	"grcore.org/internal/risk"
	"grcore.org/internal/seed"
	"grcore.org/internal/store/memory"
	"grcore.org/internal/store/pg"
)

var version = "0.1.0"

// stores is the common surface of the pg and memory backends.
type stores interface {
	auth.Store
	AccessRequests() access.Store
	Risks() risk.Store
	Compliance() compliance.Store
	Audit() audit.Store
}

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		st stores
		db *sql.DB
	)
	if cfg.DatabaseURL != "" {
		pgStore, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		st = pgStore
		db = pgStore.DB()
	} else {
		log.Printf("GRC_PG_DSN not set, serving from in-memory stores")
		mem := memory.New()
		st = mem
	}

	// Seed on boot when memory-backed or when a seed file is given;
	// every seed step is idempotent.
	if cfg.DatabaseURL == "" || cfg.SeedFile != "" {
		spec, err := seed.Load(cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := seed.New(st, st.Compliance()).Apply(ctx, spec); err != nil {
			cancel()
			log.Fatalf("seed: %v", err)
		}
		cancel()
	}

	authSvc, err := auth.NewService(st, cfg.TokenSecret,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithTokenTTL(cfg.TokenTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	svc := httpapi.Services{
		Auth:       authSvc,
		Access:     access.NewService(st.AccessRequests()),
		Risks:      risk.NewService(st.Risks()),
		Compliance: compliance.NewService(st.Compliance()),
		Reports:    report.NewService(st.AccessRequests(), st.Risks(), st.Compliance()),
		Audit:      audit.NewRecorder(st.Audit()),
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version,
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting grcore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
