package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"grcore.org/internal/migrate"
	"grcore.org/internal/seed"
	"grcore.org/internal/store/pg"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("GRC_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", envOr("GRC_MIGRATIONS_DIR", "migrations"), "Path to SQL migrations")
		seedFile       = flag.String("seed-file", os.Getenv("GRC_SEED_FILE"), "YAML seed spec (empty uses builtin defaults)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GRC_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), *migrationsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		var spec *seed.Spec
		spec, err = seed.Load(*seedFile)
		if err == nil {
			err = seed.New(store, store.Compliance()).Apply(ctx, spec)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
