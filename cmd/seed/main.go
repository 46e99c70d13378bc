package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"vendor-billing-engine/internal/config"
	pg "vendor-billing-engine/internal/infra/db/postgres"
)

// seed applies the database schema and prints the configured plan catalog so
// operators can sanity-check pricing before the engine starts billing.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		log.Fatalf("plan catalog: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	fmt.Println("schema applied")

	fmt.Printf("catalog version %s:\n", catalog.Version())
	for _, p := range catalog.List() {
		fmt.Printf("  - %s (monthly=%d, yearly=%d %s, trial=%d days)\n",
			p.ID, p.MonthlyPrice, p.YearlyPrice, cfg.Billing.Currency, p.TrialDays)
	}
	fmt.Println("✅ Seeding complete.")
}
