// Command availability recomputes the availability of every bundle containing
// the given concrete SKUs, or of the given bundle SKUs with -bundle. With
// -server it asks a running bundle service instead of opening the database.
// With -history it prints the recorded availability events of each SKU
// instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"productbundle/internal/bundle"
	"productbundle/internal/client"
	"productbundle/internal/config"
	"productbundle/internal/eventstore"
	"productbundle/internal/postgres"
	"productbundle/internal/telemetry"
)

// refresher is the part of the bundle service this command drives.
type refresher struct {
	affected func(context.Context, string) error
	bundle   func(context.Context, string) error
}

func main() {
	bundles := flag.Bool("bundle", false, "treat arguments as bundle SKUs")
	server := flag.String("server", "", "base URL of a running bundle service")
	history := flag.Bool("history", false, "print the availability events of each SKU")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-bundle | -history] [-server URL] SKU...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 || (*history && (*bundles || *server != "")) {
		flag.Usage()
		os.Exit(2)
	}

	if *server != "" && os.Getenv("STORAGE") == "" {
		// no database settings are needed to talk to a server
		os.Setenv("STORAGE", config.StorageMemory)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.Production(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var r refresher
	if *server != "" {
		c := client.NewBundleClient(*server)
		r = refresher{affected: c.RefreshAffected, bundle: c.RefreshBundle}
	} else {
		if cfg.Storage != config.StoragePostgres {
			logger.Fatal("nothing to refresh in memory storage; use -server or STORAGE=postgres")
		}
		db, err := postgres.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		es := eventstore.NewEventStore(db)
		if *history {
			code := printHistory(ctx, es, flag.Args(), logger)
			db.Close()
			cancel()
			os.Exit(code)
		}
		catalog := postgres.NewCatalog(db)
		svc := bundle.NewService(bundle.Dependencies{
			Catalog:      catalog,
			Bundles:      catalog,
			Availability: eventstore.NewAvailabilityLog(postgres.NewAvailability(db), es),
			Invalidator:  eventstore.NewInvalidator(es),
			Orders:       postgres.NewOrders(db),
			Logger:       logger,
		})
		r = refresher{affected: svc.UpdateAffectedBundlesAvailability, bundle: svc.UpdateBundleAvailability}
	}

	refresh := r.affected
	if *bundles {
		refresh = r.bundle
	}

	failed := 0
	for _, sku := range flag.Args() {
		if err := refresh(ctx, sku); err != nil {
			logger.Error("availability refresh failed", zap.String("sku", sku), zap.Error(err))
			failed++
			continue
		}
		logger.Info("availability refreshed", zap.String("sku", sku), zap.Bool("bundle", *bundles))
	}
	if failed > 0 {
		logger.Sync()
		os.Exit(1)
	}
}

// printHistory writes one line per recorded event and returns the exit code.
func printHistory(ctx context.Context, es *eventstore.EventStore, skus []string, logger *zap.Logger) int {
	code := 0
	for _, sku := range skus {
		events, err := es.History(ctx, sku)
		if err != nil {
			logger.Error("failed to load availability history", zap.String("sku", sku), zap.Error(err))
			code = 1
			continue
		}
		for _, e := range events {
			fmt.Printf("%s\t%d\t%s\t%s\t%s\n", sku, e.Version, e.CreatedAt.Format(time.RFC3339), e.EventType, e.EventData)
		}
	}
	logger.Sync()
	return code
}
