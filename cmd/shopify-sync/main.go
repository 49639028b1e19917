package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/internal/shopify"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/migrate"
)

type runtime struct {
	cfg    *config.Config
	logg   *logger.Logger
	client *shopify.Client
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "shopify-sync"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	app := &cli.App{
		Name:  "shopify-sync",
		Usage: "pull the Shopify catalog into the storefront database",
		Commands: []*cli.Command{
			{
				Name:   "verify",
				Usage:  "check credentials and API version against the shop",
				Action: verify,
			},
			{
				Name:  "backfill",
				Usage: "full import through a bulk operation",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "keep-file", Usage: "keep the downloaded NDJSON file"},
				},
				Action: withDB(backfill),
			},
			{
				Name:   "delta-sync",
				Usage:  "import products updated since the last sync",
				Action: withDB(deltaSync),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logg.Error(ctx, "shopify sync failed", err)
		os.Exit(1)
	}
}

func setup() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "shopify-sync"
	logg := logger.New(logger.Options{
		ServiceName: "shopify-sync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	client, err := shopify.NewClient(cfg.Shopify, shopify.Options{Logger: logg})
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logg: logg, client: client}, nil
}

func verify(c *cli.Context) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	result, err := rt.client.Verify(c.Context)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if result.ResponseVersion != "" && result.ResponseVersion != result.RequestedVersion {
		rt.logg.Warn(rt.logg.WithFields(c.Context, map[string]any{
			"requested": result.RequestedVersion,
			"served":    result.ResponseVersion,
		}), "shopify api version mismatch")
	}
	return printJSON(result)
}

func backfill(c *cli.Context, rt *runtime, dbClient *db.Client) error {
	if err := dbClient.TuneForBulkWrites(c.Context); err != nil {
		rt.logg.Warn(c.Context, "bulk write tuning skipped: "+err.Error())
	}
	catalog := product.NewRepository(dbClient.DB())
	b := shopify.NewBackfiller(rt.client, shopify.NewImporter(dbClient, catalog, rt.logg), shopify.NewStateRepository(dbClient.DB()), shopify.BackfillOptions{
		PollInterval: rt.cfg.Shopify.BulkPollInterval,
		TmpDir:       rt.cfg.Shopify.TmpDir,
		KeepFile:     c.Bool("keep-file"),
		Logger:       rt.logg,
	})
	result, err := b.Run(c.Context)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	return printJSON(result)
}

func deltaSync(c *cli.Context, rt *runtime, dbClient *db.Client) error {
	syncer := shopify.NewDeltaSyncer(rt.client, dbClient, product.NewRepository(dbClient.DB()), shopify.NewStateRepository(dbClient.DB()), shopify.DeltaOptions{
		Overlap:  rt.cfg.Shopify.DeltaOverlap,
		PageSize: rt.cfg.Shopify.DeltaPageSize,
		Logger:   rt.logg,
	})
	result, err := syncer.Run(c.Context)
	if err != nil {
		return fmt.Errorf("delta sync: %w", err)
	}
	return printJSON(result)
}

func withDB(fn func(*cli.Context, *runtime, *db.Client) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		dbClient, err := db.New(c.Context, rt.cfg.DB, rt.logg)
		if err != nil {
			return fmt.Errorf("bootstrap database: %w", err)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				rt.logg.Error(context.Background(), "error closing database", err)
			}
		}()
		if err := migrate.MaybeRunDev(c.Context, rt.cfg, rt.logg, dbClient); err != nil {
			return fmt.Errorf("dev migrations: %w", err)
		}
		return fn(c, rt, dbClient)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
