package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/migrate"
)

type env struct {
	cfg     *config.Config
	logg    *logger.Logger
	dir     string
	dialect string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "migrate",
		Usage: "run goose migrations for the configured database driver",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Value: migrate.DefaultDir,
				Usage: "migrations root; the driver sub-directory is appended",
			},
		},
		Commands: []*cli.Command{
			{Name: "up", Usage: "apply all pending migrations", Action: withDB(gooseCommand("up"))},
			{Name: "down", Usage: "roll back the latest migration", Action: withDB(gooseCommand("down"))},
			{Name: "status", Usage: "print migration status", Action: withDB(gooseCommand("status"))},
			{
				Name:  "version",
				Usage: "migrate up or down to a version",
				Flags: []cli.Flag{&cli.StringFlag{Name: "to", Required: true, Usage: "target version (YYYYMMDDHHMMSS)"}},
				Action: withDB(func(c *cli.Context, e env, sqlDB *sql.DB) error {
					return migrate.MigrateToVersion(c.Context, sqlDB, e.dialect, e.dir, c.String("to"))
				}),
			},
			{
				Name:  "create",
				Usage: "scaffold a new SQL migration in every driver tree",
				Flags: []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
				Action: func(c *cli.Context) error {
					paths, err := migrate.CreateSQLMigration(c.String("dir"), c.String("name"))
					if err != nil {
						return fmt.Errorf("create migration: %w", err)
					}
					for _, path := range paths {
						fmt.Println("created migration:", path)
					}
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "check goose annotations and sqlite/postgres parity",
				Action: func(c *cli.Context) error {
					if err := migrate.ValidateTree(c.String("dir")); err != nil {
						return fmt.Errorf("migration validation failed: %w", err)
					}
					fmt.Println("migration validation passed")
					return nil
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		logg.Error(context.Background(), "migrate failed", err)
		os.Exit(1)
	}
}

func load(c *cli.Context) (env, error) {
	cfg, err := config.Load()
	if err != nil {
		return env{}, fmt.Errorf("load config: %w", err)
	}
	return env{
		cfg: cfg,
		logg: logger.New(logger.Options{
			ServiceName: "migrate",
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
		dir:     migrate.DirFor(c.String("dir"), cfg.DB.Driver),
		dialect: migrate.DialectFor(cfg.DB.Driver),
	}, nil
}

func gooseCommand(command string) func(*cli.Context, env, *sql.DB) error {
	return func(c *cli.Context, e env, sqlDB *sql.DB) error {
		return migrate.Run(c.Context, sqlDB, e.dialect, e.dir, command)
	}
}

func withDB(fn func(*cli.Context, env, *sql.DB) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := load(c)
		if err != nil {
			return err
		}
		ctx := e.logg.WithFields(c.Context, map[string]any{
			"env":    e.cfg.App.Env,
			"cmd":    c.Command.Name,
			"dir":    e.dir,
			"driver": e.cfg.DB.Driver,
		})

		dbClient, err := db.New(ctx, e.cfg.DB, e.logg)
		if err != nil {
			return fmt.Errorf("bootstrap database: %w", err)
		}
		defer dbClient.Close()

		sqlDB, err := dbClient.DB().DB()
		if err != nil {
			return fmt.Errorf("sql database: %w", err)
		}
		e.logg.Info(ctx, "migrate ready")
		return fn(c, e, sqlDB)
	}
}
