package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/angelmondragon/watercolor-storefront/pkg/auth"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "admin-token"})
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "admin-token",
		Usage: "mint a bearer token for the /api/admin routes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Required: true, Usage: "operator identifier recorded in the token"},
			&cli.IntFlag{Name: "minutes", Usage: "override STOREFRONT_JWT_EXPIRATION_MINUTES"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			jwtCfg := cfg.JWT
			if m := c.Int("minutes"); m > 0 {
				jwtCfg.ExpirationMinutes = m
			}
			token, err := auth.MintAccessToken(jwtCfg, time.Now(), auth.AccessTokenPayload{
				Subject: c.String("subject"),
				Role:    auth.RoleAdmin,
				JTI:     uuid.NewString(),
			})
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		logg.Error(context.Background(), "admin token failed", err)
		os.Exit(1)
	}
}
