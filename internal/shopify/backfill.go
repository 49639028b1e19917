package shopify

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

type BackfillOptions struct {
	PollInterval time.Duration
	TmpDir       string
	KeepFile     bool
	Logger       *logger.Logger
	Clock        func() time.Time
}

// Backfiller runs a full catalog import through the bulk API.
type Backfiller struct {
	client   *Client
	importer *Importer
	state    *StateRepository
	opts     BackfillOptions
}

func NewBackfiller(client *Client, importer *Importer, state *StateRepository, opts BackfillOptions) *Backfiller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Backfiller{client: client, importer: importer, state: state, opts: opts}
}

// Run starts the bulk query, waits, downloads, imports and records the sync time.
func (b *Backfiller) Run(ctx context.Context) (ImportResult, error) {
	if _, err := b.client.StartBulk(ctx); err != nil {
		return ImportResult{}, err
	}
	url, err := b.client.PollBulk(ctx, b.opts.PollInterval)
	if err != nil {
		return ImportResult{}, err
	}
	path, err := b.client.Download(ctx, url, b.opts.TmpDir)
	if err != nil {
		return ImportResult{}, err
	}
	if !b.opts.KeepFile {
		defer os.Remove(path)
	}

	result, err := b.importer.Import(ctx, path)
	if err != nil {
		return result, err
	}
	if err := b.state.Save(ctx, resourceProducts, nil, b.opts.Clock()); err != nil {
		return result, fmt.Errorf("save sync state: %w", err)
	}
	if logg := b.opts.Logger; logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"file":     path,
			"products": result.Products,
			"variants": result.Variants,
			"options":  result.Options,
			"media":    result.Media,
			"skipped":  result.Skipped,
		}), "shopify backfill completed")
	}
	return result, nil
}
