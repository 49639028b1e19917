package shopify

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	DefaultDeltaOverlap   = 5 * time.Minute
	DefaultDeltaPageSize  = 50
	deltaTransactionBatch = 10
	deltaPageDelay        = 100 * time.Millisecond
)

// DeltaResult summarises one incremental sync.
type DeltaResult struct {
	Pages    int           `json:"pages"`
	Products int           `json:"products"`
	Variants int           `json:"variants"`
	Since    time.Time     `json:"since"`
	Duration time.Duration `json:"duration"`
}

type DeltaOptions struct {
	Overlap  time.Duration
	PageSize int
	Logger   *logger.Logger
	Clock    func() time.Time
}

// DeltaSyncer pulls products updated since the last sync.
type DeltaSyncer struct {
	client   *Client
	db       *db.Client
	catalog  *product.Repository
	state    *StateRepository
	overlap  time.Duration
	pageSize int
	logg     *logger.Logger
	now      func() time.Time
}

func NewDeltaSyncer(client *Client, dbClient *db.Client, catalog *product.Repository, state *StateRepository, opts DeltaOptions) *DeltaSyncer {
	d := &DeltaSyncer{
		client:   client,
		db:       dbClient,
		catalog:  catalog,
		state:    state,
		overlap:  opts.Overlap,
		pageSize: opts.PageSize,
		logg:     opts.Logger,
		now:      opts.Clock,
	}
	if d.overlap <= 0 {
		d.overlap = DefaultDeltaOverlap
	}
	if d.pageSize <= 0 || d.pageSize > 250 {
		d.pageSize = DefaultDeltaPageSize
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// UpdatedSince picks the earlier of the last sync time and now minus overlap.
func UpdatedSince(lastSync *time.Time, now time.Time, overlap time.Duration) time.Time {
	window := now.Add(-overlap)
	if lastSync != nil && lastSync.Before(window) {
		return *lastSync
	}
	return window
}

func (d *DeltaSyncer) Run(ctx context.Context) (DeltaResult, error) {
	start := d.now()
	state, err := d.state.Get(ctx, resourceProducts)
	if err != nil {
		return DeltaResult{}, fmt.Errorf("load sync state: %w", err)
	}
	var lastSync *time.Time
	if state != nil {
		lastSync = state.LastSyncTime
	}
	result := DeltaResult{Since: UpdatedSince(lastSync, start, d.overlap)}
	search := fmt.Sprintf("updated_at:>='%s'", result.Since.UTC().Format(time.RFC3339))

	if d.logg != nil {
		d.logg.Info(d.logg.WithField(ctx, "since", result.Since.UTC().Format(time.RFC3339)), "shopify delta sync started")
	}

	var (
		after     *string
		newCursor string
	)
	for {
		vars := map[string]any{"first": d.pageSize, "query": search}
		if after != nil {
			vars["after"] = *after
		}
		var page struct {
			Products connection[productNode] `json:"products"`
		}
		cost, err := d.client.Query(ctx, deltaProductsQuery, vars, &page)
		if err != nil {
			return result, err
		}
		result.Pages++
		if err := d.client.Throttle(ctx, cost); err != nil {
			return result, err
		}

		edges := page.Products.Edges
		for i := 0; i < len(edges); i += deltaTransactionBatch {
			end := i + deltaTransactionBatch
			if end > len(edges) {
				end = len(edges)
			}
			nodes := make([]productNode, 0, end-i)
			for _, edge := range edges[i:end] {
				nodes = append(nodes, edge.Node)
			}
			variants, err := d.applyBatch(ctx, nodes)
			if err != nil {
				return result, err
			}
			result.Products += len(nodes)
			result.Variants += variants
			if cursor := edges[end-1].Cursor; cursor != "" {
				newCursor = cursor
			}
		}

		info := page.Products.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			break
		}
		next := info.EndCursor
		after = &next
		if err := d.client.sleep(ctx, deltaPageDelay); err != nil {
			return result, err
		}
	}

	if newCursor != "" {
		if err := d.state.Save(ctx, resourceProducts, &newCursor, d.now()); err != nil {
			return result, fmt.Errorf("save sync state: %w", err)
		}
	}
	result.Duration = d.now().Sub(start)
	if d.logg != nil {
		d.logg.Info(d.logg.WithFields(ctx, map[string]any{
			"pages":       result.Pages,
			"products":    result.Products,
			"variants":    result.Variants,
			"duration_ms": result.Duration.Milliseconds(),
		}), "shopify delta sync completed")
	}
	return result, nil
}

func (d *DeltaSyncer) applyBatch(ctx context.Context, nodes []productNode) (int, error) {
	variants := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.catalog.WithTx(tx)
		for _, node := range nodes {
			saved, err := repo.UpsertProduct(ctx, node.toModel())
			if err != nil {
				return fmt.Errorf("upsert product %s: %w", node.ID, err)
			}
			for idx, edge := range node.Variants.Edges {
				if _, err := repo.UpsertVariant(ctx, edge.Node.toModel(saved.ID, idx)); err != nil {
					return fmt.Errorf("upsert variant %s: %w", edge.Node.ID, err)
				}
				variants++
			}
			if err := repo.ReplaceOptions(ctx, saved.ID, optionModels(node.Options)); err != nil {
				return fmt.Errorf("replace options %s: %w", node.ID, err)
			}
			media := make([]mediaNode, 0, len(node.Media.Edges))
			for _, edge := range node.Media.Edges {
				media = append(media, edge.Node)
			}
			if err := repo.ReplaceMedia(ctx, saved.ID, imageModels(media)); err != nil {
				return fmt.Errorf("replace media %s: %w", node.ID, err)
			}
			if err := repo.ReplaceTags(ctx, saved.ID, node.Tags); err != nil {
				return fmt.Errorf("replace tags %s: %w", node.ID, err)
			}
		}
		return nil
	})
	return variants, err
}
