package shopify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gorm.io/gorm"

	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	DefaultImportBatch = 500
	maxLineBytes       = 16 << 20
)

// ImportResult counts what an NDJSON import wrote.
type ImportResult struct {
	Products int `json:"products"`
	Variants int `json:"variants"`
	Options  int `json:"options"`
	Media    int `json:"media"`
	Skipped  int `json:"skipped"`
}

// Importer loads a bulk-operation NDJSON export in three passes.
type Importer struct {
	db        *db.Client
	catalog   *product.Repository
	logg      *logger.Logger
	batchSize int
}

func NewImporter(client *db.Client, catalog *product.Repository, logg *logger.Logger) *Importer {
	return &Importer{db: client, catalog: catalog, logg: logg, batchSize: DefaultImportBatch}
}

type lineHeader struct {
	Typename string `json:"__typename"`
	ParentID string `json:"__parentId"`
}

type importRun struct {
	result     ImportResult
	productIDs map[string]uint
	options    map[string][]optionNode
	media      map[string][]mediaNode
}

func (i *Importer) Import(ctx context.Context, path string) (ImportResult, error) {
	if err := i.db.TuneForBulkWrites(ctx); err != nil && i.logg != nil {
		i.logg.Warn(i.logg.WithField(ctx, "error", err.Error()), "could not tune database for bulk writes")
	}
	run := &importRun{
		productIDs: map[string]uint{},
		options:    map[string][]optionNode{},
		media:      map[string][]mediaNode{},
	}
	passes := []struct {
		name string
		fn   func(context.Context, string, *importRun) error
	}{
		{"products", i.importProducts},
		{"variants", i.importVariants},
		{"options and media", i.importOptionsAndMedia},
	}
	for _, pass := range passes {
		if err := pass.fn(ctx, path, run); err != nil {
			return run.result, fmt.Errorf("import %s: %w", pass.name, err)
		}
		if i.logg != nil {
			i.logg.Info(i.logg.WithFields(ctx, map[string]any{
				"pass":     pass.name,
				"products": run.result.Products,
				"variants": run.result.Variants,
				"options":  run.result.Options,
				"media":    run.result.Media,
				"skipped":  run.result.Skipped,
			}), "shopify import pass complete")
		}
	}
	return run.result, nil
}

func (i *Importer) importProducts(ctx context.Context, path string, run *importRun) error {
	var batch []productNode
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := i.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := i.catalog.WithTx(tx)
			for _, node := range batch {
				saved, err := repo.UpsertProduct(ctx, node.toModel())
				if err != nil {
					return fmt.Errorf("upsert product %s: %w", node.ID, err)
				}
				if err := repo.ReplaceTags(ctx, saved.ID, node.Tags); err != nil {
					return fmt.Errorf("replace tags %s: %w", node.ID, err)
				}
				run.productIDs[node.ID] = saved.ID
				if len(node.Options) > 0 {
					run.options[node.ID] = node.Options
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		run.result.Products += len(batch)
		batch = batch[:0]
		return nil
	}

	err := scanLines(path, func(header lineHeader, raw []byte) error {
		if header.Typename != "Product" {
			return nil
		}
		var node productNode
		if err := json.Unmarshal(raw, &node); err != nil || node.ID == "" || node.Handle == "" {
			run.result.Skipped++
			return nil
		}
		batch = append(batch, node)
		if len(batch) >= i.batchSize {
			return flush()
		}
		return nil
	}, &run.result.Skipped)
	if err != nil {
		return err
	}
	return flush()
}

func (i *Importer) importVariants(ctx context.Context, path string, run *importRun) error {
	var batch []variantNode
	positions := map[string]int{}
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		written := 0
		err := i.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := i.catalog.WithTx(tx)
			for _, node := range batch {
				productID, err := resolveProductID(ctx, repo, run.productIDs, node.ParentID)
				if err != nil {
					return err
				}
				if productID == 0 {
					run.result.Skipped++
					continue
				}
				if _, err := repo.UpsertVariant(ctx, node.toModel(productID, positions[node.ParentID])); err != nil {
					return fmt.Errorf("upsert variant %s: %w", node.ID, err)
				}
				positions[node.ParentID]++
				written++
			}
			return nil
		})
		if err != nil {
			return err
		}
		run.result.Variants += written
		batch = batch[:0]
		return nil
	}

	err := scanLines(path, func(header lineHeader, raw []byte) error {
		if header.Typename != "ProductVariant" {
			return nil
		}
		var node variantNode
		if err := json.Unmarshal(raw, &node); err != nil || node.ID == "" {
			run.result.Skipped++
			return nil
		}
		batch = append(batch, node)
		if len(batch) >= i.batchSize {
			return flush()
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}
	return flush()
}

func (i *Importer) importOptionsAndMedia(ctx context.Context, path string, run *importRun) error {
	nested := make(map[string]bool, len(run.options))
	for parent := range run.options {
		nested[parent] = true
	}
	err := scanLines(path, func(header lineHeader, raw []byte) error {
		switch header.Typename {
		case "ProductOption":
			if nested[header.ParentID] {
				return nil
			}
			var node optionNode
			if err := json.Unmarshal(raw, &node); err != nil {
				run.result.Skipped++
				return nil
			}
			run.options[header.ParentID] = append(run.options[header.ParentID], node)
		case "MediaImage":
			var node mediaNode
			if err := json.Unmarshal(raw, &node); err != nil || node.url() == "" {
				run.result.Skipped++
				return nil
			}
			run.media[header.ParentID] = append(run.media[header.ParentID], node)
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}

	parents := make([]string, 0, len(run.options)+len(run.media))
	for parent := range run.options {
		parents = append(parents, parent)
	}
	for parent := range run.media {
		if _, ok := run.options[parent]; !ok {
			parents = append(parents, parent)
		}
	}
	sort.Strings(parents)

	for _, parent := range parents {
		options := optionModels(run.options[parent])
		media := imageModels(run.media[parent])
		err := i.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := i.catalog.WithTx(tx)
			productID, err := resolveProductID(ctx, repo, run.productIDs, parent)
			if err != nil {
				return err
			}
			if productID == 0 {
				run.result.Skipped++
				return nil
			}
			if err := repo.ReplaceOptions(ctx, productID, options); err != nil {
				return fmt.Errorf("replace options %s: %w", parent, err)
			}
			if err := repo.ReplaceMedia(ctx, productID, media); err != nil {
				return fmt.Errorf("replace media %s: %w", parent, err)
			}
			run.result.Options += len(options)
			run.result.Media += len(media)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveProductID returns 0 when the parent product is unknown.
func resolveProductID(ctx context.Context, repo *product.Repository, cache map[string]uint, shopifyID string) (uint, error) {
	if shopifyID == "" {
		return 0, nil
	}
	if id, ok := cache[shopifyID]; ok {
		return id, nil
	}
	found, err := repo.FindByShopifyID(ctx, shopifyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cache[shopifyID] = found.ID
	return found.ID, nil
}

// scanLines feeds every decodable NDJSON line to fn. Undecodable lines bump
// malformed when it is non-nil.
func scanLines(path string, fn func(lineHeader, []byte) error, malformed *int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var header lineHeader
		if err := json.Unmarshal(line, &header); err != nil {
			if malformed != nil {
				*malformed++
			}
			continue
		}
		if err := fn(header, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
