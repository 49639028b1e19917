package shopify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
)

const DefaultBulkPollInterval = 4 * time.Second

type BulkOperation struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ErrorCode   *string    `json:"errorCode"`
	CreatedAt   *time.Time `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
	ObjectCount string     `json:"objectCount"`
	URL         *string    `json:"url"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// StartBulk launches the products bulk query and returns the operation id.
func (c *Client) StartBulk(ctx context.Context) (string, error) {
	var out struct {
		BulkOperationRunQuery struct {
			BulkOperation *BulkOperation `json:"bulkOperation"`
			UserErrors    []userError    `json:"userErrors"`
		} `json:"bulkOperationRunQuery"`
	}
	if _, err := c.Query(ctx, bulkProductsMutation, map[string]any{"query": bulkProductsQuery}, &out); err != nil {
		return "", err
	}
	if errs := out.BulkOperationRunQuery.UserErrors; len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Message)
		}
		return "", pkgerrors.Newf(pkgerrors.CodeDependency, "bulk operation rejected: %s", strings.Join(msgs, "; "))
	}
	op := out.BulkOperationRunQuery.BulkOperation
	if op == nil || op.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "bulk operation did not return an id")
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "bulk_operation_id", op.ID), "shopify bulk operation started")
	}
	return op.ID, nil
}

// PollBulk waits for the current bulk operation to complete and returns its result url.
func (c *Client) PollBulk(ctx context.Context, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = DefaultBulkPollInterval
	}
	lastCount := ""
	for {
		var out struct {
			CurrentBulkOperation *BulkOperation `json:"currentBulkOperation"`
		}
		if _, err := c.Query(ctx, currentBulkOperationQuery, nil, &out); err != nil {
			return "", err
		}
		op := out.CurrentBulkOperation
		if op == nil {
			return "", pkgerrors.New(pkgerrors.CodeDependency, "no current bulk operation")
		}
		if op.ObjectCount != lastCount {
			lastCount = op.ObjectCount
			if c.logg != nil {
				c.logg.Info(c.logg.WithFields(ctx, map[string]any{
					"status":       op.Status,
					"object_count": op.ObjectCount,
				}), "shopify bulk operation progress")
			}
		}
		switch op.Status {
		case "COMPLETED":
			if op.URL == nil || *op.URL == "" {
				return "", pkgerrors.New(pkgerrors.CodeDependency, "bulk operation completed without a url")
			}
			return *op.URL, nil
		case "FAILED", "CANCELED":
			code := "unknown"
			if op.ErrorCode != nil {
				code = *op.ErrorCode
			}
			return "", pkgerrors.Newf(pkgerrors.CodeDependency, "bulk operation %s (errorCode=%s)", strings.ToLower(op.Status), code)
		}
		if err := c.sleep(ctx, interval); err != nil {
			return "", err
		}
	}
}

// Download stores the bulk NDJSON result under dir and returns the file path.
func (c *Client) Download(ctx context.Context, url, dir string) (string, error) {
	if dir == "" {
		dir = "tmp"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("shopify-products-%d.ndjson", time.Now().Unix()))
	resp, err := c.download.R().
		SetContext(ctx).
		SetOutput(path).
		Get(url)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "download bulk result")
	}
	if resp.StatusCode() != 200 {
		_ = os.Remove(path)
		return "", pkgerrors.Newf(pkgerrors.CodeDependency, "download failed with status %d", resp.StatusCode())
	}
	return path, nil
}
