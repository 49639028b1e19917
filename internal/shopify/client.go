// Package shopify talks to the Shopify Admin GraphQL API and mirrors its
// catalog into the local database.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
)

const (
	headerAccessToken = "X-Shopify-Access-Token"
	headerAPIVersion  = "X-Shopify-Api-Version"

	throttleFloor  = 0.1
	throttleTarget = 0.5
)

// ErrGraphQL marks a response that carried a top-level errors array.
var ErrGraphQL = errors.New("shopify graphql error")

type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// QueryCost is the cost extension Shopify attaches to every response.
type QueryCost struct {
	RequestedQueryCost float64         `json:"requestedQueryCost"`
	ActualQueryCost    float64         `json:"actualQueryCost"`
	ThrottleStatus     *ThrottleStatus `json:"throttleStatus"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors"`
	Extensions struct {
		Cost *QueryCost `json:"cost"`
	} `json:"extensions"`
}

type Options struct {
	// BaseURL overrides https://<store domain>; used against test servers.
	BaseURL string
	Logger  *logger.Logger
	Metrics *metrics.ShopifyMetrics
	// Sleep replaces the context-aware sleep used for throttling and polling.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is a paced, circuit-broken Admin GraphQL client.
type Client struct {
	http       *resty.Client
	download   *resty.Client
	endpoint   string
	apiVersion string
	breaker    *gobreaker.CircuitBreaker[*resty.Response]
	limiter    *rate.Limiter
	logg       *logger.Logger
	metrics    *metrics.ShopifyMetrics
	sleep      func(ctx context.Context, d time.Duration) error

	mu            sync.RWMutex
	serverVersion string
}

func NewClient(cfg config.ShopifyConfig, opts Options) (*Client, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "shopify store domain and admin token are required")
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "shopify api version is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://" + strings.TrimSpace(cfg.StoreDomain)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	c := &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader(headerAccessToken, cfg.AdminToken).
			SetHeader("Content-Type", "application/json"),
		download:   resty.New().SetTimeout(10 * time.Minute),
		endpoint:   fmt.Sprintf("%s/admin/api/%s/graphql.json", base, version),
		apiVersion: version,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logg:       opts.Logger,
		metrics:    opts.Metrics,
		sleep:      opts.Sleep,
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	c.breaker = gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "shopify-admin",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.logg == nil {
				return
			}
			c.logg.Warn(c.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}), "shopify circuit breaker state changed")
		},
	})
	return c, nil
}

// APIVersion returns the requested API version.
func (c *Client) APIVersion() string { return c.apiVersion }

// ServerVersion returns the X-Shopify-Api-Version header of the last response.
func (c *Client) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// Query posts a GraphQL document and decodes data into out.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, out any) (*QueryCost, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var payload graphQLResponse
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(graphQLRequest{Query: query, Variables: vars}).
			SetResult(&payload).
			SetError(&payload).
			Post(c.endpoint)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			return resp, fmt.Errorf("shopify responded %d", resp.StatusCode())
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.IncRequest("breaker_open")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shopify circuit open")
	case err != nil:
		c.metrics.IncRequest("http_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shopify request failed")
	}

	if v := resp.Header().Get(headerAPIVersion); v != "" {
		c.mu.Lock()
		c.serverVersion = v
		c.mu.Unlock()
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		c.metrics.IncRequest("http_error")
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "shopify responded %d", resp.StatusCode())
	}

	cost := payload.Extensions.Cost
	if cost != nil && cost.ThrottleStatus != nil {
		c.metrics.SetAvailable(cost.ThrottleStatus.CurrentlyAvailable)
	}
	if len(payload.Errors) > 0 {
		c.metrics.IncRequest("graphql_error")
		msgs := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			msgs = append(msgs, e.Message)
		}
		return cost, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; ")), "shopify query failed")
	}
	c.metrics.IncRequest("ok")

	if out != nil && len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, out); err != nil {
			return cost, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shopify data")
		}
	}
	return cost, nil
}

// ThrottleWait returns how long to pause so the cost bucket refills to half.
// It is zero unless fewer than 10% of the points remain.
func ThrottleWait(cost *QueryCost) time.Duration {
	if cost == nil || cost.ThrottleStatus == nil {
		return 0
	}
	ts := cost.ThrottleStatus
	if ts.RestoreRate <= 0 || ts.CurrentlyAvailable >= ts.MaximumAvailable*throttleFloor {
		return 0
	}
	seconds := math.Ceil((ts.MaximumAvailable*throttleTarget - ts.CurrentlyAvailable) / ts.RestoreRate)
	return time.Duration(seconds) * time.Second
}

// Throttle sleeps for ThrottleWait(cost), returning early when ctx ends.
func (c *Client) Throttle(ctx context.Context, cost *QueryCost) error {
	wait := ThrottleWait(cost)
	if wait <= 0 {
		return nil
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "wait_ms", wait.Milliseconds()), "shopify throttling, waiting for cost restoration")
	}
	c.metrics.ObserveThrottle(wait)
	return c.sleep(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
