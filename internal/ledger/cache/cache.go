// Package cache is the Redis-backed read cache for portfolio subject
// summaries. It is strictly an accelerator: every failure degrades to a
// miss and the caller falls back to the store, so a flaky Redis never
// breaks reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/service"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
)

// Redis key prefix for portfolio summary entries
const summaryKeyPrefix = "ledger:summaries:"

// DefaultTTL bounds how stale a summary view may get if an invalidation
// is lost.
const DefaultTTL = 5 * time.Minute

// SummaryCache is a Redis-backed implementation of service.SummaryCache.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a SummaryCache instance.
type Option func(*SummaryCache)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *SummaryCache) { c.ttl = ttl }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *SummaryCache) { c.logger = logger }
}

// New constructs a Redis-backed summary cache.
func New(client *redis.Client, opts ...Option) *SummaryCache {
	c := &SummaryCache{
		client: client,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func summaryKey(portfolioID domain.PortfolioID) string {
	return summaryKeyPrefix + portfolioID.String()
}

// Get returns the cached summaries for a portfolio. Absent keys, decode
// failures and infrastructure errors all report a miss.
func (c *SummaryCache) Get(ctx context.Context, portfolioID domain.PortfolioID) ([]service.SubjectSummary, bool) {
	raw, err := c.client.Get(ctx, summaryKey(portfolioID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "summary cache read failed",
			"portfolio_id", portfolioID.String(),
			"error", err,
		)
		return nil, false
	}

	var summaries []service.SubjectSummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		c.logger.WarnContext(ctx, "summary cache entry corrupt, dropping",
			"portfolio_id", portfolioID.String(),
			"error", err,
		)
		c.Invalidate(ctx, portfolioID)
		return nil, false
	}
	return summaries, true
}

// Set stores the summaries with TTL. Uses a single SET with expiry so the
// write is atomic.
func (c *SummaryCache) Set(ctx context.Context, portfolioID domain.PortfolioID, summaries []service.SubjectSummary) {
	raw, err := json.Marshal(summaries)
	if err != nil {
		c.logger.WarnContext(ctx, "summary cache encode failed",
			"portfolio_id", portfolioID.String(),
			"error", err,
		)
		return
	}
	if err := c.client.Set(ctx, summaryKey(portfolioID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "summary cache write failed",
			"portfolio_id", portfolioID.String(),
			"error", err,
		)
	}
}

// Invalidate drops the portfolio's entry after any write to its subjects
// or records.
func (c *SummaryCache) Invalidate(ctx context.Context, portfolioID domain.PortfolioID) {
	if err := c.client.Del(ctx, summaryKey(portfolioID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "summary cache invalidation failed",
			"portfolio_id", portfolioID.String(),
			"error", err,
		)
	}
}

var _ service.SummaryCache = (*SummaryCache)(nil)
