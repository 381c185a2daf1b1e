//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/cache"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/service"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/testutil/containers"
)

type CacheSuite struct {
	suite.Suite

	ctx       context.Context
	redis     *containers.RedisContainer
	cache     *cache.SummaryCache
	portfolio domain.PortfolioID
}

func TestCacheSuite(t *testing.T) {
	redis := containers.NewRedisContainer(t)
	suite.Run(t, &CacheSuite{
		ctx:   context.Background(),
		redis: redis,
	})
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.cache = cache.New(s.redis.Client)
	s.portfolio = domain.PortfolioID(uuid.New())
}

func (s *CacheSuite) summaries() []service.SubjectSummary {
	return []service.SubjectSummary{{
		SubjectID:   uuid.NewString(),
		Title:       "Insurance - Hanover",
		Category:    models.CategoryInsurance,
		RMIDPreview: "RF743916765US-33.004",
		RecordCount: 3,
		CreatedAt:   time.Date(2026, 8, 20, 16, 45, 0, 0, time.UTC),
	}}
}

func (s *CacheSuite) TestSetGetRoundTrip() {
	_, ok := s.cache.Get(s.ctx, s.portfolio)
	s.False(ok)

	want := s.summaries()
	s.cache.Set(s.ctx, s.portfolio, want)

	got, ok := s.cache.Get(s.ctx, s.portfolio)
	s.Require().True(ok)
	s.Equal(want, got)
}

func (s *CacheSuite) TestInvalidate() {
	s.cache.Set(s.ctx, s.portfolio, s.summaries())
	s.cache.Invalidate(s.ctx, s.portfolio)

	_, ok := s.cache.Get(s.ctx, s.portfolio)
	s.False(ok)
}

func (s *CacheSuite) TestEntriesExpire() {
	short := cache.New(s.redis.Client, cache.WithTTL(time.Second))
	short.Set(s.ctx, s.portfolio, s.summaries())

	_, ok := short.Get(s.ctx, s.portfolio)
	s.Require().True(ok)

	time.Sleep(1500 * time.Millisecond)
	_, ok = short.Get(s.ctx, s.portfolio)
	s.False(ok)
}

func (s *CacheSuite) TestCorruptEntryIsDroppedAsMiss() {
	key := "ledger:summaries:" + s.portfolio.String()
	s.Require().NoError(s.redis.Client.Set(s.ctx, key, "{not json", time.Minute).Err())

	_, ok := s.cache.Get(s.ctx, s.portfolio)
	s.False(ok)

	// The corrupt entry was evicted, not left to fail every read.
	exists, err := s.redis.Client.Exists(s.ctx, key).Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *CacheSuite) TestPortfoliosAreIsolated() {
	other := domain.PortfolioID(uuid.New())
	s.cache.Set(s.ctx, s.portfolio, s.summaries())

	_, ok := s.cache.Get(s.ctx, other)
	s.False(ok)
}
