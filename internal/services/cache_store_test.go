// internal/services/cache_store_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/marketdesk/wb-backoffice/internal/models"
)

type CacheStoreTestSuite struct {
	suite.Suite
	db    *gorm.DB
	store *CacheStore
	ctx   context.Context

	tokenID      uuid.UUID
	otherTokenID uuid.UUID
}

func (suite *CacheStoreTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.store = NewCacheStore(suite.db)
	suite.ctx = context.Background()

	cipher := newTestCipher(suite.T())
	suite.tokenID = seedToken(suite.T(), suite.db, cipher).ID
	suite.otherTokenID = seedToken(suite.T(), suite.db, cipher).ID
}

func (suite *CacheStoreTestSuite) record(productID string, lastUpdated time.Time) models.ProductCache {
	return models.ProductCache{
		TokenID:      suite.tokenID,
		WBProductID:  productID,
		ProductData:  models.JSONB{"vendorCode": productID, "title": "Product " + productID},
		LastUpdated:  lastUpdated,
		CacheVersion: 1,
		IsActive:     true,
	}
}

func (suite *CacheStoreTestSuite) TestUpsertIsIdempotent() {
	now := time.Now().UTC()
	record := suite.record("ABC-123", now)

	suite.Require().NoError(suite.store.Upsert(suite.ctx, &record))

	// Applying the same record again must not create a second row.
	again := suite.record("ABC-123", now)
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &again))

	count, err := suite.store.CountActive(suite.ctx, suite.tokenID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)
}

func (suite *CacheStoreTestSuite) TestUpsertReplacesPayload() {
	record := suite.record("ABC-123", time.Now().UTC().Add(-time.Hour))
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &record))

	updated := suite.record("ABC-123", time.Now().UTC())
	updated.ProductData = models.JSONB{"vendorCode": "ABC-123", "title": "Renamed"}
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &updated))

	records, err := suite.store.Query(suite.ctx, suite.tokenID, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(records, 1)
	suite.Equal("Renamed", records[0].ProductData["title"])
}

func (suite *CacheStoreTestSuite) TestVendorCodeStoredAsText() {
	// Alphanumeric codes and zero-padded numeric codes must survive verbatim.
	for _, code := range []string{"ABC-123", "0012345", "АРТ-ЧЁРНЫЙ"} {
		record := suite.record(code, time.Now().UTC())
		suite.Require().NoError(suite.store.Upsert(suite.ctx, &record))
	}

	records, err := suite.store.Query(suite.ctx, suite.tokenID, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(records, 3)

	seen := make(map[string]bool)
	for _, record := range records {
		seen[record.WBProductID] = true
	}
	suite.True(seen["ABC-123"])
	suite.True(seen["0012345"])
	suite.True(seen["АРТ-ЧЁРНЫЙ"])
}

func (suite *CacheStoreTestSuite) TestQueryOrdersByLastUpdatedDescending() {
	base := time.Now().UTC()
	for i, code := range []string{"OLD", "MID", "NEW"} {
		record := suite.record(code, base.Add(time.Duration(i)*time.Minute))
		suite.Require().NoError(suite.store.Upsert(suite.ctx, &record))
	}

	records, err := suite.store.Query(suite.ctx, suite.tokenID, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(records, 3)
	suite.Equal("NEW", records[0].WBProductID)
	suite.Equal("MID", records[1].WBProductID)
	suite.Equal("OLD", records[2].WBProductID)
}

func (suite *CacheStoreTestSuite) TestSameProductIDIsolatedPerToken() {
	now := time.Now().UTC()
	record := suite.record("SHARED-CODE", now)
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &record))

	other := suite.record("SHARED-CODE", now)
	other.TokenID = suite.otherTokenID
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &other))

	count, err := suite.store.CountActive(suite.ctx, suite.tokenID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)

	otherCount, err := suite.store.CountActive(suite.ctx, suite.otherTokenID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), otherCount)
}

func (suite *CacheStoreTestSuite) TestDeactivateExceptSoftDeletesMissing() {
	old := time.Now().UTC().Add(-time.Hour)
	for _, code := range []string{"KEEP-1", "KEEP-2", "GONE-1"} {
		record := suite.record(code, old)
		suite.Require().NoError(suite.store.Upsert(suite.ctx, &record))
	}

	deactivated, err := suite.store.DeactivateExcept(suite.ctx, suite.tokenID, []string{"KEEP-1", "KEEP-2"}, time.Now().UTC())
	suite.Require().NoError(err)
	suite.Equal(int64(1), deactivated)

	records, err := suite.store.Query(suite.ctx, suite.tokenID, 10, 0)
	suite.Require().NoError(err)
	suite.Len(records, 2)

	// The deactivated row is retained, not removed.
	var total int64
	suite.Require().NoError(suite.db.Model(&models.ProductCache{}).Where("token_id = ?", suite.tokenID).Count(&total).Error)
	suite.Equal(int64(3), total)
}

func (suite *CacheStoreTestSuite) TestDeactivateExceptSparesNewerWrites() {
	cutoff := time.Now().UTC()

	stale := suite.record("STALE", cutoff.Add(-time.Hour))
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &stale))

	// Written after the run started, by a newer run.
	fresh := suite.record("FRESH", cutoff.Add(time.Minute))
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &fresh))

	deactivated, err := suite.store.DeactivateExcept(suite.ctx, suite.tokenID, nil, cutoff)
	suite.Require().NoError(err)
	suite.Equal(int64(1), deactivated)

	records, err := suite.store.Query(suite.ctx, suite.tokenID, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(records, 1)
	suite.Equal("FRESH", records[0].WBProductID)
}

func (suite *CacheStoreTestSuite) TestDeactivateExceptOnlyTouchesOwnToken() {
	old := time.Now().UTC().Add(-time.Hour)

	mine := suite.record("MINE", old)
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &mine))

	theirs := suite.record("THEIRS", old)
	theirs.TokenID = suite.otherTokenID
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &theirs))

	_, err := suite.store.DeactivateExcept(suite.ctx, suite.tokenID, nil, time.Now().UTC())
	suite.Require().NoError(err)

	otherCount, err := suite.store.CountActive(suite.ctx, suite.otherTokenID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), otherCount)
}

func (suite *CacheStoreTestSuite) TestClearExpired() {
	ttl := 24 * time.Hour
	retention := 7 * 24 * time.Hour
	now := time.Now().UTC()

	// Active but untouched for longer than twice the TTL: soft-deleted.
	expired := suite.record("EXPIRED", now.Add(-49*time.Hour))
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &expired))

	// Active and recent: untouched.
	live := suite.record("LIVE", now)
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &live))

	// Inactive and past retention: purged from storage.
	retired := suite.record("RETIRED", now.Add(-8*24*time.Hour))
	retired.IsActive = false
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &retired))

	result, err := suite.store.ClearExpired(suite.ctx, ttl, retention)
	suite.Require().NoError(err)
	suite.Equal(int64(1), result.Cleared)
	suite.Equal(int64(1), result.Purged)

	records, err := suite.store.Query(suite.ctx, suite.tokenID, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(records, 1)
	suite.Equal("LIVE", records[0].WBProductID)

	var total int64
	suite.Require().NoError(suite.db.Unscoped().Model(&models.ProductCache{}).Count(&total).Error)
	suite.Equal(int64(2), total)
}

func (suite *CacheStoreTestSuite) TestStats() {
	now := time.Now().UTC()

	oldest := suite.record("OLD", now.Add(-2*time.Hour))
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &oldest))

	newest := suite.record("NEW", now)
	newest.TokenID = suite.otherTokenID
	suite.Require().NoError(suite.store.Upsert(suite.ctx, &newest))

	stats, err := suite.store.Stats(suite.ctx, nil)
	suite.Require().NoError(err)
	suite.Equal(int64(2), stats.TotalCachedProducts)
	suite.Equal(int64(2), stats.TokensWithCache)
	suite.Require().NotNil(stats.OldestCache)
	suite.Require().NotNil(stats.NewestCache)
	suite.True(stats.NewestCache.After(*stats.OldestCache))

	scoped, err := suite.store.Stats(suite.ctx, &suite.tokenID)
	suite.Require().NoError(err)
	suite.Equal(int64(1), scoped.TotalCachedProducts)
	suite.Equal(int64(1), scoped.TokensWithCache)
}

func (suite *CacheStoreTestSuite) TestStatsEmptyCache() {
	stats, err := suite.store.Stats(suite.ctx, nil)
	suite.Require().NoError(err)
	suite.Equal(int64(0), stats.TotalCachedProducts)
	suite.Nil(stats.OldestCache)
	suite.Nil(stats.NewestCache)
}

func TestCacheStoreSuite(t *testing.T) {
	suite.Run(t, new(CacheStoreTestSuite))
}
