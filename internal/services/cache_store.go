// internal/services/cache_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketdesk/wb-backoffice/internal/models"
)

// CacheStore owns durable keyed storage of product records: indexed lookup,
// idempotent upserts and soft-deletion. Every mutating operation is scoped to
// a single token's identifier space.
type CacheStore struct {
	db *gorm.DB
}

func NewCacheStore(db *gorm.DB) *CacheStore {
	return &CacheStore{db: db}
}

// Upsert inserts or fully replaces a record keyed by (token_id, wb_product_id).
// Applying the same record twice yields the same stored state.
func (s *CacheStore) Upsert(ctx context.Context, record *models.ProductCache) error {
	return s.UpsertPage(ctx, []models.ProductCache{*record})
}

// UpsertPage commits one fetched page. Pages are committed as they arrive, so
// readers see partial sync progress incrementally instead of atomically at
// the end of a run.
func (s *CacheStore) UpsertPage(ctx context.Context, records []models.ProductCache) error {
	if len(records) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_id"}, {Name: "wb_product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"product_data", "last_updated", "cache_version", "is_active", "updated_at", "deleted_at",
		}),
	}).Create(&records).Error

	if err != nil {
		return fmt.Errorf("failed to upsert product page: %w", err)
	}

	return nil
}

// DeactivateExcept soft-deletes all active records for a token that are not in
// keepIDs. Only rows last written before startedBefore are touched, so a slow
// stale run finishing after a newer run cannot deactivate fresh data.
func (s *CacheStore) DeactivateExcept(ctx context.Context, tokenID uuid.UUID, keepIDs []string, startedBefore time.Time) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ProductCache{}).
		Where("token_id = ? AND is_active = ? AND last_updated < ?", tokenID, true, startedBefore)

	if len(keepIDs) > 0 {
		query = query.Where("wb_product_id NOT IN ?", keepIDs)
	}

	result := query.Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reconcile deletions: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// Query returns active records for a token ordered by last_updated descending,
// so freshly synced or freshly changed items surface first.
func (s *CacheStore) Query(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]models.ProductCache, error) {
	var records []models.ProductCache
	err := s.db.WithContext(ctx).
		Where("token_id = ? AND is_active = ?", tokenID, true).
		Order("last_updated DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query cached products: %w", err)
	}

	return records, nil
}

func (s *CacheStore) CountActive(ctx context.Context, tokenID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProductCache{}).
		Where("token_id = ? AND is_active = ?", tokenID, true).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to count cached products: %w", err)
	}

	return count, nil
}

// NewestActive returns the most recent last_updated among a token's active
// records, or nil when the cache is empty.
func (s *CacheStore) NewestActive(ctx context.Context, tokenID uuid.UUID) (*time.Time, error) {
	var record models.ProductCache
	err := s.db.WithContext(ctx).
		Where("token_id = ? AND is_active = ?", tokenID, true).
		Order("last_updated DESC").
		Select("last_updated").
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache freshness: %w", err)
	}

	return &record.LastUpdated, nil
}

type ClearExpiredResult struct {
	Cleared int64 `json:"cleared_count"`
	Purged  int64 `json:"purged_count"`
}

// ClearExpired is the housekeeping pass: active records untouched for twice
// the TTL are soft-deleted, and records already inactive beyond the retention
// period are purged. Independent of any specific token.
func (s *CacheStore) ClearExpired(ctx context.Context, ttl, retention time.Duration) (*ClearExpiredResult, error) {
	now := time.Now().UTC()

	cleared := s.db.WithContext(ctx).Model(&models.ProductCache{}).
		Where("is_active = ? AND last_updated < ?", true, now.Add(-2*ttl)).
		Update("is_active", false)
	if cleared.Error != nil {
		return nil, fmt.Errorf("failed to clear expired cache: %w", cleared.Error)
	}

	purged := s.db.WithContext(ctx).Unscoped().
		Where("is_active = ? AND last_updated < ?", false, now.Add(-retention)).
		Delete(&models.ProductCache{})
	if purged.Error != nil {
		return nil, fmt.Errorf("failed to purge retired cache entries: %w", purged.Error)
	}

	return &ClearExpiredResult{
		Cleared: cleared.RowsAffected,
		Purged:  purged.RowsAffected,
	}, nil
}

type CacheStats struct {
	TotalCachedProducts int64      `json:"total_cached_products"`
	TokensWithCache     int64      `json:"tokens_with_cache"`
	OldestCache         *time.Time `json:"oldest_cache"`
	NewestCache         *time.Time `json:"newest_cache"`
}

// Stats aggregates cache health metrics, optionally scoped to one token.
func (s *CacheStore) Stats(ctx context.Context, tokenID *uuid.UUID) (*CacheStats, error) {
	scoped := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.ProductCache{}).
			Where("is_active = ?", true)
		if tokenID != nil {
			query = query.Where("token_id = ?", *tokenID)
		}
		return query
	}

	var total, tokens int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to collect cache stats: %w", err)
	}

	stats := &CacheStats{TotalCachedProducts: total}
	if total == 0 {
		return stats, nil
	}

	if err := scoped().Distinct("token_id").Count(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to collect cache stats: %w", err)
	}
	stats.TokensWithCache = tokens

	var oldest, newest models.ProductCache
	if err := scoped().Select("last_updated").Order("last_updated ASC").First(&oldest).Error; err != nil {
		return nil, fmt.Errorf("failed to collect cache stats: %w", err)
	}
	if err := scoped().Select("last_updated").Order("last_updated DESC").First(&newest).Error; err != nil {
		return nil, fmt.Errorf("failed to collect cache stats: %w", err)
	}
	stats.OldestCache = &oldest.LastUpdated
	stats.NewestCache = &newest.LastUpdated

	return stats, nil
}
