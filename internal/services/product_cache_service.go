// internal/services/product_cache_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/models"
)

// SyncUnavailableError is returned when no cached data exists and the
// triggered sync failed, carrying the classified cause.
type SyncUnavailableError struct {
	Kind    string
	Message string
}

func (e *SyncUnavailableError) Error() string {
	return fmt.Sprintf("no cached data and sync failed (%s): %s", e.Kind, e.Message)
}

// CachedProducts is one page of cached products plus freshness metadata.
type CachedProducts struct {
	Products    []models.JSONB   `json:"products"`
	Total       int64            `json:"total"`
	CachedCount int64            `json:"cached_count"`
	Freshness   models.Freshness `json:"freshness"`
	LastUpdated *time.Time       `json:"last_updated,omitempty"`

	// Warning is surfaced at the response envelope level, not in the payload.
	Warning string `json:"-"`
}

// ProductCacheService serves product pages with cache-first semantics: trust
// the cache while it is fresh and complete, sync when it is not, and degrade
// to stale data rather than failing reads when a refresh fails.
type ProductCacheService struct {
	db     *gorm.DB
	store  *CacheStore
	engine *SyncEngine
	cfg    config.CacheConfig
}

func NewProductCacheService(db *gorm.DB, store *CacheStore, engine *SyncEngine, cfg config.CacheConfig) *ProductCacheService {
	return &ProductCacheService{
		db:     db,
		store:  store,
		engine: engine,
		cfg:    cfg,
	}
}

type freshnessState struct {
	activeCount   int64
	newest        *time.Time
	upstreamTotal int
}

func (s *ProductCacheService) GetCachedProducts(ctx context.Context, tokenID uuid.UUID, limit, offset int, forceRefresh bool) (*CachedProducts, error) {
	state, err := s.currentState(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if !forceRefresh && s.isFresh(state) {
		page, err := s.readPage(ctx, tokenID, limit, offset)
		if err != nil {
			return nil, err
		}
		page.Freshness = models.FreshnessFresh
		return page, nil
	}

	result, err := s.engine.Synchronize(ctx, tokenID, SyncOptions{
		ForceRefresh: forceRefresh,
		PageLimit:    s.cfg.PageLimit,
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenInactive) {
			return nil, err
		}
		return s.serveStaleOrFail(ctx, tokenID, limit, offset, "server", err.Error())
	}

	if !result.Succeeded() {
		return s.serveStaleOrFail(ctx, tokenID, limit, offset, result.ErrorKind, result.ErrorMessage)
	}

	page, err := s.readPage(ctx, tokenID, limit, offset)
	if err != nil {
		return nil, err
	}

	if result.Outcome == models.SyncStatusPartial {
		page.Freshness = models.FreshnessPartial
		page.Warning = fmt.Sprintf("partial sync: %s", result.ErrorMessage)
	} else {
		page.Freshness = models.FreshnessSyncedNow
		if len(result.Warnings) > 0 {
			page.Warning = fmt.Sprintf("sync completed with warnings: %v", result.Warnings)
		}
	}

	// A clean sync of an empty catalog is its own state, not "synced now".
	if page.Total == 0 {
		page.Freshness = models.FreshnessEmpty
	}

	return page, nil
}

// SyncNow forces a synchronization run regardless of cache freshness.
func (s *ProductCacheService) SyncNow(ctx context.Context, tokenID uuid.UUID, pageLimit int) (*SyncResult, error) {
	return s.engine.Synchronize(ctx, tokenID, SyncOptions{
		ForceRefresh: true,
		PageLimit:    pageLimit,
	})
}

func (s *ProductCacheService) CacheStats(ctx context.Context, tokenID *uuid.UUID) (*CacheStats, error) {
	return s.store.Stats(ctx, tokenID)
}

func (s *ProductCacheService) ClearExpired(ctx context.Context) (*ClearExpiredResult, error) {
	return s.store.ClearExpired(ctx, s.cfg.TTL, s.cfg.Retention)
}

func (s *ProductCacheService) currentState(ctx context.Context, tokenID uuid.UUID) (*freshnessState, error) {
	count, err := s.store.CountActive(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	newest, err := s.store.NewestActive(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	state := &freshnessState{activeCount: count, newest: newest}

	// Partial coverage: fewer active records than the upstream last reported.
	var lastCompleted models.SyncRun
	err = s.db.WithContext(ctx).
		Where("token_id = ? AND status = ?", tokenID, models.SyncStatusCompleted).
		Order("started_at DESC").
		First(&lastCompleted).Error
	if err == nil {
		state.upstreamTotal = lastCompleted.UpstreamTotal
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read sync history: %w", err)
	}

	return state, nil
}

func (s *ProductCacheService) isFresh(state *freshnessState) bool {
	if state.activeCount == 0 || state.newest == nil {
		return false
	}
	if time.Since(*state.newest) > s.cfg.TTL {
		return false
	}
	if state.upstreamTotal > 0 && state.activeCount < int64(state.upstreamTotal) {
		return false
	}
	return true
}

func (s *ProductCacheService) readPage(ctx context.Context, tokenID uuid.UUID, limit, offset int) (*CachedProducts, error) {
	records, err := s.store.Query(ctx, tokenID, limit, offset)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountActive(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	page := &CachedProducts{
		Products:    make([]models.JSONB, 0, len(records)),
		Total:       count,
		CachedCount: count,
	}
	for _, record := range records {
		page.Products = append(page.Products, record.ProductData)
	}
	if len(records) > 0 {
		page.LastUpdated = &records[0].LastUpdated
	}

	return page, nil
}

// serveStaleOrFail implements graceful degradation: a failed refresh over an
// existing cache serves the stale page with a warning instead of erroring.
func (s *ProductCacheService) serveStaleOrFail(ctx context.Context, tokenID uuid.UUID, limit, offset int, kind, message string) (*CachedProducts, error) {
	page, err := s.readPage(ctx, tokenID, limit, offset)
	if err != nil {
		return nil, err
	}

	if page.Total == 0 {
		return nil, &SyncUnavailableError{Kind: kind, Message: message}
	}

	logrus.WithFields(logrus.Fields{
		"token_id": tokenID,
		"kind":     kind,
	}).Warn("Serving stale cache after sync failure")

	page.Freshness = models.FreshnessStaleServed
	page.Warning = fmt.Sprintf("using stale cache data due to sync failure: %s", message)
	return page, nil
}
