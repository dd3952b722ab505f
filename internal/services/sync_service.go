// internal/services/sync_service.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/models"
	"github.com/marketdesk/wb-backoffice/internal/wbclient"
)

const (
	// WarningPaginationAnomaly flags that the upstream ignored the requested
	// offset and returned a repeated page; the catalog may exceed what a
	// single-page fetch could retrieve.
	WarningPaginationAnomaly = "pagination_anomaly"

	ErrorKindMaxPages         = "max_pages_exceeded"
	ErrorKindCacheUnavailable = "cache_unavailable"
)

type SyncOptions struct {
	ForceRefresh bool
	PageLimit    int
}

// SyncResult is the structured outcome of one synchronization run.
type SyncResult struct {
	RunID            uuid.UUID         `json:"run_id"`
	Outcome          models.SyncStatus `json:"outcome"`
	PagesAttempted   int               `json:"pages_attempted"`
	ProductsFetched  int               `json:"products_fetched"`
	ProductsUpserted int               `json:"products_upserted"`
	ProductsSkipped  int               `json:"products_skipped"`
	RetriesUsed      int               `json:"retries_used"`
	UpstreamTotal    int               `json:"upstream_total"`
	Warnings         []string          `json:"warnings,omitempty"`
	ErrorKind        string            `json:"error_kind,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
}

// Succeeded reports whether the run left any usable progress behind.
func (r *SyncResult) Succeeded() bool {
	return r.Outcome == models.SyncStatusCompleted || r.Outcome == models.SyncStatusPartial
}

type syncFlight struct {
	done      chan struct{}
	startedAt time.Time
	result    *SyncResult
	err       error
}

// SyncEngine performs full-catalog synchronization runs against an unreliable
// upstream: bounded pagination, per-page retry with backoff, reconciliation
// of deletions and an append-only audit trail. At most one run per token is
// in flight; concurrent requests join the existing run.
type SyncEngine struct {
	db     *gorm.DB
	store  *CacheStore
	tokens *TokenService
	client wbclient.CatalogClient
	cfg    config.CacheConfig

	// sleep is the backoff suspension point; injected in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inflight map[uuid.UUID]*syncFlight
}

func NewSyncEngine(db *gorm.DB, store *CacheStore, tokens *TokenService, client wbclient.CatalogClient, cfg config.CacheConfig) *SyncEngine {
	return &SyncEngine{
		db:       db,
		store:    store,
		tokens:   tokens,
		client:   client,
		cfg:      cfg,
		sleep:    sleepContext,
		inflight: make(map[uuid.UUID]*syncFlight),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Synchronize runs one full catalog sync for the token. A request for a token
// that is already syncing joins the in-flight run and returns its result. The
// in-flight marker expires after SyncLockTTL so a crashed run cannot block a
// token forever.
func (e *SyncEngine) Synchronize(ctx context.Context, tokenID uuid.UUID, opts SyncOptions) (*SyncResult, error) {
	e.mu.Lock()
	if flight, ok := e.inflight[tokenID]; ok {
		if time.Since(flight.startedAt) < e.cfg.SyncLockTTL {
			e.mu.Unlock()
			select {
			case <-flight.done:
				return flight.result, flight.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		delete(e.inflight, tokenID)
	}

	flight := &syncFlight{done: make(chan struct{}), startedAt: time.Now()}
	e.inflight[tokenID] = flight
	e.mu.Unlock()

	result, err := e.run(ctx, tokenID, opts)

	flight.result, flight.err = result, err
	e.mu.Lock()
	if e.inflight[tokenID] == flight {
		delete(e.inflight, tokenID)
	}
	e.mu.Unlock()
	close(flight.done)

	return result, err
}

func (e *SyncEngine) run(ctx context.Context, tokenID uuid.UUID, opts SyncOptions) (*SyncResult, error) {
	apiKey, err := e.tokens.APIKeyForSync(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	run := &models.SyncRun{
		TokenID:   tokenID,
		SyncType:  models.SyncTypeFull,
		Status:    models.SyncStatusInProgress,
		StartedAt: startedAt,
	}
	if err := e.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to open sync run: %w", err)
	}

	result := &SyncResult{RunID: run.ID}
	log := logrus.WithFields(logrus.Fields{
		"token_id": tokenID,
		"run_id":   run.ID,
	})

	pageLimit := opts.PageLimit
	if pageLimit < 1 || pageLimit > e.cfg.PageLimit {
		pageLimit = e.cfg.PageLimit
	}

	seenIDs := make(map[string]struct{})
	keepIDs := make([]string, 0)
	var prevPageHash [sha256.Size]byte
	completedFully := false
	offset := 0

	for page := 0; ; page++ {
		if page >= e.cfg.MaxSyncPages {
			// The upstream offset contract is broken; running past the page
			// bound means the terminal conditions never triggered.
			result.ErrorKind = ErrorKindMaxPages
			result.ErrorMessage = fmt.Sprintf("exceeded maximum pages (%d)", e.cfg.MaxSyncPages)
			break
		}

		cardsPage, fetchErr := e.fetchPageWithRetry(ctx, apiKey, offset, pageLimit, result)
		if fetchErr != nil {
			result.ErrorKind = string(wbclient.KindOf(fetchErr))
			result.ErrorMessage = fetchErr.Error()
			log.WithError(fetchErr).Warnf("Sync aborted at offset %d", offset)
			break
		}

		result.PagesAttempted++
		if cardsPage.Total > 0 {
			result.UpstreamTotal = cardsPage.Total
		}

		if len(cardsPage.Cards) == 0 {
			completedFully = true
			break
		}

		pageHash := hashCards(cardsPage.Cards)
		if page > 0 && pageHash == prevPageHash {
			// Offset was silently ignored upstream: same content came back
			// for a different offset. Terminal page, not an error.
			result.Warnings = append(result.Warnings, WarningPaginationAnomaly)
			log.Warn("Pagination anomaly detected: upstream repeated the previous page")
			completedFully = true
			break
		}
		prevPageHash = pageHash

		now := time.Now().UTC()
		records := make([]models.ProductCache, 0, len(cardsPage.Cards))
		for _, card := range cardsPage.Cards {
			result.ProductsFetched++

			if card.VendorCode == "" {
				result.ProductsSkipped++
				continue
			}
			if _, dup := seenIDs[card.VendorCode]; dup {
				result.ProductsSkipped++
				continue
			}
			seenIDs[card.VendorCode] = struct{}{}
			keepIDs = append(keepIDs, card.VendorCode)

			records = append(records, models.ProductCache{
				TokenID:      tokenID,
				WBProductID:  card.VendorCode,
				ProductData:  card.Data,
				LastUpdated:  now,
				CacheVersion: 1,
				IsActive:     true,
			})
		}

		if err := e.store.UpsertPage(ctx, records); err != nil {
			result.ErrorKind = ErrorKindCacheUnavailable
			result.ErrorMessage = err.Error()
			log.WithError(err).Error("Failed to commit page to cache store")
			break
		}
		result.ProductsUpserted += len(records)

		e.updateRunProgress(ctx, run.ID, result)

		if !cardsPage.HasMore(pageLimit) {
			completedFully = true
			break
		}
		offset += pageLimit
	}

	if completedFully {
		deactivated, err := e.store.DeactivateExcept(ctx, tokenID, keepIDs, startedAt)
		if err != nil {
			// Upserts landed but reconciliation did not: the run is partial,
			// prior records stay visible.
			result.ErrorKind = ErrorKindCacheUnavailable
			result.ErrorMessage = err.Error()
			completedFully = false
		} else if deactivated > 0 {
			log.Infof("Reconciled %d records no longer present upstream", deactivated)
		}
	}

	completedAt := time.Now().UTC()
	switch {
	case completedFully:
		result.Outcome = models.SyncStatusCompleted
	case result.ProductsUpserted > 0:
		result.Outcome = models.SyncStatusPartial
	default:
		result.Outcome = models.SyncStatusFailed
	}

	e.closeRun(ctx, run.ID, result, completedAt)
	e.tokens.RecordSyncOutcome(ctx, tokenID, completedAt, result.Outcome == models.SyncStatusFailed)

	log.WithFields(logrus.Fields{
		"outcome":  result.Outcome,
		"pages":    result.PagesAttempted,
		"fetched":  result.ProductsFetched,
		"upserted": result.ProductsUpserted,
		"skipped":  result.ProductsSkipped,
		"retries":  result.RetriesUsed,
	}).Info("Sync run closed")

	return result, nil
}

// fetchPageWithRetry is the bounded-attempt state machine for one page:
// retries+1 attempts, exponential backoff (base, 2x base, ...), retrying on
// transient failures only.
func (e *SyncEngine) fetchPageWithRetry(ctx context.Context, apiKey string, offset, limit int, result *SyncResult) (*wbclient.CardsPage, error) {
	attempts := e.cfg.PageRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := e.client.FetchPage(ctx, apiKey, offset, limit)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !wbclient.IsRetryable(err) || attempt == attempts {
			break
		}

		result.RetriesUsed++
		backoff := e.cfg.RetryBackoff << (attempt - 1)
		logrus.WithError(err).Warnf("Page retry %d/%d for offset %d, waiting %s", attempt, attempts-1, offset, backoff)
		if sleepErr := e.sleep(ctx, backoff); sleepErr != nil {
			return nil, &wbclient.APIError{Kind: wbclient.ErrorKindTimeout, Message: sleepErr.Error()}
		}
	}

	return nil, lastErr
}

func (e *SyncEngine) updateRunProgress(ctx context.Context, runID uuid.UUID, result *SyncResult) {
	err := e.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", runID, models.SyncStatusInProgress).
		UpdateColumns(map[string]interface{}{
			"pages_attempted":   result.PagesAttempted,
			"products_fetched":  result.ProductsFetched,
			"products_upserted": result.ProductsUpserted,
			"products_skipped":  result.ProductsSkipped,
			"retries_used":      result.RetriesUsed,
			"upstream_total":    result.UpstreamTotal,
		}).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to update sync run progress")
	}
}

// closeRun fixes the run's terminal outcome. The status guard keeps closed
// runs immutable.
func (e *SyncEngine) closeRun(ctx context.Context, runID uuid.UUID, result *SyncResult, completedAt time.Time) {
	err := e.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", runID, models.SyncStatusInProgress).
		UpdateColumns(map[string]interface{}{
			"status":            result.Outcome,
			"completed_at":      completedAt,
			"pages_attempted":   result.PagesAttempted,
			"products_fetched":  result.ProductsFetched,
			"products_upserted": result.ProductsUpserted,
			"products_skipped":  result.ProductsSkipped,
			"retries_used":      result.RetriesUsed,
			"upstream_total":    result.UpstreamTotal,
			"warnings":          pqStringArray(result.Warnings),
			"error_kind":        result.ErrorKind,
			"error_message":     result.ErrorMessage,
		}).Error
	if err != nil {
		logrus.WithError(err).Error("Failed to close sync run")
	}
}

func pqStringArray(values []string) pq.StringArray {
	if len(values) == 0 {
		return nil
	}
	return pq.StringArray(values)
}

// hashCards fingerprints a page's content for the duplicate-page check.
// json.Marshal sorts map keys, so equal card sets hash equally.
func hashCards(cards []wbclient.Card) [sha256.Size]byte {
	payload, err := json.Marshal(cards)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(payload)
}
