// internal/services/subject_characteristics_service.go
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

var ErrSubjectNotCached = errors.New("subject is not cached")

// SubjectCharacteristics is one subject's characteristics schema plus cache
// provenance.
type SubjectCharacteristics struct {
	SubjectID       int              `json:"subject_id"`
	Characteristics models.JSONBList `json:"characteristics"`
	FromCache       bool             `json:"from_cache"`
	CachedAt        *time.Time       `json:"cached_at,omitempty"`
}

// SubjectCharacteristicsService caches subject (category) characteristics
// schemas. Unlike the product cache, this cache is global: the schema belongs
// to the category, so one seller's fetch serves every seller. The credential
// is only needed for the upstream call on a miss.
type SubjectCharacteristicsService struct {
	db     *gorm.DB
	tokens *TokenService
	cfg    config.CacheConfig
}

func NewSubjectCharacteristicsService(db *gorm.DB, tokens *TokenService, cfg config.CacheConfig) *SubjectCharacteristicsService {
	return &SubjectCharacteristicsService{
		db:     db,
		tokens: tokens,
		cfg:    cfg,
	}
}

// GetSubjectCharacteristics serves the schema cache-first: a valid global
// entry answers without touching the upstream; a miss, an expired entry or
// forceRefresh fetches with the given credential and rewrites the entry.
func (s *SubjectCharacteristicsService) GetSubjectCharacteristics(ctx context.Context, tokenID uuid.UUID, subjectID int, forceRefresh bool) (*SubjectCharacteristics, error) {
	if !forceRefresh {
		entry, err := s.activeEntry(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if entry != nil && time.Since(entry.LastUpdated) <= s.cfg.SubjectCharcsTTL {
			return &SubjectCharacteristics{
				SubjectID:       subjectID,
				Characteristics: entry.CharacteristicsData,
				FromCache:       true,
				CachedAt:        &entry.LastUpdated,
			}, nil
		}
	}

	return s.fetchAndCache(ctx, tokenID, subjectID)
}

// Invalidate deactivates the global cache entry for one subject.
func (s *SubjectCharacteristicsService) Invalidate(ctx context.Context, subjectID int) error {
	result := s.db.WithContext(ctx).Model(&models.SubjectCharacteristicsCache{}).
		Where("subject_id = ? AND is_active = ?", subjectID, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to invalidate subject cache: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSubjectNotCached
	}

	logrus.WithField("subject_id", subjectID).Info("Subject characteristics cache invalidated")
	return nil
}

type SubjectCacheStats struct {
	TotalCachedSubjects int64 `json:"total_cached_subjects"`
	ExpiredEntries      int64 `json:"expired_entries"`
	ValidEntries        int64 `json:"valid_entries"`
	CacheExpiryDays     int   `json:"cache_expiry_days"`
}

func (s *SubjectCharacteristicsService) Stats(ctx context.Context) (*SubjectCacheStats, error) {
	var total, expired int64

	err := s.db.WithContext(ctx).Model(&models.SubjectCharacteristicsCache{}).
		Where("is_active = ?", true).
		Count(&total).Error
	if err != nil {
		return nil, fmt.Errorf("failed to collect subject cache stats: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.cfg.SubjectCharcsTTL)
	err = s.db.WithContext(ctx).Model(&models.SubjectCharacteristicsCache{}).
		Where("is_active = ? AND last_updated < ?", true, cutoff).
		Count(&expired).Error
	if err != nil {
		return nil, fmt.Errorf("failed to collect subject cache stats: %w", err)
	}

	return &SubjectCacheStats{
		TotalCachedSubjects: total,
		ExpiredEntries:      expired,
		ValidEntries:        total - expired,
		CacheExpiryDays:     int(s.cfg.SubjectCharcsTTL / (24 * time.Hour)),
	}, nil
}

func (s *SubjectCharacteristicsService) activeEntry(ctx context.Context, subjectID int) (*models.SubjectCharacteristicsCache, error) {
	var entry models.SubjectCharacteristicsCache
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND is_active = ?", subjectID, true).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read subject cache: %w", err)
	}
	return &entry, nil
}

func (s *SubjectCharacteristicsService) fetchAndCache(ctx context.Context, tokenID uuid.UUID, subjectID int) (*SubjectCharacteristics, error) {
	apiKey, err := s.tokens.APIKeyForSync(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	charcs, err := s.tokens.client.SubjectCharcs(ctx, apiKey, subjectID)
	if err != nil {
		return nil, err
	}

	if err := s.updateCache(ctx, subjectID, charcs); err != nil {
		return nil, err
	}

	return &SubjectCharacteristics{
		SubjectID:       subjectID,
		Characteristics: charcs,
		FromCache:       false,
	}, nil
}

// updateCache rewrites the single global row per subject, reviving a
// deactivated entry and bumping its version.
func (s *SubjectCharacteristicsService) updateCache(ctx context.Context, subjectID int, charcs models.JSONBList) error {
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.SubjectCharacteristicsCache
		err := tx.Where("subject_id = ?", subjectID).First(&entry).Error

		switch {
		case err == nil:
			return tx.Model(&entry).UpdateColumns(map[string]interface{}{
				"characteristics_data": charcs,
				"last_updated":         now,
				"cache_version":        gorm.Expr("cache_version + 1"),
				"is_active":            true,
				"updated_at":           now,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.SubjectCharacteristicsCache{
				SubjectID:           subjectID,
				CharacteristicsData: charcs,
				LastUpdated:         now,
				CacheVersion:        1,
				IsActive:            true,
			}).Error
		default:
			return fmt.Errorf("failed to update subject cache: %w", err)
		}
	})
}
