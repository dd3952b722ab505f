// internal/models/subject_characteristics.go
package models

import (
	"time"
)

// SubjectCharacteristicsCache holds the characteristics schema for one subject
// (product category). The cache is global: characteristics describe the
// category itself, not any seller's catalog, so rows carry no token reference.
type SubjectCharacteristicsCache struct {
	BaseModel
	SubjectID           int       `json:"subject_id" gorm:"not null;uniqueIndex:idx_subject_charcs_subject"`
	CharacteristicsData JSONBList `json:"characteristics_data" gorm:"type:jsonb"`
	LastUpdated         time.Time `json:"last_updated" gorm:"not null"`
	CacheVersion        int       `json:"cache_version" gorm:"default:1"`
	IsActive            bool      `json:"is_active" gorm:"default:true"`
}
