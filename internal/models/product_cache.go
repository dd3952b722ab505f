// internal/models/product_cache.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProductCache is one cached product card, keyed by (token_id, wb_product_id).
//
// WBProductID carries the upstream vendorCode. Vendor codes are alphanumeric
// ("ABC-123"), so the column is text and must never be coerced to an integer.
type ProductCache struct {
	BaseModel
	TokenID      uuid.UUID `json:"token_id" gorm:"type:uuid;not null;uniqueIndex:idx_product_cache_identity,priority:1"`
	WBProductID  string    `json:"wb_product_id" gorm:"type:text;not null;uniqueIndex:idx_product_cache_identity,priority:2"`
	ProductData  JSONB     `json:"product_data" gorm:"type:jsonb"`
	LastUpdated  time.Time `json:"last_updated" gorm:"not null"`
	CacheVersion int       `json:"cache_version" gorm:"default:1"`
	IsActive     bool      `json:"is_active" gorm:"default:true"`

	Token WBToken `json:"-" gorm:"foreignKey:TokenID;constraint:OnDelete:CASCADE"`
}

// SyncRun is one attempt to synchronize a token's full catalog. A run is
// append-only once closed: CompletedAt and Status are fixed exactly once.
type SyncRun struct {
	BaseModel
	TokenID  uuid.UUID  `json:"token_id" gorm:"type:uuid;not null;index"`
	SyncType SyncType   `json:"sync_type" gorm:"type:varchar(20);default:'full'"`
	Status   SyncStatus `json:"status" gorm:"type:varchar(20);default:'in_progress';index"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`

	PagesAttempted   int `json:"pages_attempted" gorm:"default:0"`
	ProductsFetched  int `json:"products_fetched" gorm:"default:0"`
	ProductsUpserted int `json:"products_upserted" gorm:"default:0"`
	ProductsSkipped  int `json:"products_skipped" gorm:"default:0"`
	RetriesUsed      int `json:"retries_used" gorm:"default:0"`

	// Total catalog size as advertised by the upstream cursor, when known.
	// Drives partial-coverage detection on the read path.
	UpstreamTotal int `json:"upstream_total" gorm:"default:0"`

	Warnings     pq.StringArray `json:"warnings" gorm:"type:text[]"`
	ErrorKind    string         `json:"error_kind" gorm:"size:50"`
	ErrorMessage string         `json:"error_message" gorm:"type:text"`

	Token WBToken `json:"-" gorm:"foreignKey:TokenID;constraint:OnDelete:CASCADE"`
}
