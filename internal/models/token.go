// internal/models/token.go
package models

import (
	"time"
)

// WBToken is a seller's stored credential for the Wildberries API. The raw
// token value is encrypted at rest and never serialized.
type WBToken struct {
	BaseModel
	Name           string           `json:"name" gorm:"size:100;not null"`
	Environment    TokenEnvironment `json:"environment" gorm:"type:varchar(20);default:'production'"`
	IsActive       bool             `json:"is_active" gorm:"default:true"`
	TokenEncrypted string           `json:"-" gorm:"type:text;not null"`

	// Seller information fetched from the upstream API on validation
	SellerID   *string `json:"seller_id" gorm:"size:64"`
	SellerName *string `json:"seller_name" gorm:"size:255"`
	TradeMark  *string `json:"trade_mark" gorm:"size:255"`

	// Validation status
	IsValid         *bool      `json:"is_valid"`
	LastValidatedAt *time.Time `json:"last_validated_at"`
	ValidationError *string    `json:"validation_error"`

	// Usage statistics
	TotalRequests  int64      `json:"total_requests" gorm:"default:0"`
	FailedRequests int64      `json:"failed_requests" gorm:"default:0"`
	LastUsedAt     *time.Time `json:"last_used_at"`

	// Updated by the sync engine after a fully completed catalog sync
	LastSyncedAt *time.Time `json:"last_synced_at"`

	// Relationships
	Products []ProductCache `json:"-" gorm:"foreignKey:TokenID;constraint:OnDelete:CASCADE"`
	SyncRuns []SyncRun      `json:"-" gorm:"foreignKey:TokenID;constraint:OnDelete:CASCADE"`
}
