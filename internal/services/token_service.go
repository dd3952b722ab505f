// internal/services/token_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketdesk/wb-backoffice/internal/models"
	"github.com/marketdesk/wb-backoffice/internal/utils"
	"github.com/marketdesk/wb-backoffice/internal/wbclient"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenInactive = errors.New("token is inactive")
)

// TokenService manages seller credentials: encryption at rest, upstream
// validation and the decrypt-for-sync path the sync engine depends on.
type TokenService struct {
	db     *gorm.DB
	client wbclient.CatalogClient
	cipher *utils.TokenCipher
}

type CreateTokenRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=100"`
	Token       string `json:"token" validate:"required"`
	Environment string `json:"environment" validate:"omitempty,oneof=production sandbox"`
}

type UpdateTokenRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=3,max=100"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func NewTokenService(db *gorm.DB, client wbclient.CatalogClient, cipher *utils.TokenCipher) *TokenService {
	return &TokenService{
		db:     db,
		client: client,
		cipher: cipher,
	}
}

func (s *TokenService) CreateToken(ctx context.Context, req *CreateTokenRequest) (*models.WBToken, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(req.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}

	environment := models.TokenEnvironment(req.Environment)
	if environment == "" {
		environment = models.TokenEnvironmentProduction
	}

	token := &models.WBToken{
		Name:           req.Name,
		Environment:    environment,
		IsActive:       true,
		TokenEncrypted: encrypted,
	}

	// Validation is best effort: a token that cannot reach the upstream right
	// now is still stored, with the failure recorded.
	s.validateUpstream(ctx, token, req.Token)

	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	return token, nil
}

func (s *TokenService) GetToken(ctx context.Context, id uuid.UUID) (*models.WBToken, error) {
	var token models.WBToken
	if err := s.db.WithContext(ctx).First(&token, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &token, nil
}

func (s *TokenService) ListTokens(ctx context.Context) ([]models.WBToken, error) {
	var tokens []models.WBToken
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	return tokens, nil
}

func (s *TokenService) UpdateToken(ctx context.Context, id uuid.UUID, req *UpdateTokenRequest) (*models.WBToken, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	token, err := s.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return token, nil
	}

	if err := s.db.WithContext(ctx).Model(token).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update token: %w", err)
	}

	return token, nil
}

// DeleteToken removes a credential. Cached products and sync runs are owned
// exclusively by their token and are removed with it.
func (s *TokenService) DeleteToken(ctx context.Context, id uuid.UUID) error {
	token, err := s.GetToken(ctx, id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("token_id = ?", id).Delete(&models.ProductCache{}).Error; err != nil {
			return fmt.Errorf("failed to delete cached products: %w", err)
		}
		if err := tx.Unscoped().Where("token_id = ?", id).Delete(&models.SyncRun{}).Error; err != nil {
			return fmt.Errorf("failed to delete sync runs: %w", err)
		}
		if err := tx.Delete(token).Error; err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
		return nil
	})
}

// ValidateToken re-checks the credential against the upstream and persists
// the outcome.
func (s *TokenService) ValidateToken(ctx context.Context, id uuid.UUID) (*models.WBToken, error) {
	token, err := s.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.cipher.Decrypt(token.TokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	s.validateUpstream(ctx, token, apiKey)

	err = s.db.WithContext(ctx).Model(token).Updates(map[string]interface{}{
		"is_valid":          token.IsValid,
		"last_validated_at": token.LastValidatedAt,
		"validation_error":  token.ValidationError,
		"seller_id":         token.SellerID,
		"seller_name":       token.SellerName,
		"trade_mark":        token.TradeMark,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to persist validation result: %w", err)
	}

	return token, nil
}

// APIKeyForSync resolves a token id to a decrypted API key for the sync
// engine, recording usage.
func (s *TokenService) APIKeyForSync(ctx context.Context, id uuid.UUID) (string, error) {
	token, err := s.GetToken(ctx, id)
	if err != nil {
		return "", err
	}

	if !token.IsActive {
		return "", ErrTokenInactive
	}

	apiKey, err := s.cipher.Decrypt(token.TokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}

	now := time.Now().UTC()
	s.db.WithContext(ctx).Model(token).UpdateColumns(map[string]interface{}{
		"total_requests": gorm.Expr("total_requests + 1"),
		"last_used_at":   now,
	})

	return apiKey, nil
}

// RecordSyncOutcome updates the credential's sync marker and failure counter
// after a run closes.
func (s *TokenService) RecordSyncOutcome(ctx context.Context, id uuid.UUID, completedAt time.Time, failed bool) {
	updates := map[string]interface{}{}
	if failed {
		updates["failed_requests"] = gorm.Expr("failed_requests + 1")
	} else {
		updates["last_synced_at"] = completedAt
	}

	s.db.WithContext(ctx).Model(&models.WBToken{}).Where("id = ?", id).UpdateColumns(updates)
}

func (s *TokenService) validateUpstream(ctx context.Context, token *models.WBToken, apiKey string) {
	now := time.Now().UTC()
	token.LastValidatedAt = &now

	ping, err := s.client.Ping(ctx, apiKey)
	if err != nil {
		valid := false
		message := err.Error()
		token.IsValid = &valid
		token.ValidationError = &message
		return
	}

	token.IsValid = &ping.IsValid
	if !ping.IsValid {
		message := ping.Error
		token.ValidationError = &message
		return
	}
	token.ValidationError = nil

	if seller, err := s.client.SellerInfo(ctx, apiKey); err == nil {
		token.SellerID = &seller.SID
		token.SellerName = &seller.Name
		token.TradeMark = &seller.TradeMark
	}
}
