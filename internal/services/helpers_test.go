// internal/services/helpers_test.go
package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/models"
	"github.com/marketdesk/wb-backoffice/internal/utils"
	"github.com/marketdesk/wb-backoffice/internal/wbclient"
)

const testAPIKey = "test-api-key"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.WBToken{},
		&models.ProductCache{},
		&models.SyncRun{},
		&models.SubjectCharacteristicsCache{},
	))
	return db
}

func newTestCipher(t *testing.T) *utils.TokenCipher {
	t.Helper()

	cipher, err := utils.NewTokenCipher("unit-test-secret")
	require.NoError(t, err)
	return cipher
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		TTL:              24 * time.Hour,
		Retention:        7 * 24 * time.Hour,
		MaxSyncPages:     10,
		PageLimit:        100,
		PageRetries:      2,
		RetryBackoff:     2 * time.Second,
		SyncLockTTL:      15 * time.Minute,
		SubjectCharcsTTL: 7 * 24 * time.Hour,
	}
}

func seedToken(t *testing.T, db *gorm.DB, cipher *utils.TokenCipher) *models.WBToken {
	t.Helper()

	encrypted, err := cipher.Encrypt(testAPIKey)
	require.NoError(t, err)

	token := &models.WBToken{
		Name:           "seller one",
		Environment:    models.TokenEnvironmentProduction,
		IsActive:       true,
		TokenEncrypted: encrypted,
	}
	require.NoError(t, db.Create(token).Error)
	return token
}

func seedCachedProduct(t *testing.T, db *gorm.DB, tokenID uuid.UUID, productID string, lastUpdated time.Time, active bool) {
	t.Helper()

	record := &models.ProductCache{
		TokenID:      tokenID,
		WBProductID:  productID,
		ProductData:  models.JSONB{"vendorCode": productID},
		LastUpdated:  lastUpdated,
		CacheVersion: 1,
		IsActive:     active,
	}
	require.NoError(t, db.Create(record).Error)
}

// catalogCards fabricates a page of upstream cards with deterministic content.
func catalogCards(prefix string, n int) []wbclient.Card {
	cards := make([]wbclient.Card, 0, n)
	for i := 0; i < n; i++ {
		code := fmt.Sprintf("%s-%03d", prefix, i)
		cards = append(cards, wbclient.Card{
			VendorCode: code,
			Data:       models.JSONB{"vendorCode": code, "title": "Product " + code},
		})
	}
	return cards
}

type fetchOutcome struct {
	page *wbclient.CardsPage
	err  error
}

// mockCatalog plays back a scripted sequence of page responses and records the
// offsets it was asked for. An exhausted script returns empty pages.
type mockCatalog struct {
	mu      sync.Mutex
	script  []fetchOutcome
	offsets []int

	// entered receives one signal per FetchPage call and gate, when non-nil,
	// blocks the call until closed. Used to hold a sync run open mid-flight.
	entered chan struct{}
	gate    chan struct{}

	ping *wbclient.PingResult

	// charcs answers SubjectCharcs calls; charcsErr wins when set.
	charcs        models.JSONBList
	charcsErr     error
	charcsFetches int
}

func (m *mockCatalog) FetchPage(ctx context.Context, apiKey string, offset, limit int) (*wbclient.CardsPage, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.offsets = append(m.offsets, offset)
	if len(m.script) == 0 {
		return &wbclient.CardsPage{}, nil
	}

	next := m.script[0]
	m.script = m.script[1:]
	return next.page, next.err
}

func (m *mockCatalog) SubjectCharcs(ctx context.Context, apiKey string, subjectID int) (models.JSONBList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.charcsFetches++
	if m.charcsErr != nil {
		return nil, m.charcsErr
	}
	return m.charcs, nil
}

func (m *mockCatalog) Ping(ctx context.Context, apiKey string) (*wbclient.PingResult, error) {
	if m.ping != nil {
		return m.ping, nil
	}
	return &wbclient.PingResult{IsValid: true}, nil
}

func (m *mockCatalog) SellerInfo(ctx context.Context, apiKey string) (*wbclient.Seller, error) {
	return &wbclient.Seller{SID: "12345", Name: "Test Seller", TradeMark: "TestMark"}, nil
}

func (m *mockCatalog) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offsets)
}

func (m *mockCatalog) fetchedOffsets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.offsets...)
}

var _ wbclient.CatalogClient = (*mockCatalog)(nil)
