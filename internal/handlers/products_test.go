// internal/handlers/products_test.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/models"
	"github.com/marketdesk/wb-backoffice/internal/services"
	"github.com/marketdesk/wb-backoffice/internal/utils"
	"github.com/marketdesk/wb-backoffice/internal/wbclient"
)

// stubCatalog lets each test script the upstream with a single function.
type stubCatalog struct {
	fetch func(offset, limit int) (*wbclient.CardsPage, error)
	calls int
}

func (s *stubCatalog) FetchPage(ctx context.Context, apiKey string, offset, limit int) (*wbclient.CardsPage, error) {
	s.calls++
	if s.fetch == nil {
		return &wbclient.CardsPage{}, nil
	}
	return s.fetch(offset, limit)
}

func (s *stubCatalog) SubjectCharcs(ctx context.Context, apiKey string, subjectID int) (models.JSONBList, error) {
	return models.JSONBList{map[string]interface{}{"charcID": float64(1), "name": "Color"}}, nil
}

func (s *stubCatalog) Ping(ctx context.Context, apiKey string) (*wbclient.PingResult, error) {
	return &wbclient.PingResult{IsValid: true}, nil
}

func (s *stubCatalog) SellerInfo(ctx context.Context, apiKey string) (*wbclient.Seller, error) {
	return &wbclient.Seller{SID: "12345", Name: "Test Seller"}, nil
}

type ProductHandlerTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	stub   *stubCatalog
	token  *models.WBToken
}

func (suite *ProductHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)
	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(db.AutoMigrate(
		&models.WBToken{},
		&models.ProductCache{},
		&models.SyncRun{},
		&models.SubjectCharacteristicsCache{},
	))
	suite.db = db

	cipher, err := utils.NewTokenCipher("handler-test-secret")
	suite.Require().NoError(err)

	encrypted, err := cipher.Encrypt("test-api-key")
	suite.Require().NoError(err)
	suite.token = &models.WBToken{
		Name:           "seller one",
		Environment:    models.TokenEnvironmentProduction,
		IsActive:       true,
		TokenEncrypted: encrypted,
	}
	suite.Require().NoError(db.Create(suite.token).Error)

	cfg := config.CacheConfig{
		TTL:          24 * time.Hour,
		Retention:    7 * 24 * time.Hour,
		MaxSyncPages: 10,
		PageLimit:    100,
		PageRetries:  0,
		RetryBackoff: time.Millisecond,
		SyncLockTTL:  15 * time.Minute,
	}

	suite.stub = &stubCatalog{}
	store := services.NewCacheStore(db)
	tokens := services.NewTokenService(db, suite.stub, cipher)
	engine := services.NewSyncEngine(db, store, tokens, suite.stub, cfg)
	cacheService := services.NewProductCacheService(db, store, engine, cfg)

	handler := NewProductHandler(cacheService)

	suite.router = gin.New()
	products := suite.router.Group("/v1/products")
	{
		products.GET("/cached/:token_id", handler.GetCachedProducts)
		products.POST("/sync/:token_id", handler.SyncProducts)
		products.GET("/cache/stats", handler.GetCacheStats)
		products.DELETE("/cache/expired", handler.ClearExpiredCache)
	}
}

func (suite *ProductHandlerTestSuite) seedProduct(productID string, lastUpdated time.Time) {
	record := &models.ProductCache{
		TokenID:      suite.token.ID,
		WBProductID:  productID,
		ProductData:  models.JSONB{"vendorCode": productID},
		LastUpdated:  lastUpdated,
		CacheVersion: 1,
		IsActive:     true,
	}
	suite.Require().NoError(suite.db.Create(record).Error)
}

func (suite *ProductHandlerTestSuite) do(method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req, err := http.NewRequest(method, path, nil)
	suite.Require().NoError(err)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func (suite *ProductHandlerTestSuite) TestGetCachedProductsFresh() {
	now := time.Now().UTC()
	suite.seedProduct("ABC-123", now)
	suite.seedProduct("DEF-456", now)

	w, body := suite.do("GET", "/v1/products/cached/"+suite.token.ID.String())

	suite.Equal(http.StatusOK, w.Code)
	suite.True(body["success"].(bool))

	data := body["data"].(map[string]interface{})
	suite.Equal("fresh", data["freshness"])
	suite.Equal(float64(2), data["total"])
	suite.Equal(0, suite.stub.calls)
}

func (suite *ProductHandlerTestSuite) TestGetCachedProductsInvalidTokenID() {
	w, body := suite.do("GET", "/v1/products/cached/not-a-uuid")

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.False(body["success"].(bool))
}

func (suite *ProductHandlerTestSuite) TestGetCachedProductsUnknownToken() {
	w, body := suite.do("GET", "/v1/products/cached/"+uuid.NewString())

	suite.Equal(http.StatusNotFound, w.Code)
	errBody := body["error"].(map[string]interface{})
	suite.Equal("NOT_FOUND", errBody["code"])
}

func (suite *ProductHandlerTestSuite) TestGetCachedProductsStaleServed() {
	stale := time.Now().UTC().Add(-48 * time.Hour)
	suite.seedProduct("STALE-1", stale)

	suite.stub.fetch = func(offset, limit int) (*wbclient.CardsPage, error) {
		return nil, &wbclient.APIError{Kind: wbclient.ErrorKindAuth, StatusCode: 401, Message: "invalid token or unauthorized"}
	}

	w, body := suite.do("GET", "/v1/products/cached/"+suite.token.ID.String())

	suite.Equal(http.StatusOK, w.Code)
	suite.True(body["success"].(bool))
	suite.Contains(body["warning"], "stale cache")

	data := body["data"].(map[string]interface{})
	suite.Equal("stale_served", data["freshness"])
}

func (suite *ProductHandlerTestSuite) TestSyncProducts() {
	suite.stub.fetch = func(offset, limit int) (*wbclient.CardsPage, error) {
		cards := make([]wbclient.Card, 3)
		for i := range cards {
			code := fmt.Sprintf("NEW-%d", i)
			cards[i] = wbclient.Card{VendorCode: code, Data: models.JSONB{"vendorCode": code}}
		}
		return &wbclient.CardsPage{Cards: cards, Total: 3}, nil
	}

	w, body := suite.do("POST", "/v1/products/sync/"+suite.token.ID.String())

	suite.Equal(http.StatusOK, w.Code)
	suite.True(body["success"].(bool))

	data := body["data"].(map[string]interface{})
	suite.Equal("completed", data["outcome"])
	suite.Equal(float64(3), data["products_upserted"])
}

func (suite *ProductHandlerTestSuite) TestSyncProductsUpstreamFailure() {
	suite.stub.fetch = func(offset, limit int) (*wbclient.CardsPage, error) {
		return nil, &wbclient.APIError{Kind: wbclient.ErrorKindAuth, StatusCode: 401, Message: "invalid token or unauthorized"}
	}

	w, body := suite.do("POST", "/v1/products/sync/"+suite.token.ID.String())

	suite.Equal(http.StatusBadGateway, w.Code)
	suite.False(body["success"].(bool))

	errBody := body["error"].(map[string]interface{})
	suite.Equal("SYNC_FAILED", errBody["code"])
}

func (suite *ProductHandlerTestSuite) TestGetCacheStats() {
	suite.seedProduct("ABC-123", time.Now().UTC())

	w, body := suite.do("GET", "/v1/products/cache/stats")

	suite.Equal(http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	suite.Equal(float64(1), data["total_cached_products"])
	suite.Equal(float64(1), data["tokens_with_cache"])
}

func (suite *ProductHandlerTestSuite) TestClearExpiredCache() {
	suite.seedProduct("EXPIRED-1", time.Now().UTC().Add(-72*time.Hour))

	w, body := suite.do("DELETE", "/v1/products/cache/expired")

	suite.Equal(http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	suite.Equal(float64(1), data["cleared_count"])
	suite.Equal(float64(0), data["purged_count"])
}

func TestProductHandlerSuite(t *testing.T) {
	suite.Run(t, new(ProductHandlerTestSuite))
}
