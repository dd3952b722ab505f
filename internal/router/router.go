// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/handlers"
	"github.com/marketdesk/wb-backoffice/internal/middleware"
	"github.com/marketdesk/wb-backoffice/internal/services"
	"github.com/marketdesk/wb-backoffice/internal/utils"
	"github.com/marketdesk/wb-backoffice/internal/wbclient"
)

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	// Initialize services
	cipher, err := utils.NewTokenCipher(cfg.JWT.SecretKey)
	if err != nil {
		return nil, err
	}

	catalogClient := wbclient.NewHTTPClient(cfg.Wildberries)
	tokenService := services.NewTokenService(db, catalogClient, cipher)
	cacheStore := services.NewCacheStore(db)
	syncEngine := services.NewSyncEngine(db, cacheStore, tokenService, catalogClient, cfg.Cache)
	cacheService := services.NewProductCacheService(db, cacheStore, syncEngine, cfg.Cache)
	subjectService := services.NewSubjectCharacteristicsService(db, tokenService, cfg.Cache)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	tokenHandler := handlers.NewTokenHandler(tokenService)
	productHandler := handlers.NewProductHandler(cacheService)
	subjectHandler := handlers.NewSubjectHandler(subjectService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		tokens := v1.Group("/tokens")
		tokens.Use(middleware.AuthRequired())
		{
			tokens.GET("", tokenHandler.ListTokens)
			tokens.POST("", tokenHandler.CreateToken)
			tokens.GET("/:id", tokenHandler.GetToken)
			tokens.PUT("/:id", tokenHandler.UpdateToken)
			tokens.DELETE("/:id", tokenHandler.DeleteToken)
			tokens.POST("/:id/validate", tokenHandler.ValidateToken)
		}

		products := v1.Group("/products")
		products.Use(middleware.AuthRequired())
		{
			products.GET("/cached/:token_id", productHandler.GetCachedProducts)
			products.POST("/sync/:token_id", middleware.SyncRateLimit(), productHandler.SyncProducts)
			products.GET("/cache/stats", productHandler.GetCacheStats)
			products.DELETE("/cache/expired", productHandler.ClearExpiredCache)
		}

		subjects := v1.Group("/subjects")
		subjects.Use(middleware.AuthRequired())
		{
			subjects.GET("/cache/stats", subjectHandler.GetCacheStats)
			subjects.GET("/:subject_id/characteristics", subjectHandler.GetCharacteristics)
			subjects.DELETE("/:subject_id/characteristics", subjectHandler.InvalidateCharacteristics)
		}
	}

	return r, nil
}
