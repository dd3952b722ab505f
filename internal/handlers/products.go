// internal/handlers/products.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marketdesk/wb-backoffice/internal/models"
	"github.com/marketdesk/wb-backoffice/internal/services"
	"github.com/marketdesk/wb-backoffice/internal/utils"
)

type ProductHandler struct {
	cacheService *services.ProductCacheService
}

func NewProductHandler(cacheService *services.ProductCacheService) *ProductHandler {
	return &ProductHandler{
		cacheService: cacheService,
	}
}

// GET /products/cached/:token_id
func (h *ProductHandler) GetCachedProducts(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid token id", nil)
		return
	}

	params := utils.GetPageParams(c, 100, 1000)
	forceRefresh := utils.GetBoolQuery(c, "force_refresh")

	result, err := h.cacheService.GetCachedProducts(c.Request.Context(), tokenID, params.Limit, params.Offset, forceRefresh)
	if err != nil {
		h.respondCacheError(c, err)
		return
	}

	if result.Warning != "" {
		utils.SuccessResponseWithWarning(c, result, result.Warning)
		return
	}
	utils.SuccessResponse(c, result)
}

// POST /products/sync/:token_id
func (h *ProductHandler) SyncProducts(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid token id", nil)
		return
	}

	pageLimit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.cacheService.SyncNow(c.Request.Context(), tokenID, pageLimit)
	if err != nil {
		h.respondCacheError(c, err)
		return
	}

	if !result.Succeeded() {
		utils.ErrorResponse(c, http.StatusBadGateway, "SYNC_FAILED", result.ErrorMessage, result)
		return
	}

	if len(result.Warnings) > 0 || result.Outcome == models.SyncStatusPartial {
		warning := result.ErrorMessage
		if warning == "" && len(result.Warnings) > 0 {
			warning = result.Warnings[0]
		}
		utils.SuccessResponseWithWarning(c, result, warning)
		return
	}
	utils.SuccessResponse(c, result)
}

// GET /products/cache/stats
func (h *ProductHandler) GetCacheStats(c *gin.Context) {
	var tokenID *uuid.UUID
	if tokenIDStr := c.Query("token_id"); tokenIDStr != "" {
		parsed, err := uuid.Parse(tokenIDStr)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid token id", nil)
			return
		}
		tokenID = &parsed
	}

	stats, err := h.cacheService.CacheStats(c.Request.Context(), tokenID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, stats)
}

// DELETE /products/cache/expired
func (h *ProductHandler) ClearExpiredCache(c *gin.Context) {
	result, err := h.cacheService.ClearExpired(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	if operator, ok := utils.GetOperatorFromContext(c); ok {
		logrus.WithFields(logrus.Fields{
			"operator": operator,
			"cleared":  result.Cleared,
			"purged":   result.Purged,
		}).Info("Expired cache cleared")
	}

	utils.SuccessResponse(c, result)
}

func (h *ProductHandler) respondCacheError(c *gin.Context, err error) {
	var syncErr *services.SyncUnavailableError

	switch {
	case errors.Is(err, services.ErrTokenNotFound):
		utils.NotFoundResponse(c, "Token")
	case errors.Is(err, services.ErrTokenInactive):
		utils.BadRequestResponse(c, "Token is inactive", nil)
	case errors.As(err, &syncErr):
		utils.ErrorResponse(c, http.StatusBadGateway, "SYNC_FAILED", syncErr.Message, gin.H{
			"error_kind": syncErr.Kind,
		})
	default:
		utils.InternalErrorResponse(c, err.Error())
	}
}
