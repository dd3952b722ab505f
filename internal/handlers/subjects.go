// internal/handlers/subjects.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketdesk/wb-backoffice/internal/services"
	"github.com/marketdesk/wb-backoffice/internal/utils"
	"github.com/marketdesk/wb-backoffice/internal/wbclient"
)

type SubjectHandler struct {
	subjectService *services.SubjectCharacteristicsService
}

func NewSubjectHandler(subjectService *services.SubjectCharacteristicsService) *SubjectHandler {
	return &SubjectHandler{
		subjectService: subjectService,
	}
}

// GET /subjects/:subject_id/characteristics
func (h *SubjectHandler) GetCharacteristics(c *gin.Context) {
	subjectID, err := strconv.Atoi(c.Param("subject_id"))
	if err != nil || subjectID < 1 {
		utils.BadRequestResponse(c, "Invalid subject id", nil)
		return
	}

	tokenID, err := uuid.Parse(c.Query("token_id"))
	if err != nil {
		utils.BadRequestResponse(c, "A valid token_id query parameter is required", nil)
		return
	}

	forceRefresh := utils.GetBoolQuery(c, "force_refresh")

	result, err := h.subjectService.GetSubjectCharacteristics(c.Request.Context(), tokenID, subjectID, forceRefresh)
	if err != nil {
		var apiErr *wbclient.APIError
		switch {
		case errors.Is(err, services.ErrTokenNotFound):
			utils.NotFoundResponse(c, "Token")
		case errors.Is(err, services.ErrTokenInactive):
			utils.BadRequestResponse(c, "Token is inactive", nil)
		case errors.As(err, &apiErr):
			utils.ErrorResponse(c, http.StatusBadGateway, "UPSTREAM_FAILED", apiErr.Message, gin.H{
				"error_kind": string(apiErr.Kind),
			})
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.SuccessResponse(c, result)
}

// DELETE /subjects/:subject_id/characteristics
func (h *SubjectHandler) InvalidateCharacteristics(c *gin.Context) {
	subjectID, err := strconv.Atoi(c.Param("subject_id"))
	if err != nil || subjectID < 1 {
		utils.BadRequestResponse(c, "Invalid subject id", nil)
		return
	}

	if err := h.subjectService.Invalidate(c.Request.Context(), subjectID); err != nil {
		if errors.Is(err, services.ErrSubjectNotCached) {
			utils.NotFoundResponse(c, "Subject cache entry")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"invalidated": true, "subject_id": subjectID})
}

// GET /subjects/cache/stats
func (h *SubjectHandler) GetCacheStats(c *gin.Context) {
	stats, err := h.subjectService.Stats(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, stats)
}
