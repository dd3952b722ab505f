// internal/handlers/tokens.go
package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketdesk/wb-backoffice/internal/services"
	"github.com/marketdesk/wb-backoffice/internal/utils"
)

type TokenHandler struct {
	tokenService *services.TokenService
}

func NewTokenHandler(tokenService *services.TokenService) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
	}
}

// POST /tokens
func (h *TokenHandler) CreateToken(c *gin.Context) {
	var req services.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	token, err := h.tokenService.CreateToken(c.Request.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "validation failed") {
			utils.ValidationErrorResponse(c, utils.GetValidationErrors(errors.Unwrap(err)))
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.CreatedResponse(c, token)
}

// GET /tokens
func (h *TokenHandler) ListTokens(c *gin.Context) {
	tokens, err := h.tokenService.ListTokens(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"data":  tokens,
		"count": len(tokens),
	})
}

// GET /tokens/:id
func (h *TokenHandler) GetToken(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid token id", nil)
		return
	}

	token, err := h.tokenService.GetToken(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrTokenNotFound) {
			utils.NotFoundResponse(c, "Token")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, token)
}

// PUT /tokens/:id
func (h *TokenHandler) UpdateToken(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid token id", nil)
		return
	}

	var req services.UpdateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	token, err := h.tokenService.UpdateToken(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, services.ErrTokenNotFound) {
			utils.NotFoundResponse(c, "Token")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, token)
}

// DELETE /tokens/:id
func (h *TokenHandler) DeleteToken(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid token id", nil)
		return
	}

	if err := h.tokenService.DeleteToken(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrTokenNotFound) {
			utils.NotFoundResponse(c, "Token")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"deleted": true})
}

// POST /tokens/:id/validate
func (h *TokenHandler) ValidateToken(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid token id", nil)
		return
	}

	token, err := h.tokenService.ValidateToken(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrTokenNotFound) {
			utils.NotFoundResponse(c, "Token")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, token)
}
