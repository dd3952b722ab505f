// internal/utils/pagination.go
package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// PageParams carries limit/offset pagination, matching the upstream API and
// the cached-products endpoints.
type PageParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func GetPageParams(c *gin.Context, defaultLimit, maxLimit int) PageParams {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	return PageParams{
		Limit:  limit,
		Offset: offset,
	}
}

func GetBoolQuery(c *gin.Context, key string) bool {
	value, _ := strconv.ParseBool(c.Query(key))
	return value
}
