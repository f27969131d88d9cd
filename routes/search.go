package routes

import (
	"errors"
	"net/http"
	"time"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/services"
	"rag-knowledge-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandleSearch runs a retrieval query against one source and returns the
// selected chunk texts in relevance order.
func HandleSearch(cfg *config.Config, retrieval *services.RetrievalService, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "source_id and query are required", nil)
			return
		}

		sourceID, err := primitive.ObjectIDFromHex(req.SourceID)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return
		}

		limit := req.Limit
		if limit <= 0 {
			limit = cfg.SearchLimit
		}
		if limit > 50 {
			limit = 50
		}

		start := time.Now()
		results, err := retrieval.Search(c.Request.Context(), sourceID, req.Query, limit)
		if err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				utils.RespondWithNotFound(c, "Source not found")
				return
			}
			utils.RespondWithInternalError(c, "Search failed", nil)
			return
		}
		took := time.Since(start)

		if metrics != nil {
			metrics.RecordSearch(took.Seconds(), len(results))
		}

		c.JSON(http.StatusOK, models.SearchResponse{
			Results: results,
			Count:   len(results),
			Took:    took.Milliseconds(),
			At:      time.Now().UTC(),
		})
	}
}
