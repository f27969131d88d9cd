package routes

import (
	"errors"
	"net/http"
	"time"

	"rag-knowledge-platform/internal/ai"
	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/services"
	"rag-knowledge-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandleChatAsk answers a question over the caller's active source. An
// explicit source_id in the request overrides the active one.
func HandleChatAsk(cfg *config.Config, sources *store.SourceStore, retrieval *services.RetrievalService, gemini *ai.GeminiClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "user_id and question are required", nil)
			return
		}

		sourceID, err := resolveSource(c, sources, req)
		if err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				utils.RespondWithNotFound(c, "No active source for this user")
				return
			}
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		chunks, err := retrieval.Search(c.Request.Context(), sourceID, req.Question, cfg.SearchLimit)
		if err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				utils.RespondWithNotFound(c, "Source not found")
				return
			}
			utils.RespondWithInternalError(c, "Context retrieval failed", nil)
			return
		}

		answer, err := gemini.GenerateAnswer(c.Request.Context(), req.Question, chunks)
		if err != nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "generation_failed",
				"Answer generation is temporarily unavailable", nil)
			return
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			Answer:        answer,
			ContextChunks: len(chunks),
			SourceID:      sourceID.Hex(),
			Timestamp:     time.Now().UTC(),
		})
	}
}

func resolveSource(c *gin.Context, sources *store.SourceStore, req models.ChatRequest) (primitive.ObjectID, error) {
	if req.SourceID != "" {
		id, err := primitive.ObjectIDFromHex(req.SourceID)
		if err != nil {
			return primitive.NilObjectID, errors.New("invalid source id")
		}
		return id, nil
	}

	active, err := sources.GetActive(c.Request.Context(), req.UserID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return active.ID, nil
}
