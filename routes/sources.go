package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/queue"
	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandleArchiveUpload accepts a zip archive, registers a pending source,
// and hands ingestion to the worker queue. The response returns before any
// extraction happens.
func HandleArchiveUpload(cfg *config.Config, sources *store.SourceStore, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxArchiveSize); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
				"Archive size exceeds maximum limit", gin.H{"max_size": cfg.MaxArchiveSize})
			return
		}

		file, header, err := c.Request.FormFile("archive")
		if err != nil {
			utils.RespondWithBadRequest(c, "No archive file provided", nil)
			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type",
				"Only zip archives are allowed", nil)
			return
		}
		if header.Size > cfg.MaxArchiveSize {
			utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
				"Archive size exceeds maximum limit", gin.H{"max_size": cfg.MaxArchiveSize})
			return
		}

		// Zip local file header magic, checked before touching disk.
		magic := make([]byte, 4)
		if _, err := io.ReadFull(file, magic); err != nil {
			utils.RespondWithBadRequest(c, "Cannot read archive header", nil)
			return
		}
		if string(magic[:2]) != "PK" {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_archive",
				"File does not appear to be a valid zip archive", nil)
			return
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			utils.RespondWithInternalError(c, "Failed to reset file for saving", nil)
			return
		}

		name := c.PostForm("name")
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}

		if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to create upload directory", nil)
			return
		}

		archivePath := filepath.Join(cfg.TempDir, fmt.Sprintf("%s.zip", uuid.NewString()))
		dst, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to open destination", nil)
			return
		}
		defer dst.Close()
		if _, err := io.Copy(dst, io.LimitReader(file, cfg.MaxArchiveSize)); err != nil {
			os.Remove(archivePath)
			utils.RespondWithInternalError(c, "Failed to save archive", nil)
			return
		}

		ctx := context.Background()
		source := &models.Source{
			Name:       name,
			OriginType: models.OriginArchive,
			UserID:     c.PostForm("user_id"),
		}
		if err := sources.Create(ctx, source); err != nil {
			os.Remove(archivePath)
			utils.RespondWithInternalError(c, "Failed to create source record", nil)
			return
		}

		task, err := queue.NewSourceIngestTask(source.ID.Hex(), archivePath)
		if err != nil {
			os.Remove(archivePath)
			utils.RespondWithInternalError(c, "Failed to create ingestion task", nil)
			return
		}

		info, err := queueClient.Enqueue(task)
		if err != nil {
			os.Remove(archivePath)
			utils.RespondWithInternalError(c, "Failed to enqueue ingestion task", nil)
			return
		}

		c.JSON(http.StatusAccepted, models.UploadResponse{
			SourceID: source.ID.Hex(),
			TaskID:   info.ID,
			Status:   models.IndexStatusPending,
			Message:  "Archive accepted for ingestion",
		})
	}
}

// ListSources returns all sources, newest first. Pass ?status=completed to
// see only queryable sources.
func ListSources(sources *store.SourceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		switch status {
		case "", models.IndexStatusPending, models.IndexStatusCompleted, models.IndexStatusFailed:
		default:
			utils.RespondWithBadRequest(c, "Unknown status filter", gin.H{"status": status})
			return
		}

		list, err := sources.List(c.Request.Context(), status)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list sources", nil)
			return
		}
		if list == nil {
			list = []models.Source{}
		}

		c.JSON(http.StatusOK, gin.H{
			"sources": list,
			"count":   len(list),
		})
	}
}

// GetSourceStatus returns one source including its indexing state.
func GetSourceStatus(sources *store.SourceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return
		}

		source, err := sources.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				utils.RespondWithNotFound(c, "Source not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load source", nil)
			return
		}

		c.JSON(http.StatusOK, source)
	}
}

// ActivateSource marks a source as the caller's default for chat questions.
func ActivateSource(sources *store.SourceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return
		}

		var body struct {
			UserID string `json:"user_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			utils.RespondWithBadRequest(c, "user_id is required", nil)
			return
		}

		if err := sources.SetActive(c.Request.Context(), body.UserID, id); err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				utils.RespondWithNotFound(c, "Source not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to activate source", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"source_id": id.Hex(),
			"user_id":   body.UserID,
			"active":    true,
		})
	}
}
