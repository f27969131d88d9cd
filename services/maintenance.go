package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/store"

	"github.com/go-co-op/gocron"
)

// MaintenanceService runs periodic housekeeping: sources stuck in pending
// after a worker crash are marked failed so clients stop polling them, and
// orphaned upload artifacts are swept from the temp directory.
type MaintenanceService struct {
	sources     *store.SourceStore
	scheduler   *gocron.Scheduler
	tempDir     string
	stuckAfter  time.Duration
	sweepMaxAge time.Duration
}

func NewMaintenanceService(sources *store.SourceStore, tempDir string, stuckAfter time.Duration) *MaintenanceService {
	return &MaintenanceService{
		sources:     sources,
		scheduler:   gocron.NewScheduler(time.UTC),
		tempDir:     tempDir,
		stuckAfter:  stuckAfter,
		sweepMaxAge: 24 * time.Hour,
	}
}

func (m *MaintenanceService) Start() {
	m.scheduler.Every(10).Minutes().Do(m.failStuckSources)
	m.scheduler.Every(1).Hour().Do(m.sweepTempDir)
	m.scheduler.StartAsync()
	logger.Info("Maintenance scheduler started",
		"stuck_after", m.stuckAfter.String(), "temp_dir", m.tempDir)
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

func (m *MaintenanceService) failStuckSources() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stuck, err := m.sources.FindStuckPending(ctx, m.stuckAfter)
	if err != nil {
		logger.Error("Failed to scan for stuck sources", "error", err)
		return
	}

	for _, src := range stuck {
		if err := m.sources.MarkFailed(ctx, src.ID, "ingestion timed out"); err != nil {
			logger.Error("Failed to fail stuck source", "source_id", src.ID.Hex(), "error", err)
			continue
		}
		logger.Warn("Marked stuck source as failed",
			"source_id", src.ID.Hex(), "pending_since", src.UpdatedAt)
	}
}

// sweepTempDir removes upload and extraction leftovers older than a day.
// Live ingestions are far younger than that, so the sweep cannot race a
// running worker. Only artifacts this service creates are touched: the temp
// dir may be shared, so anything that is not an "ingest-" extraction dir or
// an uploaded ".zip" is left alone.
func (m *MaintenanceService) sweepTempDir() {
	entries, err := os.ReadDir(m.tempDir)
	if err != nil {
		logger.Error("Failed to read temp dir", "temp_dir", m.tempDir, "error", err)
		return
	}

	cutoff := time.Now().Add(-m.sweepMaxAge)
	removed := 0
	for _, entry := range entries {
		if !isIngestArtifact(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("Failed to remove temp artifact", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("Swept orphaned temp artifacts", "removed", removed)
	}
}

func isIngestArtifact(entry os.DirEntry) bool {
	if entry.IsDir() {
		return strings.HasPrefix(entry.Name(), "ingest-")
	}
	return strings.HasSuffix(entry.Name(), ".zip")
}
