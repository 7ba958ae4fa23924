package gallery

import (
	"context"
	"fmt"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/metrics"
)

// sweepBatchSize bounds the store calls made by one sweep.
const sweepBatchSize = 100

func (s *Service) recordOrphan(ctx context.Context, p, reason string, cause error) {
	orphan := models.OrphanedObject{Path: p}
	err := s.db.WithContext(ctx).
		Where(models.OrphanedObject{Path: p}).
		Assign(models.OrphanedObject{Reason: reason, LastError: truncate(cause.Error(), 1000)}).
		FirstOrCreate(&orphan).Error
	if err != nil {
		logger.Error("failed to record orphaned object", "path", p, "error", err)
		return
	}
	metrics.RecordOrphan("recorded")
}

// SweepResult summarizes one orphan sweep.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Cleaned   int `json:"cleaned"`
	Failed    int `json:"failed"`
}

// SweepOrphans retries the deletion of recorded orphaned objects, oldest
// first. Rows are removed once their object is gone and kept with a bumped
// attempt count otherwise. Rows that reached the attempt limit are left for
// manual inspection.
func (s *Service) SweepOrphans(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	maxAttempts := s.cfg.OrphanMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	var orphans []models.OrphanedObject
	err := s.db.WithContext(ctx).
		Where("attempts < ?", maxAttempts).
		Order("updated_at ASC").
		Limit(sweepBatchSize).
		Find(&orphans).Error
	if err != nil {
		return result, fmt.Errorf("failed to load orphaned objects: %w", err)
	}

	for i := range orphans {
		if ctx.Err() != nil {
			break
		}
		o := &orphans[i]
		result.Attempted++

		if err := s.store.Delete(ctx, o.Path, "Delete orphaned object: "+o.Path); err != nil {
			result.Failed++
			o.Attempts++
			o.LastError = truncate(err.Error(), 1000)
			if err := s.db.WithContext(ctx).Save(o).Error; err != nil {
				logger.Error("failed to update orphaned object", "path", o.Path, "error", err)
			}
			continue
		}

		if err := s.db.WithContext(ctx).Delete(o).Error; err != nil {
			logger.Error("failed to remove orphaned object row", "path", o.Path, "error", err)
			continue
		}
		result.Cleaned++
		metrics.RecordOrphan("cleaned")
	}

	if result.Attempted > 0 {
		logger.Info("orphan sweep finished",
			"attempted", result.Attempted,
			"cleaned", result.Cleaned,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// PendingOrphans counts orphaned objects still awaiting deletion.
func (s *Service) PendingOrphans(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.OrphanedObject{}).Count(&count).Error
	return count, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
