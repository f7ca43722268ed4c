package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stumpdev/stump-go/internal/scanner"
)

// ScanPayload identifies the library a scan task targets.
type ScanPayload struct {
	LibraryPath string `json:"library_path"`
}

// ScanHandler runs a full Reconciler.Scan for one library as a
// background job. Progress events come from the Reconciler itself,
// one per walked file; the handler neither throttles nor re-publishes
// them.
type ScanHandler struct {
	reconciler *scanner.Reconciler
	strategy   scanner.Strategy
	log        *logrus.Entry
}

// NewScanHandler builds a handler that runs every scan with strategy.
func NewScanHandler(reconciler *scanner.Reconciler, strategy scanner.Strategy) *ScanHandler {
	return &ScanHandler{reconciler: reconciler, strategy: strategy, log: logrus.WithField("component", "jobs.scan")}
}

func (h *ScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal scan payload: %w", err)
	}

	runnerID := uuid.NewString()
	h.log.WithFields(logrus.Fields{"library_path": p.LibraryPath, "runner_id": runnerID}).Info("scan job starting")

	result, err := h.reconciler.Scan(ctx, p.LibraryPath, runnerID, h.strategy)
	if err != nil {
		if scanner.IsFatal(err) {
			return fmt.Errorf("scan: %w", err)
		}
		h.log.WithError(err).Warn("scan finished with a non-fatal error")
		return nil
	}

	h.log.WithFields(logrus.Fields{
		"library_id":     result.LibraryID,
		"series_created": result.SeriesCreated,
		"media_created":  result.MediaCreated,
		"total_files":    result.TotalFiles,
	}).Info("scan job completed")
	return nil
}

// EnqueueScan submits a deduplicated scan task for libraryPath, keyed
// so a repeat request while a scan is in flight is a no-op.
func EnqueueScan(q *Queue, libraryPath string) (string, error) {
	return q.EnqueueUnique(TaskScanLibrary, ScanPayload{LibraryPath: libraryPath}, "scan:"+libraryPath,
		asynq.Queue("scan"), asynq.Timeout(10*time.Minute))
}
