package runs

import (
	"fmt"
	"time"

	"hlsworker/failures"
	"hlsworker/logger"
	"hlsworker/pipeline"
	"hlsworker/success"
)

// StoreRecorder writes outcomes to the failures and success stores. Records
// are keyed by video id so the stores hold the latest result per video.
type StoreRecorder struct{}

func (StoreRecorder) RecordSuccess(out pipeline.Outcome) error {
	err := success.StoreSuccess(success.SuccessRecord{
		VideoID:         out.VideoID,
		OriginalVideoID: out.OriginalVideoID,
		RunID:           out.RunID,
		Bucket:          out.Bucket,
		Object:          out.Object,
		MasterURL:       out.MasterURL,
		Variants:        out.Variants,
		Duration:        out.FinishedAt.Sub(out.StartedAt),
		Timestamp:       out.FinishedAt,
	})
	if err != nil {
		return err
	}
	// a later successful run resolves an earlier failure
	return failures.DeleteFailure(out.VideoID)
}

func (StoreRecorder) RecordFailure(out pipeline.Outcome) error {
	key := out.VideoID
	if key == "" {
		key = out.RunID
	}
	return failures.StoreFailure(failures.FailureRecord{
		Key:       key,
		RunID:     out.RunID,
		VideoID:   out.VideoID,
		Bucket:    out.Bucket,
		Object:    out.Object,
		Stage:     string(out.FailedStage),
		Reason:    string(out.Reason),
		Error:     out.Error,
		Published: out.Published,
		Timestamp: out.FinishedAt,
	})
}

// CleanupRecords drops success and failure records older than maxAge.
func CleanupRecords(maxAge time.Duration) error {
	removed, err := success.CleanupOldRecords(maxAge)
	if err != nil {
		return fmt.Errorf("failed to cleanup old success records: %w", err)
	}
	logger.Debugf("removed %d success records older than %v", removed, maxAge)

	removed, err = failures.CleanupOldRecords(maxAge)
	if err != nil {
		return fmt.Errorf("failed to cleanup old failure records: %w", err)
	}
	logger.Debugf("removed %d failure records older than %v", removed, maxAge)
	return nil
}
