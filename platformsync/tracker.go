package platformsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// runTotals accumulates per-record outcomes while a run folds over its
// fetched records.
type runTotals struct {
	TotalFetched    int
	NewCount        int
	UpdatedCount    int
	ErrorCount      int
	AggregateRating *decimal.Decimal
}

func (t runTotals) recordsWritten() int {
	return t.NewCount + t.UpdatedCount
}

// startRun persists the audit row before any external call is made, so a
// crash mid-run still leaves evidence that the attempt happened.
func startRun(ctx context.Context, gw Gateway, businessId string, platform string, triggeredBy string, parentRunId *uint, now time.Time) (*models.SyncRun, error) {
	startedAt := now
	run := &models.SyncRun{
		BusinessId:  businessId,
		Platform:    platform,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		ParentRunId: parentRunId,
		StartedAt:   &startedAt,
	}
	if err := gw.CreateSyncRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// finalizeSuccess closes the run with its counters. The guarded update makes
// finalization idempotent: a second finalizer finds no `running` row and
// becomes a no-op.
func finalizeSuccess(ctx context.Context, gw Gateway, run *models.SyncRun, totals runTotals, now time.Time) error {
	updates := map[string]interface{}{
		"status":          models.SyncRunStatusSuccess,
		"total_fetched":   totals.TotalFetched,
		"new_count":       totals.NewCount,
		"updated_count":   totals.UpdatedCount,
		"records_written": totals.recordsWritten(),
		"error_count":     totals.ErrorCount,
		"finished_at":     now,
		"duration_ms":     durationMs(run.StartedAt, now),
	}
	if totals.AggregateRating != nil {
		updates["aggregate_rating"] = totals.AggregateRating.String()
	}
	applied, err := gw.FinalizeSyncRun(ctx, run.ID, updates)
	if err != nil {
		return err
	}
	if !applied {
		logrus.WithFields(logrus.Fields{
			"sync_run_id": run.ID,
			"business_id": run.BusinessId,
			"platform":    run.Platform,
		}).Warn("sync run was already finalized, skipping")
	}
	return nil
}

// finalizeFailure closes the run as failed with the classified message.
// Storage errors here are logged, not propagated: the original failure is the
// one the caller must see.
func finalizeFailure(ctx context.Context, gw Gateway, run *models.SyncRun, totals runTotals, cause error, now time.Time) {
	updates := map[string]interface{}{
		"status":          models.SyncRunStatusFailed,
		"total_fetched":   totals.TotalFetched,
		"new_count":       totals.NewCount,
		"updated_count":   totals.UpdatedCount,
		"records_written": totals.recordsWritten(),
		"error_count":     totals.ErrorCount,
		"error_message":   cause.Error(),
		"finished_at":     now,
		"duration_ms":     durationMs(run.StartedAt, now),
	}
	if _, err := gw.FinalizeSyncRun(ctx, run.ID, updates); err != nil {
		config.LogError(config.GetLogger(), "platformsync", "finalizeFailure", "Unable to finalize sync run", run.ID, err)
	}
}

// recordRunError persists one record-level failure and keeps the run going.
func recordRunError(ctx context.Context, gw Gateway, run *models.SyncRun, skipped SkippedRecord) {
	runErr := &models.SyncRunError{
		SyncRunId:  run.ID,
		BusinessId: run.BusinessId,
		EntityType: skipped.EntityType,
		NaturalKey: skipped.NaturalKey,
		ErrorCode:  errorCodeFor(skipped),
		Message:    skipped.Message,
		Retryable:  skipped.Retryable,
	}
	if err := gw.CreateSyncRunError(ctx, runErr); err != nil {
		config.LogError(config.GetLogger(), "platformsync", "recordRunError", "Unable to persist sync run error", runErr, err)
	}
}

func errorCodeFor(skipped SkippedRecord) string {
	if skipped.Retryable {
		return "write_failed"
	}
	return "normalization_failed"
}

func durationMs(startedAt *time.Time, now time.Time) int64 {
	if startedAt == nil {
		return 0
	}
	return now.Sub(*startedAt).Milliseconds()
}

// classifiedMessage prefixes the failure cause with its taxonomy bucket so
// the audit trail distinguishes auth failures from upstream blips without
// parsing free text.
func classifiedMessage(err error) error {
	var notConfigured *NotConfiguredError
	if errors.As(err, &notConfigured) {
		return err
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return errors.New("auth: " + authErr.Error())
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return errors.New(string(upErr.Class) + ": " + upErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("timeout: run deadline exceeded")
	}
	return err
}
