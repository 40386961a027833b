package platformsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultRunDeadlineSeconds = 120

// Engine runs one synchronization attempt end to end: lease, audit row,
// credential resolution, fetch, normalize, fold of per-record upserts,
// finalization and health update. All collaborators are injected so tests
// drive it without a database or network.
type Engine struct {
	gw      Gateway
	reviews *ReviewsClient
	video   *VideoClient
	archive Archiver
	lease   func(ctx context.Context, businessId string, platform string, ttl time.Duration) (func(), error)
	now     func() time.Time
	tracer  trace.Tracer
}

func NewEngine(gw Gateway) *Engine {
	return &Engine{
		gw:      gw,
		reviews: NewReviewsClient(),
		video:   NewVideoClient(),
		archive: NewArchiver(),
		lease:   utils.AcquireSyncLease,
		now:     time.Now,
		tracer:  otel.Tracer("platformsync"),
	}
}

// Sync dispatches to the platform-specific run. parentRunId links a retry to
// the run it re-attempts.
func (e *Engine) Sync(ctx context.Context, platform string, businessId string, triggeredBy string, parentRunId *uint) (*SyncResult, error) {
	switch platform {
	case models.PlatformGoogle:
		return e.syncReviews(ctx, businessId, triggeredBy, parentRunId)
	case models.PlatformTikTok:
		return e.syncVideo(ctx, businessId, triggeredBy, parentRunId)
	default:
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
}

func (e *Engine) SyncReviews(ctx context.Context, businessId string, triggeredBy string) (*SyncResult, error) {
	return e.syncReviews(ctx, businessId, triggeredBy, nil)
}

func (e *Engine) SyncVideo(ctx context.Context, businessId string, triggeredBy string) (*SyncResult, error) {
	return e.syncVideo(ctx, businessId, triggeredBy, nil)
}

func (e *Engine) syncReviews(ctx context.Context, businessId string, triggeredBy string, parentRunId *uint) (*SyncResult, error) {
	ctx, span := e.tracer.Start(ctx, "sync.reviews")
	defer span.End()

	deadline := runDeadline()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Source and configuration checks happen before any audit row exists:
	// "nothing to sync" is not a run.
	source, err := e.gw.GetSource(ctx, businessId, models.PlatformGoogle)
	if err != nil {
		return nil, err
	}

	release, err := e.lease(ctx, businessId, models.PlatformGoogle, deadline)
	if err != nil {
		return nil, err
	}
	defer release()

	cred, err := ResolveReviewsCredential(source)
	if err != nil {
		var notConfigured *NotConfiguredError
		if errors.As(err, &notConfigured) {
			return nil, err
		}
		// A resolvable source with broken global credentials is auditable.
		// The lease is already held, so concurrent triggers cannot each
		// insert their own failed audit row.
		return e.failBeforeFetch(ctx, businessId, models.PlatformGoogle, triggeredBy, parentRunId, err)
	}

	run, err := startRun(ctx, e.gw, businessId, models.PlatformGoogle, triggeredBy, parentRunId, e.now())
	if err != nil {
		return nil, err
	}
	e.logRunStart(run)

	payload, raw, err := e.reviews.FetchPlaceDetails(ctx, cred)
	e.archive.Archive(ctx, businessId, models.PlatformGoogle, run.ID, raw)
	if err != nil {
		return e.failRun(ctx, run, runTotals{}, err)
	}

	reviews, skipped := NormalizeGoogleReviews(businessId, payload)
	totals := runTotals{
		TotalFetched:    len(reviews) + len(skipped),
		AggregateRating: AggregateRating(payload),
	}

	var result SyncResult
	for _, bad := range skipped {
		totals.ErrorCount++
		recordRunError(ctx, e.gw, run, bad)
		result.Skipped = append(result.Skipped, bad)
	}

	writeFailures := 0
	for _, rec := range reviews {
		outcome, err := upsertReview(ctx, e.gw, rec)
		if err != nil {
			writeFailures++
			totals.ErrorCount++
			bad := SkippedRecord{
				EntityType: "review",
				NaturalKey: rec.ReviewId,
				Message:    err.Error(),
				Retryable:  true,
			}
			recordRunError(ctx, e.gw, run, bad)
			result.Skipped = append(result.Skipped, bad)
			continue
		}
		if outcome == outcomeCreated {
			totals.NewCount++
		} else {
			totals.UpdatedCount++
		}
	}

	// The run fails outright only when nothing at all could be written.
	if len(reviews) > 0 && writeFailures == len(reviews) {
		return e.failRun(ctx, run, totals, fmt.Errorf("all %d review writes failed", writeFailures))
	}

	if err := finalizeSuccess(ctx, e.gw, run, totals, e.now()); err != nil {
		return nil, err
	}
	if err := updateHealthOnSuccess(ctx, e.gw, businessId, models.PlatformGoogle, nil, e.now()); err != nil {
		return nil, err
	}

	result.Success = true
	result.RunId = run.ID
	result.NewCount = totals.NewCount
	result.UpdatedCount = totals.UpdatedCount
	result.TotalFetched = totals.TotalFetched
	result.RecordsWritten = totals.recordsWritten()
	result.AggregateRating = totals.AggregateRating
	e.logRunDone(run, totals)
	return &result, nil
}

func (e *Engine) syncVideo(ctx context.Context, businessId string, triggeredBy string, parentRunId *uint) (*SyncResult, error) {
	ctx, span := e.tracer.Start(ctx, "sync.video")
	defer span.End()

	deadline := runDeadline()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	source, err := e.gw.GetSource(ctx, businessId, models.PlatformTikTok)
	if err != nil {
		return nil, err
	}
	if source == nil || strings.TrimSpace(source.Handle) == "" {
		return nil, &NotConfiguredError{
			Platform: models.PlatformTikTok,
			Reason:   "no account handle configured for this business",
		}
	}
	business, err := e.gw.GetBusiness(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, &NotConfiguredError{Platform: models.PlatformTikTok, Reason: "business not found"}
	}

	release, err := e.lease(ctx, businessId, models.PlatformTikTok, deadline)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := startRun(ctx, e.gw, businessId, models.PlatformTikTok, triggeredBy, parentRunId, e.now())
	if err != nil {
		return nil, err
	}
	e.logRunStart(run)

	cred, err := ResolveVideoCredential(ctx, e.gw, e.video, business.AgencyId)
	if err != nil {
		return e.failRun(ctx, run, runTotals{}, err)
	}

	userInfo, _, err := e.video.FetchUserInfo(ctx, cred)
	if err != nil {
		return e.failRun(ctx, run, runTotals{}, err)
	}
	videoList, raw, err := e.video.FetchVideoList(ctx, cred)
	e.archive.Archive(ctx, businessId, models.PlatformTikTok, run.ID, raw)
	if err != nil {
		return e.failRun(ctx, run, runTotals{}, err)
	}

	snapshot := NormalizeAccountSnapshot(userInfo)
	snapshot.Handle = source.Handle
	posts, metrics, skipped := NormalizeVideos(businessId, videoList, e.now())
	totals := runTotals{TotalFetched: len(posts) + len(skipped)}

	var result SyncResult
	for _, bad := range skipped {
		totals.ErrorCount++
		recordRunError(ctx, e.gw, run, bad)
		result.Skipped = append(result.Skipped, bad)
	}

	writeFailures := 0
	metricsByPost := make(map[string]CanonicalMetric, len(metrics))
	for _, m := range metrics {
		metricsByPost[m.PlatformPostId] = m
	}
	for _, rec := range posts {
		outcome, err := upsertPost(ctx, e.gw, rec)
		if err != nil {
			writeFailures++
			totals.ErrorCount++
			bad := SkippedRecord{
				EntityType: "post",
				NaturalKey: rec.PlatformPostId,
				Message:    err.Error(),
				Retryable:  true,
			}
			recordRunError(ctx, e.gw, run, bad)
			result.Skipped = append(result.Skipped, bad)
			continue
		}
		if outcome == outcomeCreated {
			totals.NewCount++
		} else {
			totals.UpdatedCount++
		}

		// Metric rows ride along with their post; a post that failed to
		// write gets no orphaned metric.
		if metric, ok := metricsByPost[rec.PlatformPostId]; ok {
			if _, err := upsertMetric(ctx, e.gw, metric); err != nil {
				totals.ErrorCount++
				bad := SkippedRecord{
					EntityType: "post_metric",
					NaturalKey: metric.PlatformPostId + "@" + metric.MetricDate,
					Message:    err.Error(),
					Retryable:  true,
				}
				recordRunError(ctx, e.gw, run, bad)
				result.Skipped = append(result.Skipped, bad)
			}
		}
	}

	if len(posts) > 0 && writeFailures == len(posts) {
		return e.failRun(ctx, run, totals, fmt.Errorf("all %d post writes failed", writeFailures))
	}

	if err := finalizeSuccess(ctx, e.gw, run, totals, e.now()); err != nil {
		return nil, err
	}
	if err := updateHealthOnSuccess(ctx, e.gw, businessId, models.PlatformTikTok, &snapshot, e.now()); err != nil {
		return nil, err
	}

	result.Success = true
	result.RunId = run.ID
	result.NewCount = totals.NewCount
	result.UpdatedCount = totals.UpdatedCount
	result.TotalFetched = totals.TotalFetched
	result.RecordsWritten = totals.recordsWritten()
	e.logRunDone(run, totals)
	return &result, nil
}

// failBeforeFetch creates and immediately fails a run for auditable failures
// that happen before any upstream call, then applies the health policy.
func (e *Engine) failBeforeFetch(ctx context.Context, businessId string, platform string, triggeredBy string, parentRunId *uint, cause error) (*SyncResult, error) {
	run, err := startRun(ctx, e.gw, businessId, platform, triggeredBy, parentRunId, e.now())
	if err != nil {
		return nil, err
	}
	return e.failRun(ctx, run, runTotals{}, cause)
}

func (e *Engine) failRun(ctx context.Context, run *models.SyncRun, totals runTotals, cause error) (*SyncResult, error) {
	classified := classifiedMessage(cause)
	finalizeFailure(ctx, e.gw, run, totals, classified, e.now())
	updateHealthOnFailure(ctx, e.gw, run.BusinessId, run.Platform, cause)
	logrus.WithFields(logrus.Fields{
		"sync_run_id": run.ID,
		"business_id": run.BusinessId,
		"platform":    run.Platform,
		"error":       classified.Error(),
	}).Warn("sync run failed")
	return nil, cause
}

func (e *Engine) logRunStart(run *models.SyncRun) {
	logrus.WithFields(logrus.Fields{
		"sync_run_id":  run.ID,
		"business_id":  run.BusinessId,
		"platform":     run.Platform,
		"triggered_by": run.TriggeredBy,
	}).Info("sync run started")
}

func (e *Engine) logRunDone(run *models.SyncRun, totals runTotals) {
	logrus.WithFields(logrus.Fields{
		"sync_run_id":     run.ID,
		"business_id":     run.BusinessId,
		"platform":        run.Platform,
		"total_fetched":   totals.TotalFetched,
		"new_count":       totals.NewCount,
		"updated_count":   totals.UpdatedCount,
		"error_count":     totals.ErrorCount,
		"records_written": totals.recordsWritten(),
	}).Info("sync run finished")
}

func runDeadline() time.Duration {
	if v := os.Getenv("SYNC_RUN_DEADLINE_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRunDeadlineSeconds * time.Second
}
