package platformsync

import (
	"context"
	"fmt"
)

type upsertOutcome int

const (
	outcomeCreated upsertOutcome = iota
	outcomeUpdated
)

// upsertReview creates the review on first observation of its natural key.
// On a match only platform-sourced fields are overwritten; the locally added
// enrichment columns are never part of the update map, so a raw re-sync can
// never erase previously generated annotations.
func upsertReview(ctx context.Context, gw Gateway, rec CanonicalReview) (upsertOutcome, error) {
	existing, err := gw.FindReview(ctx, rec.BusinessId, rec.Platform, rec.ReviewId)
	if err != nil {
		return outcomeCreated, err
	}

	if existing == nil {
		review := rec.toModel()
		err := gw.CreateReview(ctx, review)
		if err == nil {
			return outcomeCreated, nil
		}
		if !isDuplicateKey(err) {
			return outcomeCreated, err
		}
		// Lost a create race; fall through to update.
		existing, err = gw.FindReview(ctx, rec.BusinessId, rec.Platform, rec.ReviewId)
		if err != nil {
			return outcomeCreated, err
		}
		if existing == nil {
			return outcomeCreated, fmt.Errorf("review %s not found after duplicate-key create", rec.ReviewId)
		}
	}

	err = gw.UpdateReview(ctx, existing.ID, map[string]interface{}{
		"rating":              rec.Rating,
		"text":                rec.Text,
		"reviewer_name":       rec.ReviewerName,
		"reviewer_avatar_url": rec.ReviewerAvatarUrl,
		"posted_at":           rec.PostedAt,
	})
	return outcomeUpdated, err
}

// upsertPost keeps post identity immutable and refreshes descriptive fields.
func upsertPost(ctx context.Context, gw Gateway, rec CanonicalPost) (upsertOutcome, error) {
	existing, err := gw.FindPost(ctx, rec.BusinessId, rec.PlatformPostId)
	if err != nil {
		return outcomeCreated, err
	}

	if existing == nil {
		post := rec.toModel()
		err := gw.CreatePost(ctx, post)
		if err == nil {
			return outcomeCreated, nil
		}
		if !isDuplicateKey(err) {
			return outcomeCreated, err
		}
		existing, err = gw.FindPost(ctx, rec.BusinessId, rec.PlatformPostId)
		if err != nil {
			return outcomeCreated, err
		}
		if existing == nil {
			return outcomeCreated, fmt.Errorf("post %s not found after duplicate-key create", rec.PlatformPostId)
		}
	}

	err = gw.UpdatePost(ctx, existing.ID, map[string]interface{}{
		"caption":   rec.Caption,
		"media_url": rec.MediaUrl,
		"permalink": rec.Permalink,
		"posted_at": rec.PostedAt,
	})
	return outcomeUpdated, err
}

// upsertMetric keeps one row per (post, calendar day): same-day re-sync
// replaces the values, a new day appends a new row.
func upsertMetric(ctx context.Context, gw Gateway, rec CanonicalMetric) (upsertOutcome, error) {
	existing, err := gw.FindMetric(ctx, rec.BusinessId, rec.PlatformPostId, rec.MetricDate)
	if err != nil {
		return outcomeCreated, err
	}

	if existing == nil {
		metric := rec.toModel()
		err := gw.CreateMetric(ctx, metric)
		if err == nil {
			return outcomeCreated, nil
		}
		if !isDuplicateKey(err) {
			return outcomeCreated, err
		}
		existing, err = gw.FindMetric(ctx, rec.BusinessId, rec.PlatformPostId, rec.MetricDate)
		if err != nil {
			return outcomeCreated, err
		}
		if existing == nil {
			return outcomeCreated, fmt.Errorf("metric %s/%s not found after duplicate-key create", rec.PlatformPostId, rec.MetricDate)
		}
	}

	err = gw.UpdateMetric(ctx, existing.ID, map[string]interface{}{
		"views":    rec.Views,
		"likes":    rec.Likes,
		"comments": rec.Comments,
		"shares":   rec.Shares,
	})
	return outcomeUpdated, err
}
