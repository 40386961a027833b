package platformsync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPlaceDetailsSuccess(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(200, `{
			"status": "OK",
			"result": {
				"rating": 4.5,
				"user_ratings_total": 12,
				"reviews": [
					{"author_name": "Reviewer A", "rating": 5, "text": "great", "time": 1000}
				]
			}
		}`))

	client := NewReviewsClient()
	parsed, raw, err := client.FetchPlaceDetails(context.Background(), ReviewsCredential{PlaceId: "place-1", APIKey: "key"})
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.NotEmpty(t, raw)
	assert.Len(t, parsed.Result.Reviews, 1)
	assert.Equal(t, "Reviewer A", parsed.Result.Reviews[0].AuthorName)
}

func TestFetchPlaceDetailsInBandDenied(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
		httpmock.NewStringResponder(200, `{"status": "REQUEST_DENIED", "error_message": "key revoked"}`))

	client := NewReviewsClient()
	_, _, err := client.FetchPlaceDetails(context.Background(), ReviewsCredential{PlaceId: "place-1", APIKey: "key"})
	require.Error(t, err)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, ClassUnauthorized, upErr.Class)
	assert.True(t, upErr.Permanent())
	assert.Contains(t, upErr.Body, "key revoked")
}

func TestFetchPlaceDetailsHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   Classification
	}{
		{http.StatusUnauthorized, ClassUnauthorized},
		{http.StatusForbidden, ClassUnauthorized},
		{http.StatusTooManyRequests, ClassRateLimited},
		{http.StatusNotFound, ClassNotFound},
		{http.StatusInternalServerError, ClassTransient},
	}
	for _, tc := range cases {
		httpmock.ActivateNonDefault(sharedHTTPClient)
		httpmock.RegisterResponder(http.MethodGet, `=~^https://maps\.googleapis\.com/maps/api/place/details/json`,
			httpmock.NewStringResponder(tc.status, `{}`))

		client := NewReviewsClient()
		_, _, err := client.FetchPlaceDetails(context.Background(), ReviewsCredential{PlaceId: "p", APIKey: "k"})
		require.Error(t, err, "status %d", tc.status)

		var upErr *UpstreamError
		require.True(t, errors.As(err, &upErr), "status %d", tc.status)
		assert.Equal(t, tc.want, upErr.Class, "status %d", tc.status)
		assert.Equal(t, tc.status, upErr.StatusCode)
		httpmock.DeactivateAndReset()
	}
}

func TestFetchVideoListInBandError(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, `=~^https://open\.tiktokapis\.com/v2/video/list/`,
		httpmock.NewStringResponder(200, `{"error": {"code": "access_token_invalid", "message": "bad token", "log_id": "x1"}}`))

	client := NewVideoClient()
	_, _, err := client.FetchVideoList(context.Background(), VideoCredential{AccessToken: "tok"})
	require.Error(t, err)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, ClassUnauthorized, upErr.Class)
}

func TestFetchUserInfoSuccess(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, `=~^https://open\.tiktokapis\.com/v2/user/info/`,
		httpmock.NewStringResponder(200, `{
			"data": {"user": {"open_id": "open-1", "display_name": "Shop MM", "follower_count": 99}},
			"error": {"code": "ok", "message": ""}
		}`))

	client := NewVideoClient()
	parsed, _, err := client.FetchUserInfo(context.Background(), VideoCredential{AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "open-1", parsed.Data.User.OpenId)
	assert.Equal(t, int64(99), parsed.Data.User.FollowerCount)
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, `=~^https://open\.tiktokapis\.com/v2/oauth/token/`,
		httpmock.NewStringResponder(200, `{"error": "invalid_grant", "error_description": "refresh token revoked"}`))

	client := NewVideoClient()
	_, err := client.RefreshAccessToken(context.Background(), "refresh-1")
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.True(t, authErr.Permanent)
	assert.True(t, IsPermanentAuthFailure(err))
}

func TestRefreshAccessTokenSuccess(t *testing.T) {
	httpmock.ActivateNonDefault(sharedHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, `=~^https://open\.tiktokapis\.com/v2/oauth/token/`,
		httpmock.NewStringResponder(200, `{"access_token": "new-tok", "refresh_token": "new-refresh", "expires_in": 86400, "open_id": "open-1"}`))

	client := NewVideoClient()
	parsed, err := client.RefreshAccessToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "new-tok", parsed.AccessToken)
	assert.Equal(t, int64(86400), parsed.ExpiresIn)
}
