package platformsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"

	"bitbucket.org/mktfocus/marketing_backend/models"
)

// googlePlaceDetails mirrors the Places "place details" response, limited to
// the fields the sync requests.
type googlePlaceDetails struct {
	Status string `json:"status"`
	Result struct {
		Name             string         `json:"name"`
		Rating           json.Number    `json:"rating"`
		UserRatingsTotal int            `json:"user_ratings_total"`
		Reviews          []googleReview `json:"reviews"`
	} `json:"result"`
	ErrorMessage string `json:"error_message"`
}

type googleReview struct {
	AuthorName      string `json:"author_name"`
	ProfilePhotoUrl string `json:"profile_photo_url"`
	Rating          int    `json:"rating"`
	Text            string `json:"text"`
	Time            int64  `json:"time"`
}

type ReviewsClient struct {
	baseURL string
	http    *http.Client
}

func NewReviewsClient() *ReviewsClient {
	baseURL := strings.TrimSpace(os.Getenv("GOOGLE_PLACES_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com"
	}
	return &ReviewsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    sharedHTTPClient,
	}
}

// FetchPlaceDetails issues the single place-details call: reviews (the
// platform caps these at five), aggregate rating and rating count.
func (c *ReviewsClient) FetchPlaceDetails(ctx context.Context, cred ReviewsCredential) (*googlePlaceDetails, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, httpCallTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("place_id", cred.PlaceId)
	params.Set("key", cred.APIKey)
	params.Set("fields", "reviews,rating,user_ratings_total")

	endpoint := c.baseURL + "/maps/api/place/details/json?" + params.Encode()
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")

	var parsed googlePlaceDetails
	raw, err := doJSON(callCtx, c.http, models.PlatformGoogle, req, &parsed)
	if err != nil {
		return nil, raw, err
	}

	// Places reports failures in-band with HTTP 200.
	if cls, ok := classifyPlacesStatus(parsed.Status); ok {
		return nil, raw, &UpstreamError{
			Platform:   models.PlatformGoogle,
			Class:      cls,
			StatusCode: http.StatusOK,
			Body:       placesErrorBody(parsed),
		}
	}
	return &parsed, raw, nil
}

func classifyPlacesStatus(status string) (Classification, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "OK", "ZERO_RESULTS":
		return "", false
	case "REQUEST_DENIED":
		return ClassUnauthorized, true
	case "NOT_FOUND", "INVALID_REQUEST":
		return ClassNotFound, true
	case "OVER_QUERY_LIMIT", "RESOURCE_EXHAUSTED":
		return ClassRateLimited, true
	default:
		return ClassTransient, true
	}
}

func placesErrorBody(parsed googlePlaceDetails) string {
	if parsed.ErrorMessage != "" {
		return parsed.Status + ": " + parsed.ErrorMessage
	}
	return parsed.Status
}
