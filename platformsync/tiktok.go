package platformsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"bitbucket.org/mktfocus/marketing_backend/models"
)

const videoListMaxCount = 20

type tiktokAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogId   string `json:"log_id"`
}

func (e tiktokAPIError) failed() bool {
	return e.Code != "" && e.Code != "ok"
}

type tiktokUserInfoResponse struct {
	Data struct {
		User struct {
			OpenId         string `json:"open_id"`
			UnionId        string `json:"union_id"`
			DisplayName    string `json:"display_name"`
			AvatarUrl      string `json:"avatar_url"`
			BioDescription string `json:"bio_description"`
			IsVerified     bool   `json:"is_verified"`
			FollowerCount  int64  `json:"follower_count"`
			FollowingCount int64  `json:"following_count"`
			LikesCount     int64  `json:"likes_count"`
			VideoCount     int64  `json:"video_count"`
		} `json:"user"`
	} `json:"data"`
	Error tiktokAPIError `json:"error"`
}

type tiktokVideoListResponse struct {
	Data struct {
		Videos  []tiktokVideo `json:"videos"`
		Cursor  int64         `json:"cursor"`
		HasMore bool          `json:"has_more"`
	} `json:"data"`
	Error tiktokAPIError `json:"error"`
}

type tiktokVideo struct {
	Id            string `json:"id"`
	Title         string `json:"title"`
	VideoDesc     string `json:"video_description"`
	CoverImageUrl string `json:"cover_image_url"`
	ShareUrl      string `json:"share_url"`
	EmbedLink     string `json:"embed_link"`
	CreateTime    int64  `json:"create_time"`
	ViewCount     int64  `json:"view_count"`
	LikeCount     int64  `json:"like_count"`
	CommentCount  int64  `json:"comment_count"`
	ShareCount    int64  `json:"share_count"`
}

type tiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenId           string `json:"open_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type VideoClient struct {
	baseURL string
	http    *http.Client
}

func NewVideoClient() *VideoClient {
	baseURL := strings.TrimSpace(os.Getenv("TIKTOK_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://open.tiktokapis.com"
	}
	return &VideoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    sharedHTTPClient,
	}
}

// FetchUserInfo requests the account profile counters and verification flag.
func (c *VideoClient) FetchUserInfo(ctx context.Context, cred VideoCredential) (*tiktokUserInfoResponse, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, httpCallTimeout)
	defer cancel()

	fields := "open_id,union_id,display_name,avatar_url,bio_description,is_verified,follower_count,following_count,likes_count,video_count"
	endpoint := c.baseURL + "/v2/user/info/?fields=" + url.QueryEscape(fields)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	var parsed tiktokUserInfoResponse
	raw, err := doJSON(callCtx, c.http, models.PlatformTikTok, req, &parsed)
	if err != nil {
		return nil, raw, err
	}
	if parsed.Error.failed() {
		return nil, raw, tiktokError(parsed.Error)
	}
	return &parsed, raw, nil
}

// FetchVideoList requests one bounded page of recent videos. No pagination
// beyond the first page.
func (c *VideoClient) FetchVideoList(ctx context.Context, cred VideoCredential) (*tiktokVideoListResponse, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, httpCallTimeout)
	defer cancel()

	fields := "id,title,video_description,cover_image_url,share_url,embed_link,create_time,view_count,like_count,comment_count,share_count"
	endpoint := c.baseURL + "/v2/video/list/?fields=" + url.QueryEscape(fields)

	payload, _ := json.Marshal(map[string]interface{}{"max_count": videoListMaxCount})
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var parsed tiktokVideoListResponse
	raw, err := doJSON(callCtx, c.http, models.PlatformTikTok, req, &parsed)
	if err != nil {
		return nil, raw, err
	}
	if parsed.Error.failed() {
		return nil, raw, tiktokError(parsed.Error)
	}
	return &parsed, raw, nil
}

// RefreshAccessToken exchanges a refresh token for a fresh bearer token.
func (c *VideoClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*tiktokTokenResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, httpCallTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("client_key", os.Getenv("TIKTOK_CLIENT_KEY"))
	form.Set("client_secret", os.Getenv("TIKTOK_CLIENT_SECRET"))
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v2/oauth/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var parsed tiktokTokenResponse
	if _, err := doJSON(callCtx, c.http, models.PlatformTikTok, req, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, &AuthError{
			Platform:  models.PlatformTikTok,
			Reason:    fmt.Sprintf("token refresh rejected: %s (%s)", parsed.Error, parsed.ErrorDescription),
			Permanent: true,
		}
	}
	if parsed.AccessToken == "" {
		return nil, &AuthError{Platform: models.PlatformTikTok, Reason: "token refresh returned empty access token", Permanent: true}
	}
	return &parsed, nil
}

// tiktokError maps in-band API error codes to the shared taxonomy.
func tiktokError(apiErr tiktokAPIError) error {
	code := strings.ToLower(strings.TrimSpace(apiErr.Code))
	cls := ClassTransient
	switch {
	case strings.Contains(code, "access_token") || strings.Contains(code, "auth") || strings.Contains(code, "scope"):
		cls = ClassUnauthorized
	case strings.Contains(code, "rate_limit") || strings.Contains(code, "quota"):
		cls = ClassRateLimited
	case strings.Contains(code, "not_found"):
		cls = ClassNotFound
	}
	return &UpstreamError{
		Platform:   models.PlatformTikTok,
		Class:      cls,
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("%s: %s (log_id=%s)", apiErr.Code, apiErr.Message, apiErr.LogId),
	}
}
