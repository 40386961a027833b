package platformsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// Per-call timeout. A stalled upstream call must fail the run
// deterministically instead of hanging.
const httpCallTimeout = 30 * time.Second

// sharedHTTPClient is used by every platform client (and by token refresh)
// so tests can intercept one transport.
var sharedHTTPClient = &http.Client{Timeout: httpCallTimeout}

// doJSON executes the request, decodes a 2xx JSON body into dest, and maps
// everything else to a classified UpstreamError. The raw body is returned for
// archiving. No retries here.
func doJSON(ctx context.Context, client *http.Client, platform string, req *http.Request, dest interface{}) ([]byte, error) {
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &UpstreamError{Platform: platform, Class: ClassTimeout, Body: err.Error()}
		}
		return nil, &UpstreamError{Platform: platform, Class: ClassTransient, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Platform:   platform,
			Class:      classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return body, &UpstreamError{Platform: platform, Class: ClassTransient, StatusCode: resp.StatusCode, Body: "invalid json: " + err.Error()}
		}
	}
	return body, nil
}
