package feedsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type feedClient struct {
	http *http.Client
}

func newFeedClient() *feedClient {
	return &feedClient{
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// fetch downloads the raw feed document. Transport and status failures are
// fatal for the run; the caller does not retry within the run.
func (c *feedClient) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, errors.New("feed url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed fetch error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
