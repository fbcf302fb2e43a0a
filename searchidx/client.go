// Package searchidx talks to the external product search-index service. The
// service rebuilds its embedding index from the full product name list; how
// it retries or fails is its own concern.
package searchidx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("SEARCH_INDEX_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Rebuilds re-embed every product name; allow them time.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

type rebuildRequest struct {
	ProductNames []string `json:"product_names"`
}

type rebuildResponse struct {
	Status string `json:"status"`
}

// Rebuild asks the service to rebuild its index from the given product names
// and returns the service's status string.
func (c *Client) Rebuild(ctx context.Context, productNames []string) (string, error) {
	payload, err := json.Marshal(rebuildRequest{ProductNames: productNames})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rebuild", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("search index error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed rebuildResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	return parsed.Status, nil
}
