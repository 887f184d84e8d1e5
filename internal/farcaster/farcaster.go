// Package farcaster fetches user casts from the Neynar REST API.
package farcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"castmon/internal/model"
)

const (
	defaultBaseURL = "https://api.neynar.com/v2/farcaster"
	defaultLimit   = 150
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source supplies the posts scanned by the monitor.
type Source interface {
	UserCasts(ctx context.Context, fid int64, days int) ([]model.Post, error)
}

// Client fetches casts for Farcaster users via Neynar.
type Client struct {
	client  HTTPClient
	apiKey  string
	baseURL string
	limit   int
	now     func() time.Time
}

// New creates a Client with a retrying HTTP transport.
func New(apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return NewWithHTTPClient(apiKey, rc.StandardClient())
}

// NewWithHTTPClient creates a Client with a custom HTTP client
// (useful for testing).
func NewWithHTTPClient(apiKey string, client HTTPClient) *Client {
	return &Client{
		client:  client,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		limit:   defaultLimit,
		now:     time.Now,
	}
}

type castsResponse struct {
	Casts []struct {
		Hash   string `json:"hash"`
		Author struct {
			FID int64 `json:"fid"`
		} `json:"author"`
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
	} `json:"casts"`
}

// UserCasts returns the user's casts from the last days days, mapped to
// posts. Casts outside the lookback window or with an unparsable timestamp
// are dropped.
func (c *Client) UserCasts(ctx context.Context, fid int64, days int) ([]model.Post, error) {
	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("limit", strconv.Itoa(c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/feed/user/casts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var decoded castsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode casts: %w", err)
	}

	threshold := c.now().AddDate(0, 0, -days)
	var posts []model.Post
	for _, cast := range decoded.Casts {
		ts, err := time.Parse(time.RFC3339, cast.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(threshold) {
			continue
		}
		posts = append(posts, model.Post{
			ID:        cast.Hash,
			AuthorID:  strconv.FormatInt(cast.Author.FID, 10),
			Content:   cast.Text,
			Timestamp: cast.Timestamp,
		})
	}
	return posts, nil
}
