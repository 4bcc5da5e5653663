package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/metrics"
)

// Config holds history API connection settings.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	PageLimit int           `yaml:"page_limit"`
}

// Page is one page of an account's transfer history.
type Page struct {
	Records      []domain.TransferRecord `json:"records"`
	Page         int                     `json:"page"`
	TotalPages   int                     `json:"total_pages"`
	TotalRecords int                     `json:"total_records"`
}

// Client fetches paginated transfer history over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a history API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// AccountExists checks the account upstream. A missing account surfaces as
// a non-existent resource error.
func (c *Client) AccountExists(ctx context.Context, account string, network domain.Network) error {
	url := fmt.Sprintf("%s/v1/%s/accounts/%s", c.baseURL, network, account)

	resp, err := c.do(ctx, url, network)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchPage retrieves one numbered page of the account's transfer history.
// Pages are 1-based.
func (c *Client) FetchPage(ctx context.Context, account string, network domain.Network, page, limit int) (*Page, error) {
	url := fmt.Sprintf("%s/v1/%s/accounts/%s/transfers?page=%d&limit=%d",
		c.baseURL, network, account, page, limit)

	resp, err := c.do(ctx, url, network)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var p Page
	if err := json.Unmarshal(body, &p); err != nil {
		// Keep the json error type intact for classification.
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}

	metrics.PagesFetched.WithLabelValues(string(network)).Inc()
	return &p, nil
}

// do executes a GET and converts non-2xx statuses into errors whose messages
// carry the upstream status markers the classifier keys on.
func (c *Client) do(ctx context.Context, url string, network domain.Network) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error from the transport: a failed network fetch.
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp)
		metrics.APIErrorsTotal.WithLabelValues(string(network), "404").Inc()
		return nil, fmt.Errorf("Account not found (404)")
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		drain(resp)
		metrics.APIErrorsTotal.WithLabelValues(string(network), "429").Inc()
		return nil, fmt.Errorf("Rate limit exceeded (429), retry after: %s", retryAfter)
	case resp.StatusCode >= 500:
		drain(resp)
		metrics.APIErrorsTotal.WithLabelValues(string(network), fmt.Sprint(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("Server error (%d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		metrics.APIErrorsTotal.WithLabelValues(string(network), fmt.Sprint(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
