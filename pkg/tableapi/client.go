// Package tableapi provides a client for the hosted table-extraction
// service used as one of the extraction backends.
package tableapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the table-extraction operations.
type Client interface {
	// Extract sends chunk text and returns the extracted line items.
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
}

// ExtractRequest is the payload for one extraction call.
type ExtractRequest struct {
	Text         string     `json:"text"`
	SupplierName string     `json:"supplierName,omitempty"`
	DocumentType string     `json:"documentType,omitempty"`
	ChunkInfo    *ChunkInfo `json:"chunkInfo,omitempty"`
}

// ChunkInfo identifies which slice of the document is being extracted.
type ChunkInfo struct {
	ChunkID     string `json:"chunkId"`
	ChunkNumber int    `json:"chunkNumber"`
	PageStart   int    `json:"pageStart,omitempty"`
	PageEnd     int    `json:"pageEnd,omitempty"`
	RowStart    int    `json:"rowStart,omitempty"`
	RowEnd      int    `json:"rowEnd,omitempty"`
}

// Item is one extracted table row. Numeric fields are pointers because
// the service omits cells it could not read.
type Item struct {
	Description string   `json:"description"`
	Section     string   `json:"section,omitempty"`
	Size        string   `json:"size,omitempty"`
	Substrate   string   `json:"substrate,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	Total       *float64 `json:"total,omitempty"`
	Code        string   `json:"code,omitempty"`
}

// ExtractResponse is the parsed service response. Depending on service
// version the rows arrive under "items" or "lines".
type ExtractResponse struct {
	Items      []Item   `json:"items,omitempty"`
	Lines      []Item   `json:"lines,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Rows returns the extracted rows regardless of which field the
// service used.
func (r *ExtractResponse) Rows() []Item {
	if len(r.Items) > 0 {
		return r.Items
	}
	return r.Lines
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tableapi: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the tableapi client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new table-extraction client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.tablereader.io",
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "tableapi: rate limiter")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "tableapi: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "tableapi: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "tableapi: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "tableapi: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ExtractResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "tableapi: unmarshal response")
	}
	return &result, nil
}
