package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps a single page response (50MB). Search bundles
	// with large chunk sizes can get big.
	MaxResponseSize = 50 * 1024 * 1024
)

// Config holds FHIR client configuration
type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	Strict          bool
}

// DefaultConfig returns default FHIR client configuration
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		Strict:          true,
	}
}

// Client reads search bundles from a FHIR REST server
type Client struct {
	baseURL    string
	serverBase string
	token      string
	strict     bool
	client     *http.Client
	logger     ectologger.Logger
}

// NewClient creates a new FHIR client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL:    base,
		serverBase: base,
		token:      cfg.Token,
		strict:     cfg.Strict,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger,
	}
}

// Metadata fetches the server's CapabilityStatement. The implementation URL
// it reports becomes the base that page links are relativized against,
// since servers behind proxies advertise links under that URL rather than
// the configured one.
func (c *Client) Metadata(ctx context.Context) (*CapabilityStatement, error) {
	ctx, span := tracing.StartSpan(ctx, "fhir.Client.Metadata")
	defer span.End()

	body, err := c.get(ctx, c.baseURL+"/metadata")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch capability statement: %w", err)
	}

	var cs CapabilityStatement
	if err := json.Unmarshal(body, &cs); err != nil {
		return nil, fmt.Errorf("failed to parse capability statement: %w", err)
	}

	if cs.Implementation.URL != "" {
		c.serverBase = strings.TrimRight(cs.Implementation.URL, "/")
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"software":     cs.Software.Name,
		"fhir_version": cs.FHIRVersion,
		"server_base":  c.serverBase,
	}).Info("Connected to FHIR server")
	return &cs, nil
}

// ReadBundle fetches the given server-relative path and parses the response
// as a search bundle.
func (c *Client) ReadBundle(ctx context.Context, path string) (*Bundle, error) {
	ctx, span := tracing.StartSpan(ctx, "fhir.Client.ReadBundle")
	defer span.End()

	body, err := c.get(ctx, c.baseURL+"/"+strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	return ParseBundle(body, c.strict)
}

// Count asks the server how many resources of the given type it holds.
func (c *Client) Count(ctx context.Context, resourceType string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "fhir.Client.Count")
	defer span.End()

	bundle, err := c.ReadBundle(ctx, resourceType+"?_summary=count")
	if err != nil {
		return 0, fmt.Errorf("failed to count %s resources: %w", resourceType, err)
	}
	if bundle.Total == nil {
		return 0, fmt.Errorf("server returned no total for %s", resourceType)
	}
	return *bundle.Total, nil
}

// NextPath returns the bundle's next page link relative to the server base,
// empty when there is no next page.
func (c *Client) NextPath(bundle *Bundle) string {
	next := bundle.NextLink()
	if next == "" {
		return ""
	}

	parts := strings.Split(next, c.serverBase)
	return strings.TrimLeft(parts[len(parts)-1], "/")
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if tp := tracing.GetTraceParent(ctx); tp != "" {
		req.Header.Set("traceparent", tp)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("FHIR request failed: GET %s", url)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d for GET %s", resp.StatusCode, url)
	}

	c.logger.WithContext(ctx).Debugf("GET %s -> %d (%s)", url, resp.StatusCode, time.Since(start))
	return body, nil
}
