// Package analytics is the HTTP client for the external analytical service.
// Only classifier-approved text reaches this client; the client itself never
// logs or echoes the text it carries.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/circuit"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultProbeInterval = 15 * time.Second

	queryPath = "/v1/query"
)

// Client posts sanitized queries to the analytical service behind a circuit
// breaker. While the circuit is open one probe per interval is let through;
// every other call fails fast without touching the network.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger

	probeInterval time.Duration
	probeMu       sync.Mutex
	lastProbe     time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request end to end.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithProbeInterval sets how often an open circuit lets a recovery probe out.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.probeInterval = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New constructs a client for the analytical service at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		http:          &http.Client{Timeout: defaultTimeout},
		breaker:       circuit.New("analytics"),
		logger:        slog.Default(),
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type queryRequest struct {
	Text string `json:"text"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Query posts text to the analytical service and returns its answer.
func (c *Client) Query(ctx context.Context, text string) (string, error) {
	if c.breaker.IsOpen() && !c.takeProbe() {
		return "", dErrors.New(dErrors.CodeUnavailable, "analytics circuit is open")
	}

	answer, err := c.post(ctx, text)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("analytics circuit opened", "base_url", c.baseURL)
		}
		return "", err
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("analytics circuit closed", "base_url", c.baseURL)
	}
	return answer, nil
}

func (c *Client) takeProbe() bool {
	c.probeMu.Lock()
	defer c.probeMu.Unlock()
	if time.Since(c.lastProbe) < c.probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *Client) post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(queryRequest{Text: text})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode analytics request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "build analytics request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "analytics request failed")
	}
	defer resp.Body.Close()

	// Error bodies are not echoed into our errors; they may quote the text.
	if resp.StatusCode != http.StatusOK {
		return "", dErrors.Newf(dErrors.CodeUnavailable, "analytics returned status %d", resp.StatusCode)
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "decode analytics response")
	}
	return decoded.Response, nil
}
