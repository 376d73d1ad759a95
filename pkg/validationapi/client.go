package validationapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/email-finder/internal/version"
	"github.com/shpitdev/email-finder/pkg/pipeline/core"
)

// Job statuses reported by the API.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Verdict labels reported for completed jobs.
const (
	VerdictValid      = "valid"
	VerdictInvalid    = "invalid"
	VerdictCatchAll   = "catch-all"
	VerdictUnknown    = "unknown"
	VerdictDisposable = "disposable"
)

const DefaultAPIKeyHeader = "X-API-Key"

// RateLimitRetries caps extra attempts after a 429, whatever retry budget the caller set.
const RateLimitRetries = 2

// Job is the acknowledgement returned when an address is submitted.
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobResult is the state of a submitted job.
type JobResult struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether polling can stop.
func (r JobResult) Terminal() bool {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

type Config struct {
	BaseURL string
	APIKey  string

	// APIKeyHeader is the request header carrying APIKey. Defaults to X-API-Key.
	APIKeyHeader string

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration

	// CAPath is an optional PEM bundle to trust for TLS.
	CAPath string
}

// Client is a minimal HTTP client for the asynchronous verification endpoints.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	keyHeader string
	http      *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	hc, err := newHTTPClient(cfg.CAPath, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	header := strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &Client{
		baseURL:   base,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		keyHeader: header,
		http:      hc,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("validation api base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse validation api base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("validation api base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(caPath string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse CA PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func (c *Client) resolve(p string) *url.URL {
	return c.baseURL.ResolveReference(&url.URL{Path: p})
}

// Submit queues address for verification and returns the job handle.
func (c *Client) Submit(ctx context.Context, address string) (Job, error) {
	body, err := json.Marshal(map[string]string{"email": strings.TrimSpace(address)})
	if err != nil {
		return Job{}, err
	}
	var out Job
	if err := c.do(ctx, "submit", http.MethodPost, c.resolve("v1/verifications"), body, &out); err != nil {
		return Job{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return Job{}, fmt.Errorf("submit response missing job id")
	}
	return out, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (JobResult, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobResult{}, fmt.Errorf("job id is required")
	}
	var out JobResult
	u := c.resolve("v1/verifications/" + url.PathEscape(jobID))
	if err := c.do(ctx, "status", http.MethodGet, u, nil, &out); err != nil {
		return JobResult{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method string, u *url.URL, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		herr := newHTTPError(op, resp, b)
		switch {
		case herr.StatusCode == http.StatusTooManyRequests:
			return &core.LimitedTransientError{Err: herr, ExtraRetries: RateLimitRetries}
		case herr.Temporary():
			return &core.TransientError{Err: herr}
		}
		return herr
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s response: %w", op, err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}
