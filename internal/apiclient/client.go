// Package apiclient talks to a running bucketadmin server over its JSON
// API and keeps the state of a terminal administration panel.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bucketadmin/internal/domain"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultDBName  = "test"

	maxBody = 32 << 20
)

// DbConfig is the body of POST /api/configure-db. Port is sent as text,
// the way the HTML form submits it.
type DbConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

// Client is an HTTP client for the bucketadmin API. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithBasicAuth sends credentials on every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the underlying client; its Timeout is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigureDB submits cfg and returns the server's success message.
func (c *Client) ConfigureDB(ctx context.Context, cfg DbConfig) (string, error) {
	if cfg.DBName == "" {
		cfg.DBName = DefaultDBName
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, opConfigure, http.MethodPost, "/api/configure-db", cfg, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Query searches buckets by id and/or name.
func (c *Client) Query(ctx context.Context, bid, bname string) (*domain.SearchResult, error) {
	q := url.Values{}
	q.Set("bid", bid)
	q.Set("bname", bname)

	var res domain.SearchResult
	if err := c.do(ctx, "query", http.MethodGet, "/api/query?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	if res.MainData == nil {
		res.MainData = []domain.Bucket{}
	}
	if res.Details == nil {
		res.Details = []domain.FileDetail{}
	}
	return &res, nil
}

// Users fetches the user summaries.
func (c *Client) Users(ctx context.Context) ([]domain.UserSummary, error) {
	var users []domain.UserSummary
	if err := c.do(ctx, "users", http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Partitions fetches the partition labels of one user.
func (c *Client) Partitions(ctx context.Context, userID uint64) ([]domain.PartitionRecord, error) {
	path := "/api/partitions/" + url.PathEscape(strconv.FormatUint(userID, 10))
	var parts []domain.PartitionRecord
	if err := c.do(ctx, "partitions", http.MethodGet, path, nil, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if msg, ok := embeddedError(data); ok {
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

// embeddedError reports the "error" field of a JSON object body.
func embeddedError(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil || probe.Error == nil || *probe.Error == "" {
		return "", false
	}
	return *probe.Error, true
}

// IsAPIError reports whether err came from the server's error field.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
