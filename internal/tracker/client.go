// Package tracker talks to the upstream tracker API that serves managers
// and their paged transactions.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"utmreport/internal/core"
)

const maxBodyBytes = 8 << 20

// StatusError is returned when the tracker answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	PageSize  int
	StartDate string
	Timeout   time.Duration
	// HTTPClient overrides the pooled default client.
	HTTPClient *http.Client
}

// Client issues sequential, blocking requests against the tracker API.
type Client struct {
	baseURL   string
	pageSize  int
	startDate string
	http      *http.Client
}

// Page is one page of the transactions endpoint.
type Page struct {
	Number       int
	Transactions []core.Transaction
}

type pageWire struct {
	Transactions []core.Transaction `json:"transactions"`
}

func NewClient(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.StartDate == "" {
		opts.StartDate = "2000-01-01"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClientWithPooling(opts.Timeout)
	}
	return &Client{
		baseURL:   opts.BaseURL,
		pageSize:  opts.PageSize,
		startDate: opts.StartDate,
		http:      hc,
	}
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and bounded timeouts for the tracker host.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ListManagers fetches the manager index.
func (c *Client) ListManagers(ctx context.Context) ([]core.Manager, error) {
	u := c.baseURL + "/api/managers"
	var managers []core.Manager
	if err := c.getJSON(ctx, u, &managers); err != nil {
		return nil, err
	}
	return managers, nil
}

// TransactionsURL builds the page URL for a manager.
func (c *Client) TransactionsURL(managerID string, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("startDate", c.startDate)
	return c.baseURL + "/api/transactions/manager/" + url.PathEscape(managerID) + "?" + q.Encode()
}

// TransactionsPage fetches a single page of a manager's transactions. A body
// without a transactions key is an empty page.
func (c *Client) TransactionsPage(ctx context.Context, managerID string, page int) (Page, error) {
	var body pageWire
	if err := c.getJSON(ctx, c.TransactionsURL(managerID, page), &body); err != nil {
		return Page{Number: page}, err
	}
	return Page{Number: page, Transactions: body.Transactions}, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s: empty body", u)
		}
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}
