package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/time7/tagsync/pkg/logger"
)

const (
	activeTagsPath   = "/api/active-tags"
	readerStatusPath = "/api/reader-status"
	readerEventsPath = "/api/reader/events"

	defaultTimeout = 5 * time.Second
)

// Client is a typed wrapper around the gateway HTTP surface.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  *zap.Logger
}

// Option customises a Client.
type Option func(*options)

type options struct {
	timeout    time.Duration
	retries    int
	httpClient *http.Client
	logger     *zap.Logger
}

// WithTimeout bounds every request. Defaults to five seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetries sets how many times a request failing with a transport error
// or a 5xx status is retried. The default is zero; the poll loop already
// retries on its next cycle.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger attaches a logger. Requests are logged at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = logger.OrNop(l) }
}

// New builds a client for baseURL. An empty baseURL is accepted here so the
// failure surfaces as ErrMissingBaseURL on first use.
func New(baseURL string, opts ...Option) *Client {
	o := options{timeout: defaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var rc *resty.Client
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	} else {
		rc = resty.New()
	}

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	rc.SetBaseURL(base).
		SetTimeout(o.timeout).
		SetRetryCount(o.retries).
		SetHeader("Accept", "application/json")
	if o.retries > 0 {
		// resty retries only transport errors unless told otherwise
		rc.AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})
	}

	return &Client{baseURL: base, http: rc, logger: o.logger}
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchActiveTags returns the tags currently in range. An empty list is a
// valid result.
func (c *Client) FetchActiveTags(ctx context.Context) ([]ScanRecord, error) {
	var rows []ScanRecord
	if err := c.get(ctx, activeTagsPath, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ScanRecord{}
	}
	return rows, nil
}

// FetchReaderStatus reports whether the physical reader is attached.
func (c *Client) FetchReaderStatus(ctx context.Context) (ReaderStatus, error) {
	var status ReaderStatus
	if err := c.get(ctx, readerStatusPath, &status); err != nil {
		return ReaderStatus{}, err
	}
	return status, nil
}

// SendTagIDs posts a batch of identifiers to the reader events endpoint and
// returns the gateway's acknowledgement as raw JSON.
func (c *Client) SendTagIDs(ctx context.Context, tagIDs []string) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if tagIDs == nil {
		tagIDs = []string{}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string][]string{"tagIds": tagIDs}).
		Post(readerEventsPath)
	if err := checkResponse(resp, err); err != nil {
		c.logger.Debug("gateway request failed", zap.String("path", readerEventsPath), zap.Error(err))
		return nil, err
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, &Error{StatusCode: 0, Err: fmt.Errorf("decode %s: invalid JSON ack", readerEventsPath)}
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return ErrMissingBaseURL
	}

	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err := checkResponse(resp, err); err != nil {
		c.logger.Debug("gateway request failed", zap.String("path", path), zap.Error(err))
		return err
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &Error{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}

// checkResponse is the one place transport and HTTP failures become *Error.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}
	return &Error{StatusCode: resp.StatusCode(), Body: resp.String()}
}
