package gridmanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/gridfeed/pkg/errors"
	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
	"github.com/ajitpratap0/gridfeed/pkg/metrics"
	"github.com/ajitpratap0/gridfeed/pkg/observability"
)

// maxErrorBody caps how much of an error response is kept in the error
const maxErrorBody = 512

// State is the position of a Client in its fetch lifecycle
type State int

const (
	StateInit State = iota
	StateAuthenticated
	StatePaging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticated:
		return "authenticated"
	case StatePaging:
		return "paging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClientConfig configures a WAPI client for one input
type ClientConfig struct {
	// Input is the full input name used in logs and metrics
	Input     string
	Domain    string
	Username  string
	Password  string
	UseSSL    bool
	VerifySSL bool
	Version   string
	Limit     int
	Fields    string
	// RateLimit caps requests per second; zero means unlimited
	RateLimit float64

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// PageState tracks the continuation token between page requests
type PageState struct {
	Token    string
	HasToken bool
	Count    int
}

// Page is one decoded page of results
type Page struct {
	Number     int
	Records    []map[string]interface{}
	NextPageID string
	HasNext    bool
}

// Client fetches network records from the Grid Manager WAPI. A client is
// used for a single run: Authenticate, then Paginate, then Close.
type Client struct {
	config    ClientConfig
	baseURL   string
	http      *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state State
	page  PageState
}

// NewClient creates a client with its own cookie-backed session
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Domain == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "domain is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec // operator controlled via verifyssl
			MinVersion:         tls.VersionTLS12,
		},
	}
	if cfg.UseSSL {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to configure HTTP/2 transport")
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create cookie jar")
	}

	c := &Client{
		config:    cfg,
		baseURL:   fmt.Sprintf("%s://%s/wapi/%s", scheme, cfg.Domain, cfg.Version),
		transport: transport,
		// No timeout: a run lasts as long as the grid takes, bounded by ctx.
		http:    &http.Client{Transport: transport, Jar: jar},
		logger:  cfg.Logger.With(zap.String("component", "wapi_client")),
		metrics: cfg.Metrics,
		state:   StateInit,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// BaseURL returns {scheme}://{domain}/wapi/{version}
func (c *Client) BaseURL() string {
	return c.baseURL
}

// State returns the current lifecycle state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PageState returns a copy of the pagination state
func (c *Client) PageState() PageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Client) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return errors.Newf(errors.ErrorTypeInternal, "invalid client transition %s -> %s from state %s", from, to, c.state)
	}
	c.state = to
	return nil
}

func (c *Client) expect(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != s {
		return errors.Newf(errors.ErrorTypeInternal, "client is %s, want %s", c.state, s)
	}
	return nil
}

func (c *Client) fail() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
}

// Authenticate issues the schema probe with basic auth. The session cookie
// it returns authorizes the page requests.
func (c *Client) Authenticate(ctx context.Context) (err error) {
	if err := c.expect(StateInit); err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanAuthenticate, observability.InputAttr(c.config.Input))
	defer func() { observability.EndSpan(span, err) }()

	req, err := c.newRequest(ctx, c.baseURL+"/network?_schema")
	if err != nil {
		c.fail()
		return err
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.do(req, metrics.RequestProbe)
	if err != nil {
		c.fail()
		return err
	}
	defer drain(resp)

	if !success(resp.StatusCode) {
		c.fail()
		return errors.Newf(errors.ErrorTypeUpstreamAuth, "schema probe returned %s", resp.Status).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", readSnippet(resp.Body))
	}

	c.logger.Debug("Authenticated", zap.String("url", c.baseURL))
	return c.transition(StateInit, StateAuthenticated)
}

// Paginate requests pages until a response carries no next_page_id,
// calling handle for each page before requesting the next. An error from
// handle stops paging and is returned unchanged.
func (c *Client) Paginate(ctx context.Context, handle func(ctx context.Context, page *Page) error) error {
	if err := c.transition(StateAuthenticated, StatePaging); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("_return_as_object", "1")
	params.Set("_paging", "1")
	params.Set("_max_results", strconv.Itoa(c.config.Limit))
	params.Set("_return_fields", c.config.Fields)

	for {
		page, err := c.fetchPage(ctx, params)
		if err != nil {
			c.fail()
			return err
		}

		if err := handle(ctx, page); err != nil {
			c.fail()
			return err
		}

		if !page.HasNext {
			c.logger.Info("No more pages")
			return c.transition(StatePaging, StateDone)
		}
		params.Set("_page_id", page.NextPageID)
	}
}

func (c *Client) fetchPage(ctx context.Context, params url.Values) (page *Page, err error) {
	n := c.PageState().Count + 1
	ctx, span := observability.StartSpan(ctx, observability.SpanPage,
		observability.InputAttr(c.config.Input), observability.PageAttr(n))
	defer func() { observability.EndSpan(span, err) }()

	req, err := c.newRequest(ctx, c.baseURL+"/network?"+params.Encode())
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, metrics.RequestPage)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if !success(resp.StatusCode) {
		return nil, errors.Newf(errors.ErrorTypeUpstreamRequest, "page %d request returned %s", n, resp.Status).
			WithDetail("status", resp.StatusCode).
			WithDetail("page", n).
			WithDetail("body", readSnippet(resp.Body))
	}

	page, err = decodePage(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedResponse, fmt.Sprintf("failed to decode page %d", n))
	}
	page.Number = n

	c.mu.Lock()
	c.page = PageState{Count: n, Token: page.NextPageID, HasToken: page.HasNext}
	c.mu.Unlock()

	c.metrics.PageFetched(c.config.Input)
	c.logger.Info(fmt.Sprintf("Got page %d", n), zap.Int("records", len(page.Records)))
	return page, nil
}

// decodePage parses {"result": [...], "next_page_id": "..."}
func decodePage(body io.Reader) (*Page, error) {
	var payload map[string]interface{}
	if err := jsonpool.GetDecoder(body).Decode(&payload); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	if payload == nil {
		return nil, malformed("response is not an object")
	}

	raw, ok := payload["result"]
	if !ok {
		return nil, malformed("response has no result")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, malformed("result is %s, want array", typeName(raw))
	}

	page := &Page{Records: make([]map[string]interface{}, 0, len(list))}
	for i, item := range list {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, malformed("result[%d] is %s, want object", i, typeName(item))
		}
		page.Records = append(page.Records, record)
	}

	if next, present := payload["next_page_id"]; present && next != nil {
		token, ok := next.(string)
		if !ok {
			return nil, malformed("next_page_id is %s, want string", typeName(next))
		}
		page.NextPageID = token
		page.HasNext = true
	}
	return page, nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gridfeed/1.0")
	return req, nil
}

func (c *Client) do(req *http.Request, kind string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeUpstreamRequest, "rate limiter wait interrupted")
		}
	}

	timer := metrics.NewTimer()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(c.config.Input, kind, 0, timer.Stop())
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamRequest, fmt.Sprintf("%s request failed", kind))
	}
	c.metrics.ObserveRequest(c.config.Input, kind, resp.StatusCode, timer.Stop())
	return resp, nil
}

// Close releases the session's idle connections. It is safe in any state.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func success(code int) bool {
	return code >= 200 && code < 300
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(data)
}

// drain lets the connection be reused by the next page request
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
