// Package hec posts events to a Splunk HTTP Event Collector. Events are
// batched in write order and sent as concatenated JSON envelopes.
package hec

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/destinations/envelope"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
)

// Type is the sink type this destination registers under
const Type = "hec"

const (
	eventPath        = "/services/collector/event"
	defaultBatchSize = 100
	defaultTimeout   = 30 * time.Second
	maxBackoff       = 10 * time.Second
)

// Config holds the collector settings parsed from sink options
type Config struct {
	URL                string
	Token              string
	Index              string
	BatchSize          int
	Retries            int
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// ParseConfig reads sink options:
//   - url, token (required)
//   - index
//   - batch_size: events per request, default 100
//   - retries: extra attempts for connection failures and 5xx responses
//   - timeout: request timeout as a Go duration, default 30s
//   - insecure_skip_verify
func ParseConfig(sink config.SinkConfig) (Config, error) {
	cfg := Config{
		URL:       strings.TrimRight(sink.Option("url", ""), "/"),
		Token:     sink.Option("token", ""),
		Index:     sink.Option("index", ""),
		BatchSize: defaultBatchSize,
		Timeout:   defaultTimeout,
	}
	if cfg.URL == "" {
		return cfg, errors.New(errors.ErrorTypeConfig, "hec sink requires the url option")
	}
	if cfg.Token == "" {
		return cfg, errors.New(errors.ErrorTypeConfig, "hec sink requires the token option")
	}

	var err error
	if v := sink.Option("batch_size", ""); v != "" {
		if cfg.BatchSize, err = strconv.Atoi(v); err != nil || cfg.BatchSize <= 0 {
			return cfg, errors.Newf(errors.ErrorTypeConfig, "invalid hec batch_size %q", v)
		}
	}
	if v := sink.Option("retries", ""); v != "" {
		if cfg.Retries, err = strconv.Atoi(v); err != nil || cfg.Retries < 0 {
			return cfg, errors.Newf(errors.ErrorTypeConfig, "invalid hec retries %q", v)
		}
	}
	if v := sink.Option("timeout", ""); v != "" {
		if cfg.Timeout, err = time.ParseDuration(v); err != nil {
			return cfg, errors.Wrap(err, errors.ErrorTypeConfig, "invalid hec timeout")
		}
	}
	if v := sink.Option("insecure_skip_verify", ""); v != "" {
		if cfg.InsecureSkipVerify, err = config.ParseFlag(v); err != nil {
			return cfg, errors.Wrap(err, errors.ErrorTypeConfig, "invalid hec insecure_skip_verify")
		}
	}
	return cfg, nil
}

// Destination batches events and posts them to the collector
type Destination struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	batch   bytes.Buffer
	pending int
	closed  bool
	sent    int64
}

var _ core.Destination = (*Destination)(nil)

// response is the collector's acknowledgement body
type response struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

// NewDestination builds a destination from sink options
func NewDestination(sink config.SinkConfig, logger *zap.Logger) (*Destination, error) {
	cfg, err := ParseConfig(sink)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	return &Destination{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger: logger.With(zap.String("url", cfg.URL)),
		sleep:  sleepContext,
	}, nil
}

// Write appends the event to the current batch, sending it once full
func (d *Destination) Write(ctx context.Context, event *core.Event) error {
	body, err := envelope.Marshal(event, d.cfg.Index)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode event")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeInternal, "hec destination is closed")
	}
	d.batch.Write(body)
	d.pending++
	if d.pending >= d.cfg.BatchSize {
		return d.flush(ctx)
	}
	return nil
}

// Close sends the last partial batch
func (d *Destination) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.flush(ctx)
	d.client.CloseIdleConnections()
	d.logger.Debug("hec destination closed", zap.Int64("events_sent", d.sent))
	return err
}

func (d *Destination) flush(ctx context.Context) error {
	if d.pending == 0 {
		return nil
	}
	payload := d.batch.Bytes()
	count := d.pending

	var err error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			d.logger.Warn("retrying hec batch", zap.Int("attempt", attempt), zap.Error(err))
			if serr := d.sleep(ctx, backoff); serr != nil {
				return errors.Wrap(serr, errors.ErrorTypeConnection, "hec batch cancelled")
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if err = d.post(ctx, payload); err == nil || !errors.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return err
	}

	d.sent += int64(count)
	d.batch.Reset()
	d.pending = 0
	return nil
}

func (d *Destination) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL+eventPath, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to build hec request")
	}
	req.Header.Set("Authorization", "Splunk "+d.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gridfeed/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "hec request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var ack response
	message := strings.TrimSpace(string(body))
	if jsonpool.Unmarshal(body, &ack) == nil && ack.Text != "" {
		message = ack.Text
	}
	errType := errors.ErrorTypeData
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		errType = errors.ErrorTypeConnection
	}
	return errors.New(errType, fmt.Sprintf("hec returned %d: %s", resp.StatusCode, message)).
		WithDetail("status", resp.StatusCode).
		WithDetail("hec_code", ack.Code)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
