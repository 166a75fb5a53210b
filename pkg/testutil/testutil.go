// Package testutil provides testing utilities for gridfeed
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger recording every entry at or above level
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// TestContext creates a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// CaptureDestination is an in-memory core.Destination
type CaptureDestination struct {
	mu     sync.Mutex
	events []*core.Event
	closed int

	// FailAfter makes Write fail once this many events were accepted; 0 never fails
	FailAfter int
}

var _ core.Destination = (*CaptureDestination)(nil)

// Write records the event
func (d *CaptureDestination) Write(_ context.Context, event *core.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed > 0 {
		return fmt.Errorf("write after close")
	}
	if d.FailAfter > 0 && len(d.events) >= d.FailAfter {
		return fmt.Errorf("capture destination full after %d events", d.FailAfter)
	}
	d.events = append(d.events, event)
	return nil
}

// Close marks the destination closed
func (d *CaptureDestination) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Events returns the recorded events in write order
func (d *CaptureDestination) Events() []*core.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*core.Event, len(d.events))
	copy(out, d.events)
	return out
}

// Payloads returns the Data of every recorded event as strings
func (d *CaptureDestination) Payloads() []string {
	events := d.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e.Data)
	}
	return out
}

// Closed reports how many times Close was called
func (d *CaptureDestination) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
