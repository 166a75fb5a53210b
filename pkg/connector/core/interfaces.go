// Package core defines the contracts between sources, destinations and the
// run controller.
package core

import (
	"context"
	"time"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Event is one normalized record together with its sink metadata.
// Data is the compact JSON encoding of the record.
type Event struct {
	Time       time.Time
	Host       string
	Source     string
	SourceType string
	Data       []byte
}

// EmitFunc receives events in the order a source produces them. A non-nil
// error stops the source.
type EmitFunc func(ctx context.Context, event *Event) error

// Source is the interface that all source connectors must implement
type Source interface {
	// Read fetches every record and passes each one to emit, in order,
	// before requesting more data.
	Read(ctx context.Context, emit EmitFunc) error
	// Close releases the source's session. It is safe to call more than once.
	Close(ctx context.Context) error
	// Metrics reports counters for the last Read
	Metrics() map[string]interface{}
}

// Destination is a sequential event sink
type Destination interface {
	// Write delivers one event. Buffered destinations keep write order.
	Write(ctx context.Context, event *Event) error
	// Close flushes pending events and ends the stream
	Close(ctx context.Context) error
}
