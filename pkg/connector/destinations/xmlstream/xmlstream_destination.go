// Package xmlstream writes events in the Splunk modular input XML streaming
// format:
//
//	<stream>
//	<event><time>1700000000.123</time><host>gm</host>...<data>{...}</data></event>
//	</stream>
//
// The opening tag is written with the first event, or at Close when no
// event arrived, so an empty run still produces a well-formed document.
package xmlstream

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/destinations/envelope"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// Type is the sink type this destination registers under
const Type = "xmlstream"

const defaultBufferSize = 32 * 1024

type xmlEvent struct {
	XMLName    xml.Name `xml:"event"`
	Time       string   `xml:"time"`
	Host       string   `xml:"host,omitempty"`
	Source     string   `xml:"source,omitempty"`
	SourceType string   `xml:"sourcetype,omitempty"`
	Index      string   `xml:"index,omitempty"`
	Data       string   `xml:"data"`
}

// Destination streams events as XML
type Destination struct {
	index   string
	file    *os.File
	writer  *bufio.Writer
	encoder *xml.Encoder
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	events  int64
}

var _ core.Destination = (*Destination)(nil)

// NewDestination opens the configured output. Options:
//   - path: output file; empty or "-" writes to stdout
//   - index: index name added to every event
func NewDestination(sink config.SinkConfig, logger *zap.Logger) (*Destination, error) {
	path := sink.Option("path", "-")
	if path == "-" {
		return newDestination(os.Stdout, nil, sink, logger), nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open xml stream output").
			WithDetail("path", path)
	}
	return newDestination(file, file, sink, logger), nil
}

func newDestination(w io.Writer, file *os.File, sink config.SinkConfig, logger *zap.Logger) *Destination {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := sink.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	writer := bufio.NewWriterSize(w, size)
	return &Destination{
		index:   sink.Option("index", ""),
		file:    file,
		writer:  writer,
		encoder: xml.NewEncoder(writer),
		logger:  logger,
	}
}

func (d *Destination) start() error {
	if d.started {
		return nil
	}
	d.started = true
	_, err := d.writer.WriteString("<stream>\n")
	return err
}

// Write encodes one <event> element
func (d *Destination) Write(_ context.Context, event *core.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeInternal, "xml stream destination is closed")
	}
	if err := d.start(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to start xml stream")
	}

	err := d.encoder.Encode(xmlEvent{
		Time:       envelope.FormatTime(event.Time),
		Host:       event.Host,
		Source:     event.Source,
		SourceType: event.SourceType,
		Index:      d.index,
		Data:       string(event.Data),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode event")
	}
	if err := d.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write event")
	}
	d.events++
	return nil
}

// Close ends the stream with </stream> and flushes it
func (d *Destination) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	if err := d.start(); err != nil {
		firstErr = err
	}
	if _, err := d.writer.WriteString("</stream>\n"); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.writer.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	d.logger.Debug("xml stream closed", zap.Int64("events", d.events))
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeFile, "failed to close xml stream")
	}
	return nil
}
