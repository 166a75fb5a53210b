// Package jsonl writes events as line-delimited JSON envelopes to a file or
// to standard output, optionally compressed.
package jsonl

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/compression"
	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/destinations/envelope"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// Type is the sink type this destination registers under
const Type = "jsonl"

const defaultBufferSize = 64 * 1024

// Destination writes one envelope per line
type Destination struct {
	path       string
	index      string
	file       *os.File
	compressor io.WriteCloser
	writer     *bufio.Writer
	logger     *zap.Logger

	mu           sync.Mutex
	closed       bool
	linesWritten int64
	bytesWritten int64
}

var _ core.Destination = (*Destination)(nil)

// NewDestination opens the configured output. Options:
//   - path: output file; empty or "-" writes to stdout
//   - index: index name added to every envelope
//
// A compression suffix is appended to path when compression is enabled and
// the path does not already carry it.
func NewDestination(sink config.SinkConfig, logger *zap.Logger) (*Destination, error) {
	alg, err := compression.Parse(sink.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid jsonl sink")
	}

	path := sink.Option("path", "-")
	if path == "-" {
		return newDestination(os.Stdout, nil, path, alg, sink, logger)
	}
	if ext := alg.Extension(); ext != "" && !strings.HasSuffix(path, ext) {
		path += ext
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open jsonl output").
			WithDetail("path", path)
	}
	d, err := newDestination(file, file, path, alg, sink, logger)
	if err != nil {
		file.Close()
		return nil, err
	}
	return d, nil
}

// newDestination writes to w; file, when set, is closed with the destination
func newDestination(w io.Writer, file *os.File, path string, alg compression.Algorithm, sink config.SinkConfig, logger *zap.Logger) (*Destination, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compressor, err := compression.NewWriter(w, alg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}
	size := sink.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Destination{
		path:       path,
		index:      sink.Option("index", ""),
		file:       file,
		compressor: compressor,
		writer:     bufio.NewWriterSize(compressor, size),
		logger:     logger.With(zap.String("path", path), zap.String("compression", string(alg))),
	}, nil
}

// Write appends the event's envelope and a newline
func (d *Destination) Write(_ context.Context, event *core.Event) error {
	line, err := envelope.Marshal(event, d.index)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode event")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeInternal, "jsonl destination is closed")
	}
	if _, err := d.writer.Write(line); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write event")
	}
	if err := d.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write event")
	}
	d.linesWritten++
	d.bytesWritten += int64(len(line) + 1)
	return nil
}

// Close flushes buffered lines, finishes the compressed stream and closes
// the output file. Standard output is left open.
func (d *Destination) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	if err := d.writer.Flush(); err != nil {
		firstErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to flush jsonl output")
	}
	if err := d.compressor.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed stream")
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to close jsonl output")
		}
	}

	d.logger.Debug("jsonl destination closed",
		zap.Int64("lines", d.linesWritten),
		zap.Int64("bytes", d.bytesWritten))
	return firstErr
}

// Path returns the resolved output path, "-" for stdout
func (d *Destination) Path() string {
	return d.path
}
