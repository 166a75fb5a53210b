package jsonl

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(Type, "Line-delimited JSON envelopes to a file or stdout, optionally compressed",
		func(sink config.SinkConfig, logger *zap.Logger) (core.Destination, error) {
			return NewDestination(sink, logger)
		})
}
