package kafka

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(Type, "JSON envelopes published to a Kafka topic, keyed by host",
		func(sink config.SinkConfig, logger *zap.Logger) (core.Destination, error) {
			return NewDestination(sink, logger)
		})
}
