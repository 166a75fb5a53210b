package xmlstream

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(Type, "Splunk modular input XML event stream on stdout or a file",
		func(sink config.SinkConfig, logger *zap.Logger) (core.Destination, error) {
			return NewDestination(sink, logger)
		})
}
