package gridmanager

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource(Kind, "Networks with flattened extensible attributes from the Infoblox Grid Manager WAPI",
		func(name string, input config.InputConfig, logger *zap.Logger) (core.Source, error) {
			return NewSource(name, input, logger)
		})
}
