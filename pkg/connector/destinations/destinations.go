// Package destinations registers every destination connector with the
// global registry. Import it for its side effects.
package destinations

import (
	// Import all destination connectors to trigger init() registration
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/destinations/hec"
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/destinations/jsonl"
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/destinations/kafka"
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/destinations/xmlstream"
)
