// Package sources registers every source connector with the global
// registry. Import it for its side effects.
package sources

import (
	// Import all source connectors to trigger init() registration
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/sources/gridmanager"
)
