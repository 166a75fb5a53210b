// Package gridfeed streams the networks of Infoblox Grid Manager appliances
// into an event sink.
//
// Each run authenticates against the Grid Manager WAPI with a schema probe,
// pages through /network until no next_page_id is returned, flattens every
// record's extensible attributes and DHCP options, and emits one compact
// JSON event per network in document order.
//
// # Architecture
//
// A run is a straight line:
//
//	credentials.Manager  resolve the input password (literal or masked)
//	gridmanager.Client   schema probe, then one request per page
//	gridmanager.Normalize flatten extattrs and options
//	core.Destination     xmlstream, jsonl, hec or kafka
//
// Passwords written in the configuration are moved into an encrypted store
// on first use and replaced by the <encrypted> mask in the file.
//
// # Quick Start
//
//	gridfeed scheme                       # argument scheme as XML
//	gridfeed run --config gridfeed.yaml   # one pass over every input
//	gridfeed run --interval 15m           # repeat until interrupted
//	gridfeed credentials list             # stored passwords, never secrets
//
// # Key Packages
//
//	cmd/gridfeed             - Command line entry point
//	internal/pipeline        - Run controller
//	pkg/connector            - Source and destination connectors
//	pkg/credentials          - Credential manager and encrypted stores
//	pkg/config               - YAML configuration, validation and input updates
//	pkg/scheme               - Input argument scheme
//	pkg/errors               - Structured error handling
//	pkg/logger               - Structured logging
//	pkg/metrics              - Prometheus metrics and Pushgateway export
//	pkg/observability        - Tracing
//
// # Configuration
//
// The configuration file is YAML with ${VAR_NAME} environment substitution.
// See examples/gridfeed.yaml. Flags and GRIDFEED_* environment variables
// override the config path, log level, interval and Pushgateway URL.
package gridfeed
