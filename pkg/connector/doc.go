// Package connector holds the pieces a gridfeed run is assembled from.
//
// # Architecture Overview
//
//   - core: the Source and Destination contracts and the Event passed
//     between them.
//
//   - registry: factories keyed by input kind and sink type. Connectors
//     self-register during initialization.
//
//   - sources: the Infoblox Grid Manager WAPI source (gridmanager), which
//     authenticates, pages through networks and normalizes each record.
//
//   - destinations: event sinks. xmlstream writes the Splunk modular input
//     stream, jsonl writes JSON lines, hec posts to a Splunk HTTP Event
//     Collector and kafka publishes to a topic. The envelope sub-package
//     holds the JSON envelope they share.
//
// Importing the sources and destinations packages registers every
// connector:
//
//	import (
//	    _ "github.com/ajitpratap0/gridfeed/pkg/connector/destinations"
//	    _ "github.com/ajitpratap0/gridfeed/pkg/connector/sources"
//	)
package connector
