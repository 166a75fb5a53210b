package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
	"github.com/ajitpratap0/gridfeed/pkg/logger"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	info         map[string]*ConnectorInfo
	mu           sync.RWMutex
}

// SourceFactory creates a source for one input. name is the part of the
// input name after kind://, and input carries the resolved password.
type SourceFactory func(name string, input config.InputConfig, logger *zap.Logger) (core.Source, error)

// DestinationFactory creates a destination from the sink section
type DestinationFactory func(sink config.SinkConfig, logger *zap.Logger) (core.Destination, error)

// ConnectorInfo describes a registered connector for listings
type ConnectorInfo struct {
	Name        string             `json:"name"`
	Type        core.ConnectorType `json:"type"`
	Description string             `json:"description"`
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
		info:         make(map[string]*ConnectorInfo),
	}
}

func infoKey(t core.ConnectorType, name string) string {
	return string(t) + "/" + name
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name, description string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s already registered", name))
	}

	r.sources[name] = factory
	r.info[infoKey(core.ConnectorTypeSource, name)] = &ConnectorInfo{
		Name: name, Type: core.ConnectorTypeSource, Description: description,
	}
	return nil
}

// RegisterDestination registers a destination connector factory
func (r *Registry) RegisterDestination(name, description string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("destination connector %s already registered", name))
	}

	r.destinations[name] = factory
	r.info[infoKey(core.ConnectorTypeDestination, name)] = &ConnectorInfo{
		Name: name, Type: core.ConnectorTypeDestination, Description: description,
	}
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(kind, name string, input config.InputConfig, log *zap.Logger) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s not found", kind))
	}
	if log == nil {
		log = logger.Get()
	}

	source, err := factory(name, input, log.With(zap.String("connector", kind)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source connector %s", kind))
	}
	return source, nil
}

// CreateDestination creates a destination connector instance
func (r *Registry) CreateDestination(sink config.SinkConfig, log *zap.Logger) (core.Destination, error) {
	r.mu.RLock()
	factory, exists := r.destinations[sink.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("destination connector %s not found", sink.Type))
	}
	if log == nil {
		log = logger.Get()
	}

	destination, err := factory(sink, log.With(zap.String("destination", sink.Type)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create destination connector %s", sink.Type))
	}
	return destination, nil
}

// ListSources returns the registered source names in sorted order
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// ListDestinations returns the registered destination names in sorted order
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	destinations := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)
	return destinations
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

// Info returns the description of every registered connector, sources first
func (r *Registry) Info() []*ConnectorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(r.info))
	for _, info := range r.info {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Type != infos[j].Type {
			return infos[i].Type == core.ConnectorTypeSource
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Clear removes all registered connectors (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = make(map[string]SourceFactory)
	r.destinations = make(map[string]DestinationFactory)
	r.info = make(map[string]*ConnectorInfo)
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(name, description string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, description, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name, description string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, description, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(kind, name string, input config.InputConfig, log *zap.Logger) (core.Source, error) {
	return globalRegistry.CreateSource(kind, name, input, log)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(sink config.SinkConfig, log *zap.Logger) (core.Destination, error) {
	return globalRegistry.CreateDestination(sink, log)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// GetRegistry returns the global registry instance.
// This is the primary way to access the connector registry.
func GetRegistry() *Registry {
	return globalRegistry
}

// Factory creates connectors. The run controller depends on this rather
// than on the global registry so tests can inject their own.
type Factory interface {
	CreateSource(kind, name string, input config.InputConfig, log *zap.Logger) (core.Source, error)
	CreateDestination(sink config.SinkConfig, log *zap.Logger) (core.Destination, error)
}

var _ Factory = (*Registry)(nil)
