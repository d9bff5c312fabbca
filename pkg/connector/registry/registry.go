// Package registry maps connector names to factories. Connectors register
// themselves from init functions together with a description; the CLI
// selects them by configured name.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/logger"
	"go.uber.org/zap"
)

// SourceFactory creates the change-feed source from the full configuration.
type SourceFactory func(cfg *config.Config) (core.WritableSource, error)

// StoreFactory creates an object store from the full configuration.
type StoreFactory func(cfg *config.Config) (core.ObjectStore, error)

// Info describes a registered connector.
type Info struct {
	Name         string             `json:"name"`
	Type         core.ConnectorType `json:"type"`
	Description  string             `json:"description"`
	Version      string             `json:"version"`
	Capabilities []string           `json:"capabilities,omitempty"`
	// Settings lists the configuration keys the factory reads
	Settings []string `json:"settings,omitempty"`
}

// entries holds the factories of one connector type.
type entries[F any] struct {
	kind      core.ConnectorType
	factories map[string]F
	infos     map[string]Info
}

func newEntries[F any](kind core.ConnectorType) entries[F] {
	return entries[F]{kind: kind, factories: make(map[string]F), infos: make(map[string]Info)}
}

func (e entries[F]) add(info Info, factory F) error {
	if info.Name == "" {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s connector has no name", e.kind))
	}
	if _, exists := e.factories[info.Name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s connector %s already registered", e.kind, info.Name))
	}
	info.Type = e.kind
	e.factories[info.Name] = factory
	e.infos[info.Name] = info
	return nil
}

func (e entries[F]) get(name string) (F, error) {
	factory, exists := e.factories[name]
	if !exists {
		return factory, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s connector %s not found", e.kind, name)).
			WithDetail("available", e.names())
	}
	return factory, nil
}

func (e entries[F]) names() []string {
	names := make([]string, 0, len(e.infos))
	for name := range e.infos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e entries[F]) list() []Info {
	infos := make([]Info, 0, len(e.infos))
	for _, name := range e.names() {
		infos = append(infos, e.infos[name])
	}
	return infos
}

// Registry holds the source and object store factories.
type Registry struct {
	mu      sync.RWMutex
	sources entries[SourceFactory]
	stores  entries[StoreFactory]
	logger  *zap.Logger
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: newEntries[SourceFactory](core.ConnectorTypeSource),
		stores:  newEntries[StoreFactory](core.ConnectorTypeObjectStore),
		logger:  logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource adds a source factory under info.Name.
func (r *Registry) RegisterSource(info Info, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sources.add(info, factory); err != nil {
		return err
	}
	r.logger.Debug("source registered", zap.String("name", info.Name))
	return nil
}

// RegisterStore adds an object store factory under info.Name.
func (r *Registry) RegisterStore(info Info, factory StoreFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.stores.add(info, factory); err != nil {
		return err
	}
	r.logger.Debug("object store registered", zap.String("name", info.Name))
	return nil
}

// CreateSource builds the source registered as name.
func (r *Registry) CreateSource(name string, cfg *config.Config) (core.WritableSource, error) {
	r.mu.RLock()
	factory, err := r.sources.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	source, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source %s", name))
	}
	return source, nil
}

// CreateStore builds the object store registered as name.
func (r *Registry) CreateStore(name string, cfg *config.Config) (core.ObjectStore, error) {
	r.mu.RLock()
	factory, err := r.stores.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	store, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create object store %s", name))
	}
	return store, nil
}

// Sources describes the registered sources, sorted by name.
func (r *Registry) Sources() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources.list()
}

// Stores describes the registered object stores, sorted by name.
func (r *Registry) Stores() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stores.list()
}

// RegisterSource registers a source in the global registry.
func RegisterSource(info Info, factory SourceFactory) error {
	return globalRegistry.RegisterSource(info, factory)
}

// RegisterStore registers an object store in the global registry.
func RegisterStore(info Info, factory StoreFactory) error {
	return globalRegistry.RegisterStore(info, factory)
}

// CreateSource builds a source from the global registry.
func CreateSource(name string, cfg *config.Config) (core.WritableSource, error) {
	return globalRegistry.CreateSource(name, cfg)
}

// CreateStore builds an object store from the global registry.
func CreateStore(name string, cfg *config.Config) (core.ObjectStore, error) {
	return globalRegistry.CreateStore(name, cfg)
}

// Sources describes the sources of the global registry.
func Sources() []Info {
	return globalRegistry.Sources()
}

// Stores describes the object stores of the global registry.
func Stores() []Info {
	return globalRegistry.Stores()
}
