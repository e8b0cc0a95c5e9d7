// Package engine defines the uniform operation surface every backend
// implements (spec §4.1, component F), the process-wide name → factory
// registry (§4.2, component E), and the staged-batch transaction handle
// (§4.7, component J). Concrete backends (nvmkv/hls, nvmkv/hbt) register
// themselves here; callers only ever see this package's types.
package engine

import (
	"nvmkv/config"
	"nvmkv/iterator"
	"nvmkv/status"
)

// Visitor is re-exported for callers that don't want to import the
// iterator package directly.
type Visitor = iterator.Visitor

// Tx is a staged batch of put/remove operations on one engine instance
// (spec §3.7, §4.7). Mutations are invisible to readers until Commit;
// End without a prior Commit discards them. Re-use after Commit or End
// returns InvalidArgument.
type Tx interface {
	Put(key, value []byte) error
	Remove(key []byte) error
	Commit() error
	End() error
}

// Engine is the contract every backend implements (spec §4.1). Operations
// an engine does not support return a *status.Error with Kind
// status.NotSupported.
type Engine interface {
	// Name returns the engine's stable identifier ("fmap", "tree3", ...).
	Name() string

	Exists(key []byte) error
	Get(key []byte, sink func(value []byte)) error
	Put(key, value []byte) error
	Remove(key []byte) error

	CountAll() (uint64, error)
	GetAll(visitor Visitor) error

	// Ordered-only range operations; unordered engines return NotSupported.
	CountAbove(key []byte) (uint64, error)
	CountEqualAbove(key []byte) (uint64, error)
	CountBelow(key []byte) (uint64, error)
	CountEqualBelow(key []byte) (uint64, error)
	CountBetween(a, b []byte) (uint64, error)

	GetAbove(key []byte, visitor Visitor) error
	GetEqualAbove(key []byte, visitor Visitor) error
	GetBelow(key []byte, visitor Visitor) error
	GetEqualBelow(key []byte, visitor Visitor) error
	GetBetween(a, b []byte, visitor Visitor) error

	// Defrag is a hint; engines may treat it as a no-op.
	Defrag(startPct, endPct float64) error

	TxBegin() (Tx, error)
	NewReadIterator() (iterator.Reader, error)
	NewWriteIterator() (iterator.Writer, error)

	// Close unmaps the underlying region and releases resources.
	Close() error
}

// Factory constructs a concrete Engine from a validated Config.
type Factory func(cfg *config.Config) (Engine, error)

var registry = map[string]Factory{}

// Register adds a named factory to the process-wide registry (spec §4.2).
// Engine packages call this from an init() function.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Open looks up name in the registry, validates cfg, and invokes the
// factory, returning WrongEngineName if no such engine is registered.
func Open(name string, cfg *config.Config) (Engine, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, status.New(status.WrongEngineName, "engine: no engine registered with name %q", name)
	}
	if cfg == nil {
		return nil, status.New(status.InvalidArgument, "engine: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return factory(cfg)
}

// Registered reports whether name has a registered factory, without
// constructing anything.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}
