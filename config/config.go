// Package config holds the typed option bag consumed by an engine factory
// (spec §3.3).
package config

import (
	"fmt"

	"nvmkv/comparator"
	"nvmkv/status"
)

// OID is a persistent-object handle: an existing, already-mapped region a
// caller may hand in as the root instead of (or in place of) Path (spec
// §3.3 "oid"). Zero means "none supplied".
type OID uint64

// Config is the typed bag of options recognized by engine factories. Unknown
// keys passed through higher-level loaders are accepted silently; required
// options missing are rejected by Validate with InvalidArgument.
type Config struct {
	// Path is the filesystem path to the pool file (created or opened).
	Path string
	// Size is the requested region size in bytes when creating.
	Size uint64
	// CreateIfMissing creates the file if absent, opens it if present.
	CreateIfMissing bool
	// CreateOrErrorIfExists creates the file, failing if it already exists.
	CreateOrErrorIfExists bool
	// ForceCreate is the deprecated alias of CreateOrErrorIfExists (spec §9).
	ForceCreate bool
	// OID, if non-zero, names an existing persistent-object handle in place
	// of Path. The hls and hbt engines do not open a region from it.
	OID OID
	// Comparator installs a custom three-way key order (ordered engines
	// only). Nil selects the default lexicographic comparator.
	Comparator *comparator.Comparator
}

// Validate enforces spec §3.3's structural rules: at most one of {Path, OID},
// and the deprecated/canonical create-or-error flags must agree if both are
// given.
func (c *Config) Validate() error {
	if c.Path != "" && c.OID != 0 {
		return status.New(status.InvalidArgument, "config: at most one of path, oid may be set")
	}
	if c.Path == "" && c.OID == 0 {
		return status.New(status.InvalidArgument, "config: one of path, oid is required")
	}
	if c.ForceCreate != c.CreateOrErrorIfExists && c.ForceCreate {
		// force_create set true but create_or_error_if_exists explicitly
		// false is a conflicting specification (spec §9).
		return status.New(status.InvalidArgument, "config: force_create conflicts with create_or_error_if_exists")
	}
	if c.CreateOrErrorIfExists && c.CreateIfMissing {
		return status.New(status.InvalidArgument, "config: create_if_missing and create_or_error_if_exists are mutually exclusive")
	}
	if c.CreateOrErrorIfExists && c.Size == 0 {
		return status.New(status.InvalidArgument, "config: size is required when creating")
	}
	return nil
}

// EffectiveCreateOrError resolves the force_create/create_or_error_if_exists
// alias pair to a single boolean.
func (c *Config) EffectiveCreateOrError() bool {
	return c.CreateOrErrorIfExists || c.ForceCreate
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Path:%q Size:%d CreateIfMissing:%v CreateOrErrorIfExists:%v OID:%d Comparator:%q}",
		c.Path, c.Size, c.CreateIfMissing, c.EffectiveCreateOrError(), c.OID, c.Comparator.Name())
}
