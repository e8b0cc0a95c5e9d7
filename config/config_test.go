package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAtMostOnePathOrOID(t *testing.T) {
	c := &Config{Path: "/tmp/a", OID: 5}
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRequiresOne(t *testing.T) {
	c := &Config{}
	require.Error(t, c.Validate())
}

func TestForceCreateAlias(t *testing.T) {
	c := &Config{Path: "/tmp/a", ForceCreate: true, Size: 1024}
	assert.True(t, c.EffectiveCreateOrError())
	require.NoError(t, c.Validate())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("path: /tmp/pool\nsize: 1048576\ncreate_if_missing: true\n"), 0o644))

	fc, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pool", fc.Path)
	assert.EqualValues(t, 1048576, fc.Size)
	assert.True(t, fc.CreateIfMissing)

	t.Setenv("NVMKV_SIZE", "2097152")
	fc2, err := LoadFile(p)
	require.NoError(t, err)
	assert.EqualValues(t, 2097152, fc2.Size)
}
