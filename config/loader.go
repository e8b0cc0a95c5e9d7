package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML-serializable shape of Config, mirroring the
// teacher's build-config loader (config/build_config_loader.go): typed
// fields tagged for both YAML and an environment-variable override, loaded
// in two passes (file, then env). engine.Open itself never sees this type —
// only the resolved Config — keeping YAML parsing an external collaborator
// per spec §1/§6.
type FileConfig struct {
	Path                  string `yaml:"path" env:"NVMKV_PATH"`
	Size                  uint64 `yaml:"size" env:"NVMKV_SIZE"`
	CreateIfMissing       bool   `yaml:"create_if_missing" env:"NVMKV_CREATE_IF_MISSING"`
	CreateOrErrorIfExists bool   `yaml:"create_or_error_if_exists" env:"NVMKV_CREATE_OR_ERROR_IF_EXISTS"`
	ForceCreate           bool   `yaml:"force_create" env:"NVMKV_FORCE_CREATE"`
}

// LoadFile reads a YAML document at path into a FileConfig, then applies any
// matching environment variable overrides.
func LoadFile(path string) (*FileConfig, error) {
	fc := &FileConfig{}
	data, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(data, fc); uerr != nil {
			return nil, uerr
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	applyEnvOverrides(fc)
	return fc, nil
}

func applyEnvOverrides(fc *FileConfig) {
	if v, ok := os.LookupEnv("NVMKV_PATH"); ok {
		fc.Path = v
	}
	if v, ok := os.LookupEnv("NVMKV_SIZE"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			fc.Size = n
		}
	}
	if v, ok := os.LookupEnv("NVMKV_CREATE_IF_MISSING"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			fc.CreateIfMissing = b
		}
	}
	if v, ok := os.LookupEnv("NVMKV_CREATE_OR_ERROR_IF_EXISTS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			fc.CreateOrErrorIfExists = b
		}
	}
	if v, ok := os.LookupEnv("NVMKV_FORCE_CREATE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			fc.ForceCreate = b
		}
	}
}

// ToConfig converts a loaded FileConfig into the engine-facing Config.
// Comparator is never loaded from YAML/env — it is a Go object installed by
// the caller after loading.
func (fc *FileConfig) ToConfig() *Config {
	return &Config{
		Path:                  fc.Path,
		Size:                  fc.Size,
		CreateIfMissing:       fc.CreateIfMissing,
		CreateOrErrorIfExists: fc.CreateOrErrorIfExists,
		ForceCreate:           fc.ForceCreate,
	}
}
