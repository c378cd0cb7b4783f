// Package config loads and saves the optional `.workmesh.toml` file at a
// repository root (spec §3.9). It follows the layered-resolution,
// environment-override pattern of the reference codebase's viper-based
// config loader, but reads TOML via github.com/BurntSushi/toml instead of
// YAML via viper: the spec's config surface (a branch→initiative map, a
// do-not-migrate flag) is small enough that a thin reader/writer over a
// single file serves better than a full layered-merge library, and TOML is
// what the spec's own schema names.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"
)

// FileName is the config file's name at the repository root.
const FileName = ".workmesh.toml"

// Environment overrides, mirroring the reference codebase's BD_* binding
// translated onto WORKMESH_*.
const (
	envRootDir      = "WORKMESH_ROOT_DIR"
	envDoNotMigrate = "WORKMESH_DO_NOT_MIGRATE"
)

// Config is the parsed contents of .workmesh.toml.
type Config struct {
	RootDir           string            `toml:"root_dir,omitempty"`
	DoNotMigrate      bool              `toml:"do_not_migrate,omitempty"`
	Initiatives       []string          `toml:"initiatives,omitempty"`
	BranchInitiatives map[string]string `toml:"branch_initiatives,omitempty"`

	// SchemaVersion is a supplementary field (SPEC_FULL.md "Supplementary
	// Features") validated with golang.org/x/mod/semver; absent from the
	// distilled spec's §3.9 field list.
	SchemaVersion string `toml:"schema_version,omitempty"`

	path string
}

// Path returns the config file path this Config was loaded from or would be
// saved to.
func (c *Config) Path() string {
	return c.path
}

// Load reads .workmesh.toml at repoRoot, applying WORKMESH_* environment
// overrides on top. Returns (nil, nil) if no file exists — config is
// optional everywhere it's consulted.
func Load(repoRoot string) (*Config, error) {
	path := filepath.Join(repoRoot, FileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	cfg := &Config{path: path}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envRootDir); v != "" {
		cfg.RootDir = v
	}
	if v := strings.ToLower(os.Getenv(envDoNotMigrate)); v == "1" || v == "true" {
		cfg.DoNotMigrate = true
	}
}

// Save writes cfg back to repoRoot/.workmesh.toml atomically (temp file +
// rename).
func Save(repoRoot string, cfg *Config) error {
	path := filepath.Join(repoRoot, FileName)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-workmesh-toml-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	cfg.path = path
	return os.Rename(tmpPath, path)
}

// ValidSchemaVersion reports whether cfg's SchemaVersion (if set) is a
// well-formed semantic version understood by golang.org/x/mod/semver. An
// empty SchemaVersion is considered valid (the field is optional).
func ValidSchemaVersion(cfg *Config) bool {
	if cfg == nil || cfg.SchemaVersion == "" {
		return true
	}
	v := cfg.SchemaVersion
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}

// SetBranchInitiative records branch -> initiative in cfg and persists it,
// also adding initiative to the known Initiatives list if new.
func SetBranchInitiative(repoRoot string, cfg *Config, branch, initiative string) error {
	if cfg.BranchInitiatives == nil {
		cfg.BranchInitiatives = map[string]string{}
	}
	cfg.BranchInitiatives[branch] = initiative
	found := false
	for _, existing := range cfg.Initiatives {
		if existing == initiative {
			found = true
			break
		}
	}
	if !found {
		cfg.Initiatives = append(cfg.Initiatives, initiative)
	}
	return Save(repoRoot, cfg)
}
