package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when --config is not given.
const DefaultConfigFile = "sprocheck.yaml"

// Config holds every setting of a run. Flags override values from the file.
type Config struct {
	// Module root of the analysed program
	Dir string `yaml:"dir"`

	// Package patterns; empty means every package of every module
	Patterns []string `yaml:"patterns"`

	// Additional module roots loaded through a temporary go.work
	Modules []string `yaml:"modules"`

	// Substring identifying the collaborator field and constructor parameter
	CollaboratorToken string `yaml:"collaborator_token"`

	// Type-name suffix of controllers
	ControllerSuffix string `yaml:"controller_suffix"`

	// Embedded types that make a struct a controller
	BaseControllers []string `yaml:"base_controllers"`

	// Procedure naming convention
	DefaultSchema   string  `yaml:"default_schema"`
	ProcedurePrefix *string `yaml:"procedure_prefix"`
	BindingInfix    string  `yaml:"binding_infix"`

	// Resolve collaborator calls through a VTA call graph as well
	Precise bool `yaml:"precise"`

	// Skip _test.go files when loading
	SkipTests bool `yaml:"skip_tests"`

	// Per-package extraction parallelism
	Parallelism int `yaml:"parallelism"`

	Database DatabaseConfig `yaml:"database"`
	Invoke   InvokeConfig   `yaml:"invoke"`
	Report   ReportConfig   `yaml:"report"`
}

// DatabaseConfig locates the catalog database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlserver" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// InvokeConfig controls synthetic invocation.
type InvokeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// ReportConfig names the report outputs; empty paths are not written.
type ReportConfig struct {
	SQLite string `yaml:"sqlite"`
	JSON   string `yaml:"json"`
}

var supportedDrivers = []string{"sqlserver", "sqlite"}

// DefaultConfig returns a configuration with the built-in defaults.
func DefaultConfig() *Config {
	ext := DefaultExtractOptions()
	return &Config{
		Dir:               ".",
		CollaboratorToken: ext.CollaboratorToken,
		ControllerSuffix:  ext.ControllerSuffix,
		BaseControllers:   ext.BaseControllers,
		DefaultSchema:     DefaultConvention.Schema,
		BindingInfix:      DefaultConvention.Infix,
		SkipTests:         true,
		Parallelism:       1,
		Database:          DatabaseConfig{Driver: "sqlserver"},
		Invoke: InvokeConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path reads
// DefaultConfigFile when it exists and returns the defaults otherwise.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings no run can use.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if strings.TrimSpace(c.CollaboratorToken) == "" {
		return fmt.Errorf("collaborator_token must not be empty")
	}
	if c.ControllerSuffix == "" && len(c.BaseControllers) == 0 {
		return fmt.Errorf("controller_suffix or base_controllers is required")
	}
	if c.BindingInfix == "" {
		return fmt.Errorf("binding_infix must not be empty")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	if c.Invoke.Concurrency < 0 {
		return fmt.Errorf("invoke.concurrency must not be negative")
	}
	if c.Invoke.Timeout < 0 {
		return fmt.Errorf("invoke.timeout must not be negative")
	}
	if c.Database.DSN != "" && !slices.Contains(supportedDrivers, c.Database.Driver) {
		return fmt.Errorf("database.driver %q is not one of %s", c.Database.Driver, strings.Join(supportedDrivers, ", "))
	}
	return nil
}

// ExtractOptions maps the configuration onto the surface extractor.
func (c *Config) ExtractOptions() ExtractOptions {
	return ExtractOptions{
		ControllerSuffix:  c.ControllerSuffix,
		BaseControllers:   c.BaseControllers,
		CollaboratorToken: c.CollaboratorToken,
		Convention:        c.Convention(),
		SkipTests:         c.SkipTests,
		Parallelism:       c.Parallelism,
	}
}

// Convention returns the configured naming convention. An unset prefix
// keeps the default; an explicit empty prefix disables it.
func (c *Config) Convention() ProcedureConvention {
	conv := ProcedureConvention{Schema: c.DefaultSchema, Prefix: DefaultConvention.Prefix, Infix: c.BindingInfix}
	if c.ProcedurePrefix != nil {
		conv.Prefix = *c.ProcedurePrefix
	}
	return conv
}

// InvokerOptions maps the invoke section.
func (c *Config) InvokerOptions() InvokerOptions {
	return InvokerOptions{Timeout: c.Invoke.Timeout, Concurrency: c.Invoke.Concurrency}
}

// ModuleSet resolves Dir and Modules to absolute module roots.
func (c *Config) ModuleSet() (*ModuleSet, error) {
	primary, err := moduleInfo(c.Dir)
	if err != nil {
		return nil, err
	}
	extras := make([]ModuleInfo, 0, len(c.Modules))
	for _, dir := range c.Modules {
		m, err := moduleInfo(dir)
		if err != nil {
			return nil, err
		}
		extras = append(extras, m)
	}
	return NewModuleSet(primary, extras), nil
}

func moduleInfo(dir string) (ModuleInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return ModuleInfo{}, fmt.Errorf("module dir: %w", err)
	}
	return ModuleInfo{ModPath: readModulePath(abs), Dir: abs}, nil
}
