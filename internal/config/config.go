// Package config loads settings for the chart tooling from struct defaults,
// an optional YAML file, ASTRO_CHART__* environment variables and command
// line flags, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/astronomer/astronomer/internal/logging"
	"github.com/astronomer/astronomer/internal/schema"
	"github.com/astronomer/astronomer/internal/versions"
)

// EnvPrefix is the prefix of environment variables read by the loader.
// Double underscores nest: ASTRO_CHART__CHART__KUBE_VERSION -> chart.kube_version.
const EnvPrefix = "ASTRO_CHART"

const (
	RendererCLI    = "cli"
	RendererEngine = "engine"
)

// ChartConfig selects the chart and how it is rendered.
type ChartConfig struct {
	Dir         string `koanf:"dir"`
	ReleaseName string `koanf:"release_name"`
	KubeVersion string `koanf:"kube_version"`
	BaseDomain  string `koanf:"base_domain"`
	Namespace   string `koanf:"namespace"`
	Renderer    string `koanf:"renderer"`
	HelmBinary  string `koanf:"helm_binary"`
}

// SchemaConfig controls Kubernetes JSON schema validation.
type SchemaConfig struct {
	Validate bool   `koanf:"validate"`
	CacheDir string `koanf:"cache_dir"`
	BaseURL  string `koanf:"base_url"`
}

// MetricsConfig controls the optional metrics text file.
type MetricsConfig struct {
	File string `koanf:"file"`
}

// Config is the complete tooling configuration.
type Config struct {
	Chart   ChartConfig    `koanf:"chart"`
	Schema  SchemaConfig   `koanf:"schema"`
	Log     logging.Config `koanf:"log"`
	Metrics MetricsConfig  `koanf:"metrics"`
	// Debug keeps temporary values files and prints helm command lines.
	Debug bool `koanf:"debug"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Chart: ChartConfig{
			Dir:         ".",
			ReleaseName: "release-name",
			KubeVersion: versions.Default(),
			BaseDomain:  "example.com",
			Renderer:    RendererCLI,
			HelmBinary:  "helm",
		},
		Schema: SchemaConfig{
			Validate: true,
			CacheDir: schema.DefaultCacheDir(),
			BaseURL:  schema.DefaultBaseURL,
		},
		Log: logging.Defaults(),
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{RendererCLI, RendererEngine}, c.Chart.Renderer) {
		errs = append(errs, fmt.Errorf("chart.renderer: must be one of [%s %s], got %q", RendererCLI, RendererEngine, c.Chart.Renderer))
	}
	if c.Chart.ReleaseName == "" {
		errs = append(errs, errors.New("chart.release_name: must not be empty"))
	}
	if _, err := versions.Normalize(c.Chart.KubeVersion); err != nil {
		errs = append(errs, fmt.Errorf("chart.kube_version: %w", err))
	}
	if c.Schema.Validate && c.Schema.CacheDir == "" {
		errs = append(errs, errors.New("schema.cache_dir: required when schema.validate is set"))
	}
	return errors.Join(errs...)
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

// NewLoader creates a new configuration loader for the given environment prefix.
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		k:         koanf.New("."),
		envPrefix: envPrefix + "__",
	}
}

// LoadWithDefaults loads, highest priority first: environment variables,
// the YAML config file (if configPath is set), and struct defaults.
func (l *Loader) LoadWithDefaults(defaults any, configPath string) error {
	if defaults != nil {
		if err := l.k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
			return fmt.Errorf("failed to load defaults: %w", err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file not found: %s", configPath)
		}
		if err := l.k.Load(file.Provider(configPath), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	envProvider := env.Provider(l.envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := l.k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	// DEBUG=yes|true|1 has always switched on debug output for the chart tests.
	if debugEnv := strings.ToLower(os.Getenv("DEBUG")); slices.Contains([]string{"yes", "true", "1"}, debugEnv) {
		if err := l.k.Set("debug", true); err != nil {
			return err
		}
	}

	return nil
}

// LoadFlags applies CLI flag overrides using explicit mappings.
// Only flags that were explicitly set by the user are applied.
func (l *Loader) LoadFlags(flags *pflag.FlagSet, mappings map[string]string) error {
	var errs []error
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := mappings[f.Name]; ok {
			if err := l.k.Set(key, f.Value.String()); err != nil {
				errs = append(errs, fmt.Errorf("flag %s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// Unmarshal unmarshals the loaded configuration into out.
func (l *Loader) Unmarshal(path string, out any) error {
	return l.k.Unmarshal(path, out)
}

// DumpYAML writes the loaded configuration as YAML.
func (l *Loader) DumpYAML(w io.Writer) error {
	data, err := yaml.Marshal(l.k.Raw())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Load is the usual entry point: defaults, file, env and flags, then validation.
func Load(configPath string, flags *pflag.FlagSet, mappings map[string]string) (*Config, error) {
	loader := NewLoader(EnvPrefix)
	if err := loader.LoadWithDefaults(Defaults(), configPath); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, mappings); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := loader.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
