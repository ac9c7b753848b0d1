package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/denote-reconcile/internal/allocator"
	"github.com/starford/denote-reconcile/internal/reconcile"
	"github.com/starford/denote-reconcile/internal/resolver"
	"github.com/starford/denote-reconcile/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Corpus    CorpusConfig      `yaml:"corpus"`
	Journal   JournalConfig     `yaml:"journal"`
	Auth      AuthConfig        `yaml:"auth"`
	Schema    SchemaConfig      `yaml:"schema"`
	Resolver  ResolverConfig    `yaml:"resolver"`
	Allocator AllocatorConfig   `yaml:"allocator"`
	Watch     WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Corpus, &c.Auth, &c.Schema, &c.Resolver, &c.Allocator, &c.Watch} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileOptions converts the configuration into pass options.
func (c *Config) ReconcileOptions(dryRun bool) reconcile.Options {
	return reconcile.Options{
		DryRun: dryRun,
		Schema: reconcile.Schema{
			DeprecatedFields: c.Schema.DeprecatedFields,
			LegacyCounters:   c.Schema.LegacyCounters,
			ObsoleteFields:   c.Schema.ObsoleteFields,
			SyncTags:         c.Schema.SyncTags,
		},
		Aliases:     c.Resolver.Aliases,
		MaxProbe:    c.Allocator.MaxProbeSeconds,
		SpecVersion: c.Corpus.SpecVersion,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig locates the note directory and its index counter.
type CorpusConfig struct {
	Path        string `yaml:"path"`
	CounterFile string `yaml:"counter_file"`
	SpecVersion string `yaml:"spec_version"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.CounterFile, validation.Required, validation.By(plainName)),
		validation.Field(&c.SpecVersion, validation.Required),
	)
}

// plainName rejects names that would place the counter outside the corpus
// directory.
func plainName(v any) error {
	s, _ := v.(string)
	if s != filepath.Base(s) || s == "." || s == ".." {
		return errors.New("must be a plain file name")
	}
	return nil
}

// JournalConfig holds the pass journal database location. An empty path
// disables the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether passes are recorded.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// SchemaConfig lists the frontmatter fields normalization removes.
type SchemaConfig struct {
	DeprecatedFields []string `yaml:"deprecated_fields"`
	LegacyCounters   []string `yaml:"legacy_counters"`
	ObsoleteFields   []string `yaml:"obsolete_fields"`
	SyncTags         bool     `yaml:"sync_tags"`
}

// protectedFields are written by the reconciler and may not be listed for
// removal.
var protectedFields = []any{"title", "type", "index_id", "project_id", "tags"}

// Validate validates the schema configuration.
func (c *SchemaConfig) Validate() error {
	field := validation.Each(validation.Required, validation.NotIn(protectedFields...))
	return validation.ValidateStruct(c,
		validation.Field(&c.DeprecatedFields, field),
		validation.Field(&c.LegacyCounters, field),
		validation.Field(&c.ObsoleteFields, field),
	)
}

// ResolverConfig holds the keyword alias table. Keys name a project by
// identifier or slug.
type ResolverConfig struct {
	Aliases resolver.Aliases `yaml:"aliases"`
}

// Validate validates the resolver configuration.
func (c *ResolverConfig) Validate() error {
	for project, keywords := range c.Aliases {
		if strings.TrimSpace(project) == "" {
			return errors.New("resolver: alias table has an empty project key")
		}
		if err := validation.Validate(keywords, validation.Required, validation.Each(validation.Required)); err != nil {
			return fmt.Errorf("resolver: aliases for %q: %w", project, err)
		}
	}
	return nil
}

// AllocatorConfig bounds identifier deduplication.
type AllocatorConfig struct {
	MaxProbeSeconds int `yaml:"max_probe_seconds"`
}

// Validate validates the allocator configuration.
func (c *AllocatorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxProbeSeconds, validation.Required, validation.Min(1)),
	)
}

// WatchConfig holds watcher settings. Enabled applies to serve; the watch
// command always watches.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	schema := reconcile.DefaultSchema()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Path:        "./notes",
			CounterFile: allocator.CounterFile,
			SpecVersion: allocator.SpecVersion,
		},
		Journal: JournalConfig{
			Path: "./denote-reconcile.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Schema: SchemaConfig{
			DeprecatedFields: schema.DeprecatedFields,
			LegacyCounters:   schema.LegacyCounters,
			ObsoleteFields:   schema.ObsoleteFields,
		},
		Allocator: AllocatorConfig{
			MaxProbeSeconds: allocator.DefaultMaxProbe,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: watch.DefaultDebounce,
		},
	}
}
