package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var extensionRe = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

func init() {
	// Name invalid fields by their config file keys.
	validation.ErrorTag = "yaml"
}

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Build       BuildConfig       `yaml:"build"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Status      StatusConfig      `yaml:"status"`
	History     HistoryConfig     `yaml:"history"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Build.Validate(); err != nil {
		return err
	}
	if err := c.Interpreter.Validate(); err != nil {
		return err
	}
	if err := c.Status.Validate(); err != nil {
		return err
	}
	return c.History.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// BuildConfig describes what is bundled and where it goes.
type BuildConfig struct {
	// Entry is the directory scanned (one-shot) or watched (watch mode).
	Entry string `yaml:"entry"`
	// Output is the bundle path; empty means bundle<extension> in the
	// working directory.
	Output      string        `yaml:"output"`
	Extension   string        `yaml:"extension"`
	Watch       bool          `yaml:"watch"`
	Debounce    time.Duration `yaml:"debounce"`
	Concurrency int           `yaml:"concurrency"`
	// Ignore holds extra doublestar patterns, relative to Entry.
	Ignore   []string `yaml:"ignore"`
	ShowDiff bool     `yaml:"show_diff"`
}

// Validate validates the build configuration, fills in the default output
// path and makes Entry and Output absolute.
func (c *BuildConfig) Validate() error {
	if c.Output == "" && c.Extension != "" {
		c.Output = "bundle" + c.Extension
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Entry, validation.Required),
		validation.Field(&c.Output, validation.Required),
		validation.Field(&c.Extension, validation.Required, validation.Match(extensionRe)),
		validation.Field(&c.Debounce, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Concurrency, validation.Min(0)),
		validation.Field(&c.Ignore, validation.Each(validation.By(validPattern))),
	); err != nil {
		return err
	}

	entry, err := filepath.Abs(c.Entry)
	if err != nil {
		return fmt.Errorf("config: %w: %s: %w", apperr.ErrInvalidEntry, c.Entry, err)
	}
	info, err := os.Stat(entry)
	if err != nil {
		return fmt.Errorf("config: %w: %s: %w", apperr.ErrInvalidEntry, c.Entry, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: %w: %s is not a directory", apperr.ErrInvalidEntry, c.Entry)
	}
	c.Entry = entry

	if c.Output, err = filepath.Abs(c.Output); err != nil {
		return fmt.Errorf("config: output: %w", err)
	}
	return nil
}

func validPattern(v any) error {
	s, _ := v.(string)
	if !doublestar.ValidatePattern(s) {
		return errors.New("invalid glob pattern")
	}
	return nil
}

// InterpreterConfig describes the external interpreter used for validation.
type InterpreterConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Name is the interpreter name as printed in its diagnostics,
	// e.g. "VBScript" in "Microsoft VBScript runtime error".
	Name string `yaml:"name"`
}

// Validate validates the interpreter configuration.
func (c *InterpreterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.Name, validation.Required),
	)
}

// StatusConfig holds the watch-mode status API configuration.
type StatusConfig struct {
	Enabled bool       `yaml:"enabled"`
	HTTP    HTTPConfig `yaml:"http"`
	Auth    AuthConfig `yaml:"auth"`
}

// Validate validates the status configuration. Nothing is checked while
// the API is disabled.
func (c *StatusConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// HistoryConfig holds the SQLite build history configuration.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Build: BuildConfig{
			Entry:     ".",
			Extension: models.DefaultExtension,
			Debounce:  watcher.DefaultDebounce,
		},
		Interpreter: InterpreterConfig{
			Command: "cscript.exe",
			Args:    []string{"//NoLogo"},
			Name:    "VBScript",
		},
		Status: StatusConfig{
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
		History: HistoryConfig{
			Path: "./vbsb.db",
		},
	}
}
