package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/mynotes/internal/identity"
	"github.com/starford/mynotes/internal/notes"
	"github.com/starford/mynotes/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Storage  StorageConfig     `yaml:"storage"`
	Identity IdentityConfig    `yaml:"identity"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// StorageConfig holds the local notes database configuration.
//
// An empty Dir means the per-user data directory ($XDG_DATA_HOME/mynotes).
type StorageConfig struct {
	Dir                string       `yaml:"dir"`
	FileName           string       `yaml:"file_name"`
	Driver             store.Driver `yaml:"driver"`
	CascadeDeleteUsers bool         `yaml:"cascade_delete_users"`
	WatchExternal      bool         `yaml:"watch_external"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FileName, validation.Required),
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverCGO, store.DriverPure)),
	)
}

// ServiceOptions converts the configuration into notes service options.
func (c *StorageConfig) ServiceOptions(logger *slog.Logger) []notes.Option {
	opts := []notes.Option{
		notes.WithFileName(c.FileName),
		notes.WithDriver(c.Driver),
		notes.WithCascadeDelete(c.CascadeDeleteUsers),
		notes.WithLogger(logger),
	}
	if c.Dir != "" {
		opts = append(opts, notes.WithDir(c.Dir))
	}
	return opts
}

// IdentityConfig holds the identity service configuration.
type IdentityConfig struct {
	APIKey        string          `yaml:"api_key"`
	Endpoint      string          `yaml:"endpoint"`
	TokenEndpoint string          `yaml:"token_endpoint"`
	Timeout       time.Duration   `yaml:"timeout"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles outgoing identity requests. Zero disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Validate validates the identity configuration. The API key may be empty;
// the auth machine then reports an error on Initialize.
func (c *IdentityConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.TokenEndpoint, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.RateLimit,
		validation.Field(&c.RateLimit.PerSecond, validation.Min(0.0)),
		validation.Field(&c.RateLimit.Burst, validation.Min(0)),
	)
}

// ClientConfig converts the configuration into an identity client config.
func (c *IdentityConfig) ClientConfig() identity.Config {
	return identity.Config{
		APIKey:        c.APIKey,
		Endpoint:      c.Endpoint,
		TokenEndpoint: c.TokenEndpoint,
		Timeout:       c.Timeout,
		RatePerSecond: c.RateLimit.PerSecond,
		RateBurst:     c.RateLimit.Burst,
	}
}

// AuthConfig holds local API authentication configuration.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			FileName:           notes.DefaultFileName,
			Driver:             store.DriverCGO,
			CascadeDeleteUsers: true,
			WatchExternal:      true,
		},
		Identity: IdentityConfig{
			Endpoint:      identity.DefaultEndpoint,
			TokenEndpoint: identity.DefaultTokenEndpoint,
			Timeout:       identity.DefaultTimeout,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
