package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nota/internal/ai"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/session"
	"github.com/starford/nota/internal/store"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Store   StoreConfig       `yaml:"store"`
	Auth    AuthConfig        `yaml:"auth"`
	AI      AIConfig          `yaml:"ai"`
	Session SessionConfig     `yaml:"session"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return c.Events.Validate()
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

// StoreConfig selects the note database.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverSQLite, store.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): every request acts as Owner, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty. Requests act as Owner.
//   - "jwt": HS256 Bearer JWTs signed with JWTSecret; the subject is the owner.
type AuthConfig struct {
	Mode      string        `yaml:"mode"`
	Token     string        `yaml:"token"`
	Owner     string        `yaml:"owner"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTIssuer string        `yaml:"jwt_issuer"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = auth.ModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(auth.ModeDisabled, auth.ModeToken, auth.ModeJWT)),
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.JWTTTL, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if c.Mode == auth.ModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", auth.ModeToken)
	}
	if c.Mode == auth.ModeJWT && c.JWTSecret == "" {
		return fmt.Errorf("auth: mode is %q but jwt_secret is empty", auth.ModeJWT)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode != auth.ModeDisabled
}

// Authenticator builds the request authenticator.
func (c *AuthConfig) Authenticator() *auth.Authenticator {
	return &auth.Authenticator{
		Mode:         c.Mode,
		Token:        c.Token,
		DefaultOwner: c.Owner,
		Secret:       []byte(c.JWTSecret),
		Issuer:       c.JWTIssuer,
	}
}

// AIConfig configures the language model provider. Model parameters per
// transform come from the prompt templates in PromptsDir.
type AIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	// PromptsDir holds optional summarize.md / enhance.md overrides. Empty
	// means built-in prompts only.
	PromptsDir string `yaml:"prompts_dir"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
	)
}

// Client returns the provider client configuration.
func (c *AIConfig) Client() ai.Config {
	return ai.Config{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// SessionConfig tunes editing sessions.
type SessionConfig struct {
	MinSummaryLength int           `yaml:"min_summary_length"`
	IdleTTL          time.Duration `yaml:"idle_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinSummaryLength, validation.Required, validation.Min(1)),
		validation.Field(&c.IdleTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
}

// EventsConfig tunes the live event stream.
type EventsConfig struct {
	InvalidateThrottle time.Duration `yaml:"invalidate_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	if c.InvalidateThrottle < 0 {
		return errors.New("events: invalidate_throttle must not be negative")
	}
	return nil
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
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			DSN:    "./nota.db",
		},
		Auth: AuthConfig{
			Mode:      auth.ModeDisabled,
			Owner:     "local",
			JWTIssuer: "nota",
			JWTTTL:    24 * time.Hour,
		},
		AI: AIConfig{
			BaseURL: ai.DefaultBaseURL,
			Model:   ai.DefaultModel,
			Timeout: ai.DefaultTimeout,
		},
		Session: SessionConfig{
			MinSummaryLength: session.DefaultMinSummaryLength,
			IdleTTL:          30 * time.Minute,
			SweepInterval:    time.Minute,
		},
		Events: EventsConfig{
			InvalidateThrottle: 2 * time.Second,
		},
	}
}
