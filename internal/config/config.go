package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/google"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/token"
)

// AppName names the config and data directories.
const AppName = "healthcal"

// DefaultRedirectURL is the callback the OAuth client is registered with.
const DefaultRedirectURL = "http://localhost:5175/oauth-callback"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete runtime configuration.
type Config struct {
	Google    GoogleConfig    `toml:"google"`
	Storage   StorageConfig   `toml:"storage"`
	Backend   BackendConfig   `toml:"backend"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// GoogleConfig describes the OAuth client and the Calendar API.
type GoogleConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURL  string   `toml:"redirect_url"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
	// CalendarEndpoint overrides the Calendar API base URL.
	CalendarEndpoint string `toml:"calendar_endpoint"`
	CalendarID       string `toml:"calendar_id"`
}

// StorageConfig selects the token storage backend.
type StorageConfig struct {
	Type string `toml:"type"`
	DSN  string `toml:"dsn"`
	Dir  string `toml:"dir"`
	// EncryptionKey is a base64 encoded 32 byte key. Empty disables encryption.
	EncryptionKey string `toml:"encryption_key"`
}

type BackendConfig struct {
	URL string `toml:"url"`
	// SessionToken is the backend account token printed by
	// 'healthcal account login'. It authorizes the chat endpoints.
	SessionToken string `toml:"session_token,omitempty"`
}

// ServerConfig configures the HTTP transport of the serve command.
type ServerConfig struct {
	HTTPAddr       string `toml:"http_addr"`
	MetricsAddr    string `toml:"metrics_addr"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

type LogConfig struct {
	Debug  bool   `toml:"debug"`
	Format string `toml:"format"`
}

type CalendarConfig struct {
	// WriteRate caps event writes per second. Zero or less disables the limit.
	WriteRate float64 `toml:"write_rate"`
	// PollInterval is how often the authorization window is checked.
	PollInterval Duration `toml:"poll_interval"`
}

// TelemetryConfig selects the exporters of the serve command.
type TelemetryConfig struct {
	Enabled         bool    `toml:"enabled"`
	MetricsExporter string  `toml:"metrics_exporter"`
	TracingExporter string  `toml:"tracing_exporter"`
	OTLPEndpoint    string  `toml:"otlp_endpoint"`
	OTLPInsecure    bool    `toml:"otlp_insecure"`
	SampleRate      float64 `toml:"sample_rate"`
	AuditLog        bool    `toml:"audit_log"`
}

// Duration is a time.Duration written as a string ("1s") in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Google: GoogleConfig{
			RedirectURL: DefaultRedirectURL,
			AuthURL:     google.DefaultAuthURL,
			TokenURL:    google.DefaultTokenURL,
			Scopes:      slices.Clone(google.CalendarScopes),
			CalendarID:  calendar.DefaultCalendarID,
		},
		Storage: StorageConfig{
			Type: token.BackendFile,
		},
		Backend: BackendConfig{URL: backend.DefaultBaseURL},
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			MetricsAddr:    ":9090",
			MetricsEnabled: true,
		},
		Log: LogConfig{Format: LogFormatText},
		Calendar: CalendarConfig{
			WriteRate:    calendar.DefaultWriteRate,
			PollInterval: Duration(time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:         true,
			MetricsExporter: instrumentation.ExporterPrometheus,
			TracingExporter: instrumentation.ExporterNone,
			SampleRate:      0.1,
			AuditLog:        true,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/healthcal/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.toml")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is the TOML file. Empty uses DefaultPath, which may be missing.
	// An explicit Path must exist.
	Path string
	// EnvFile is the dotenv file. Empty uses ".env" in the working directory.
	EnvFile string
	// Getenv reads the environment. Nil uses os.Getenv.
	Getenv func(string) string
}

// Load builds the configuration from defaults, the TOML file, the dotenv
// file and the environment, in that order. The result is not validated.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := opts.Path
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	cfg.ApplyEnv(func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	})
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	setString(getenv, "GOOGLE_CLIENT_ID", &c.Google.ClientID)
	setString(getenv, "GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	setString(getenv, "GOOGLE_REDIRECT_URI", &c.Google.RedirectURL)
	setString(getenv, "GOOGLE_AUTH_URL", &c.Google.AuthURL)
	setString(getenv, "GOOGLE_TOKEN_URL", &c.Google.TokenURL)
	setString(getenv, "GOOGLE_CALENDAR_ENDPOINT", &c.Google.CalendarEndpoint)
	setString(getenv, "HEALTHCAL_CALENDAR_ID", &c.Google.CalendarID)
	if v := getenv("GOOGLE_SCOPES"); v != "" {
		c.Google.Scopes = splitList(v)
	}

	setString(getenv, "HEALTHCAL_STORAGE", &c.Storage.Type)
	setString(getenv, "HEALTHCAL_STORAGE_DSN", &c.Storage.DSN)
	setString(getenv, "HEALTHCAL_STORAGE_DIR", &c.Storage.Dir)
	setString(getenv, "HEALTHCAL_ENCRYPTION_KEY", &c.Storage.EncryptionKey)

	setString(getenv, "HEALTHCAL_BACKEND_URL", &c.Backend.URL)
	setString(getenv, "HEALTHCAL_BACKEND_TOKEN", &c.Backend.SessionToken)

	setString(getenv, "HEALTHCAL_HTTP_ADDR", &c.Server.HTTPAddr)
	setString(getenv, "METRICS_ADDR", &c.Server.MetricsAddr)
	setBool(getenv, "METRICS_ENABLED", &c.Server.MetricsEnabled)

	setBool(getenv, "HEALTHCAL_DEBUG", &c.Log.Debug)
	setString(getenv, "HEALTHCAL_LOG_FORMAT", &c.Log.Format)

	if v := getenv("HEALTHCAL_WRITE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Calendar.WriteRate = f
		}
	}
	if v := getenv("HEALTHCAL_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Calendar.PollInterval = Duration(d)
		}
	}

	setBool(getenv, "INSTRUMENTATION_ENABLED", &c.Telemetry.Enabled)
	setString(getenv, "METRICS_EXPORTER", &c.Telemetry.MetricsExporter)
	setString(getenv, "TRACING_EXPORTER", &c.Telemetry.TracingExporter)
	setString(getenv, "OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	setBool(getenv, "OTEL_EXPORTER_OTLP_INSECURE", &c.Telemetry.OTLPInsecure)
	setBool(getenv, "AUDIT_LOGGING_ENABLED", &c.Telemetry.AuditLog)
	if v := getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Telemetry.SampleRate = f
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if !slices.Contains(token.Backends, c.Storage.Type) {
		return fmt.Errorf("invalid storage type %q, must be one of: %s", c.Storage.Type, strings.Join(token.Backends, ", "))
	}
	if c.Storage.Type == token.BackendPostgres && c.Storage.DSN == "" {
		return errors.New("storage DSN is required for postgres")
	}
	if c.Storage.EncryptionKey != "" {
		if _, err := token.KeyFromBase64(c.Storage.EncryptionKey); err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
	}

	if err := validateHTTPURL("redirect URI", c.Google.RedirectURL); err != nil {
		return err
	}
	if c.Google.CalendarEndpoint != "" {
		if err := validateHTTPURL("calendar endpoint", c.Google.CalendarEndpoint); err != nil {
			return err
		}
	}
	if err := validateHTTPURL("backend URL", c.Backend.URL); err != nil {
		return err
	}

	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format %q, must be one of: text, json", c.Log.Format)
	}
	if c.Calendar.PollInterval < 0 {
		return errors.New("poll interval must not be negative")
	}
	if c.Telemetry.Enabled {
		if err := c.Instrumentation("").Validate(); err != nil {
			return fmt.Errorf("invalid telemetry: %w", err)
		}
	}
	return nil
}

// RequireClient reports the missing OAuth client credentials, if any.
func (c *Config) RequireClient() error {
	var missing []string
	if c.Google.ClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing OAuth client configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// OAuthSettings converts the Google section for google.NewOAuthConfig.
func (c *Config) OAuthSettings() google.OAuthSettings {
	return google.OAuthSettings{
		ClientID:     c.Google.ClientID,
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  c.Google.RedirectURL,
		AuthURL:      c.Google.AuthURL,
		TokenURL:     c.Google.TokenURL,
		Scopes:       c.Google.Scopes,
	}
}

// OpenOptions converts the storage section for token.Open.
func (c *Config) OpenOptions() (token.OpenOptions, error) {
	key, err := token.KeyFromBase64(c.Storage.EncryptionKey)
	if err != nil {
		return token.OpenOptions{}, fmt.Errorf("invalid encryption key: %w", err)
	}
	return token.OpenOptions{
		Backend:       c.Storage.Type,
		DSN:           c.Storage.DSN,
		Dir:           c.Storage.Dir,
		EncryptionKey: key,
	}, nil
}

// Instrumentation converts the telemetry section for
// instrumentation.NewProvider.
func (c *Config) Instrumentation(version string) instrumentation.Config {
	return instrumentation.Config{
		ServiceVersion:  version,
		Enabled:         c.Telemetry.Enabled,
		MetricsExporter: c.Telemetry.MetricsExporter,
		TracingExporter: c.Telemetry.TracingExporter,
		OTLPEndpoint:    c.Telemetry.OTLPEndpoint,
		OTLPInsecure:    c.Telemetry.OTLPInsecure,
		SampleRate:      c.Telemetry.SampleRate,
		AuditLogging:    c.Telemetry.AuditLog,
	}
}

// Save writes the configuration as TOML, creating the directory with 0700.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", name, raw)
	}
	return nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setBool(getenv func(string) string, key string, dst *bool) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
}
