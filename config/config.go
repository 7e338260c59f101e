// Package config loads the settings shared by the kakao-link CLI and any
// program embedding the share client.
//
// Files ending in .yaml or .yml are read as YAML; everything else is JSON,
// where comments and trailing commas are tolerated.  Unknown keys are an
// error in both formats so typos surface at startup.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Transport profiles understood by the client package.
const (
	ProfileStandard = "standard"
	ProfileChrome   = "chrome"
)

var originPattern = regexp.MustCompile(`^https?://.+`)

// Config holds every tunable of a share run.  Load it once and treat it as
// read-only afterwards.
type Config struct {
	// AppKey is the 32-character JavaScript key of the registered app.
	AppKey string `json:"app_key" yaml:"app_key"`

	// Origin is the web domain registered for AppKey, e.g.
	// "https://app.example".  The picker rejects shares from other origins.
	Origin string `json:"origin" yaml:"origin"`

	// Email is the account to log in with.  The password is never stored in
	// config; it comes from a flag or the OS keyring.
	Email string `json:"email" yaml:"email"`

	// TemplateType is the validation_action sent to the picker.  Empty means
	// "default".
	TemplateType string `json:"template_type" yaml:"template_type"`

	// RequestTimeout bounds each HTTP exchange, connection setup included.
	// Accepts "30s"-style strings or integer nanoseconds.
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`

	// Profile selects the transport: "standard" (net/http) or "chrome"
	// (uTLS Chrome ClientHello over HTTP/2).
	Profile string `json:"profile" yaml:"profile"`

	// Proxy is a single proxy URL.  Ignored when ProxyFile is set.
	Proxy string `json:"proxy" yaml:"proxy"`

	// ProxyFile is a newline-delimited proxy list; one entry is picked per
	// client in rotation.
	ProxyFile string `json:"proxy_file" yaml:"proxy_file"`

	// RateLimit caps outbound requests per second per client.  Zero
	// disables limiting.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the limiter's burst size; at least 1 when RateLimit > 0.
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`

	// MaxIdleConns, MaxIdleConnsPerHost and MaxConnsPerHost size the
	// standard transport's connection pool.
	MaxIdleConns        int `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int `json:"max_conns_per_host" yaml:"max_conns_per_host"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// TolerantBeacon lets login continue when the telemetry beacon request
	// fails instead of aborting.
	TolerantBeacon bool `json:"tolerant_beacon" yaml:"tolerant_beacon"`
}

// Duration is a time.Duration that decodes from "1m30s" strings as well as
// integer nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes d in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %s", b)
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// LoadConfig reads filename from the OS filesystem.  See LoadConfigFS.
func LoadConfig(filename string) (*Config, error) {
	return LoadConfigFS(afero.NewOsFs(), filename)
}

// LoadConfigFS reads filename from fs and overlays it on DefaultConfig, so
// keys missing from the file keep their defaults.
func LoadConfigFS(fs afero.Fs, filename string) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", filename, err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %q: %w", filename, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %q: %w", filename, err)
		}
	}
	return cfg, nil
}

// DefaultConfig returns a *Config with sensible defaults and no credentials.
// Each call returns a fresh copy.
func DefaultConfig() *Config {
	return &Config{
		TemplateType:        "default",
		RequestTimeout:      Duration(30 * time.Second),
		Profile:             ProfileStandard,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		LogLevel:            "info",
	}
}

// Validate reports the first setting that cannot work.  AppKey and Origin
// are checked with the same rules the session client applies.
func (c *Config) Validate() error {
	if len(c.AppKey) != 32 {
		return fmt.Errorf("config: app_key must be 32 characters, got %d", len(c.AppKey))
	}
	if !originPattern.MatchString(c.Origin) {
		return fmt.Errorf("config: origin %q must be an http(s) URL", c.Origin)
	}
	switch c.Profile {
	case "", ProfileStandard, ProfileChrome:
	default:
		return fmt.Errorf("config: unknown profile %q", c.Profile)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("config: request_timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must not be negative")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConnsPerHost < 0 || c.MaxConnsPerHost < 0 {
		return fmt.Errorf("config: connection pool sizes must not be negative")
	}
	return nil
}
