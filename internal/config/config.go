// Package config loads and validates the availsync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIURL is the base URL of the PMS backend that fronts the channel
	// manager (e.g. "https://pms.example.com").
	APIURL string `yaml:"api_url"`

	// APIToken is the bearer token sent with every API and push request.
	APIToken string `yaml:"api_token"`

	// PropertyID selects the property whose calendar is synchronised.
	PropertyID int64 `yaml:"property_id"`

	// RequestTimeout bounds each request/response call. Defaults to 30s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ListenAddr is where the daemon serves its local control API.
	// Defaults to "127.0.0.1:8787".
	ListenAddr string `yaml:"listen_addr"`

	// CachePath is the SQLite cell cache. Empty uses the default data path.
	CachePath string `yaml:"cache_path"`

	// FallbackSchedule is a cron spec for the safety-net refresh that runs
	// regardless of the push channel. Defaults to "@every 5m"; "off" disables.
	FallbackSchedule string `yaml:"fallback_schedule"`

	Push     PushConfig     `yaml:"push"`
	Calendar CalendarConfig `yaml:"calendar"`
	Delays   DelaysConfig   `yaml:"delays"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// PushConfig selects the push event channel.
type PushConfig struct {
	// URL of the event stream. Defaults to <api_url>/api/channel-manager/events.
	URL string `yaml:"url"`

	// Transport is "sse" (default) or "websocket".
	Transport string `yaml:"transport"`
}

// CalendarConfig shapes the calendar window.
type CalendarConfig struct {
	// WindowDays is the window length and the navigation period. 1..92,
	// defaults to 14.
	WindowDays int `yaml:"window_days"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start"`
}

// DelaysConfig holds the settle delays before reconciling re-fetches.
// Zero values take the defaults.
type DelaysConfig struct {
	EditRefetch         time.Duration `yaml:"edit_refetch"`
	SyncRefetch         time.Duration `yaml:"sync_refetch"`
	BulkRefetch         time.Duration `yaml:"bulk_refetch"`
	AvailabilityRefetch time.Duration `yaml:"availability_refetch"`
	SessionDisplay      time.Duration `yaml:"session_display"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "availsync".
	ServiceName string `yaml:"service_name"`

	// Headers are sent as gRPC metadata on every OTLP request, e.g.
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`

	// MetricInterval is the metric export period. Zero keeps the SDK default.
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// DefaultPath returns the default config file path: ~/.config/availsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "availsync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write validates c and saves it as YAML to path with owner-only
// permissions, creating the parent directory if needed.
func (c *Config) Write(path string) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var doc yaml.Node
	if err := doc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	durationsAsStrings(&doc)
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// durationKeys are the keys whose values are time.Duration. yaml.v3 encodes
// a Duration as integer nanoseconds but only decodes the string form.
var durationKeys = map[string]bool{
	"request_timeout":      true,
	"edit_refetch":         true,
	"sync_refetch":         true,
	"bulk_refetch":         true,
	"availability_refetch": true,
	"session_display":      true,
	"metric_interval":      true,
}

func durationsAsStrings(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if durationKeys[k.Value] && v.Kind == yaml.ScalarNode && v.Tag == "!!int" {
				if ns, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					v.Tag = "!!str"
					v.Value = time.Duration(ns).String()
				}
			}
		}
	}
	for _, c := range n.Content {
		durationsAsStrings(c)
	}
}

// WeekStartDay returns the configured week boundary.
func (c *Config) WeekStartDay() time.Weekday {
	if c.Calendar.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// PushURL returns the push event stream URL.
func (c *Config) PushURL() string {
	if c.Push.URL != "" {
		return c.Push.URL
	}
	return strings.TrimRight(c.APIURL, "/") + "/api/channel-manager/events"
}

// FallbackEnabled reports whether the cron safety-net refresh runs.
func (c *Config) FallbackEnabled() bool {
	return c.FallbackSchedule != "off"
}

// validate checks that all required fields are present and well-formed, and
// fills in defaults.
func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_url %q must be a valid http or https URL", c.APIURL)
	}

	if c.APIToken == "" {
		return fmt.Errorf("api_token is required")
	}
	if c.PropertyID <= 0 {
		return fmt.Errorf("property_id must be a positive integer")
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RequestTimeout < time.Second {
		return fmt.Errorf("request_timeout %v is too short (minimum 1s)", c.RequestTimeout)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8787"
	}

	if c.FallbackSchedule == "" {
		c.FallbackSchedule = "@every 5m"
	}
	if c.FallbackEnabled() {
		if _, err := cron.ParseStandard(c.FallbackSchedule); err != nil {
			return fmt.Errorf("fallback_schedule %q: %w", c.FallbackSchedule, err)
		}
	}

	switch c.Push.Transport {
	case "":
		c.Push.Transport = "sse"
	case "sse", "websocket":
	default:
		return fmt.Errorf("push.transport %q must be sse or websocket", c.Push.Transport)
	}
	if c.Push.URL != "" {
		if _, err := url.ParseRequestURI(c.Push.URL); err != nil {
			return fmt.Errorf("push.url %q is not a valid URL", c.Push.URL)
		}
	}

	if c.Calendar.WindowDays == 0 {
		c.Calendar.WindowDays = 14
	}
	if c.Calendar.WindowDays < 1 || c.Calendar.WindowDays > 92 {
		return fmt.Errorf("calendar.window_days %d out of range (1..92)", c.Calendar.WindowDays)
	}
	switch c.Calendar.WeekStart {
	case "":
		c.Calendar.WeekStart = "monday"
	case "monday", "sunday":
	default:
		return fmt.Errorf("calendar.week_start %q must be monday or sunday", c.Calendar.WeekStart)
	}

	if err := c.Delays.fill(); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func (d *DelaysConfig) fill() error {
	fields := []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"edit_refetch", &d.EditRefetch, 1500 * time.Millisecond},
		{"sync_refetch", &d.SyncRefetch, time.Second},
		{"bulk_refetch", &d.BulkRefetch, time.Second},
		{"availability_refetch", &d.AvailabilityRefetch, 3 * time.Second},
		{"session_display", &d.SessionDisplay, 3 * time.Second},
	}
	for _, f := range fields {
		if *f.v == 0 {
			*f.v = f.def
		}
		if *f.v < 0 || *f.v > time.Minute {
			return fmt.Errorf("delays.%s %v out of range (0..1m)", f.name, *f.v)
		}
	}
	return nil
}
