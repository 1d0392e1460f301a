package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

const minimal = `
api_url: "https://pms.example.com"
api_token: "secret"
property_id: 12
`

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://pms.example.com/"
api_token: "secret"
property_id: 12
request_timeout: 10s
listen_addr: "127.0.0.1:9000"
cache_path: /tmp/availsync.db
fallback_schedule: "*/10 * * * *"
push:
  transport: websocket
calendar:
  window_days: 28
  week_start: sunday
delays:
  edit_refetch: 2s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PropertyID != 12 {
		t.Errorf("PropertyID = %d, want 12", cfg.PropertyID)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.Push.Transport != "websocket" {
		t.Errorf("Push.Transport = %q, want websocket", cfg.Push.Transport)
	}
	if cfg.Calendar.WindowDays != 28 {
		t.Errorf("WindowDays = %d, want 28", cfg.Calendar.WindowDays)
	}
	if cfg.WeekStartDay() != time.Sunday {
		t.Errorf("WeekStartDay = %v, want Sunday", cfg.WeekStartDay())
	}
	if cfg.Delays.EditRefetch != 2*time.Second {
		t.Errorf("EditRefetch = %v, want 2s", cfg.Delays.EditRefetch)
	}
	if cfg.PushURL() != "https://pms.example.com/api/channel-manager/events" {
		t.Errorf("PushURL = %q", cfg.PushURL())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.FallbackSchedule != "@every 5m" || !cfg.FallbackEnabled() {
		t.Errorf("FallbackSchedule = %q", cfg.FallbackSchedule)
	}
	if cfg.Push.Transport != "sse" {
		t.Errorf("Push.Transport = %q, want sse", cfg.Push.Transport)
	}
	if cfg.Calendar.WindowDays != 14 || cfg.WeekStartDay() != time.Monday {
		t.Errorf("Calendar = %+v", cfg.Calendar)
	}
	want := DelaysConfig{
		EditRefetch:         1500 * time.Millisecond,
		SyncRefetch:         time.Second,
		BulkRefetch:         time.Second,
		AvailabilityRefetch: 3 * time.Second,
		SessionDisplay:      3 * time.Second,
	}
	if cfg.Delays != want {
		t.Errorf("Delays = %+v, want %+v", cfg.Delays, want)
	}
	if cfg.Telemetry != nil {
		t.Error("Telemetry should be nil when omitted")
	}
}

func TestLoad_FallbackOff(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+"fallback_schedule: \"off\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FallbackEnabled() {
		t.Error("FallbackEnabled = true, want false")
	}
}

func TestLoad_Telemetry(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true
  headers:
    Authorization: "Bearer x"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry == nil || cfg.Telemetry.OTLPEndpoint != "localhost:4317" || !cfg.Telemetry.Insecure {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.Headers["Authorization"] != "Bearer x" {
		t.Errorf("Headers = %v", cfg.Telemetry.Headers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing url", "api_token: x\nproperty_id: 1\n", "api_url is required"},
		{"bad scheme", "api_url: ftp://x\napi_token: x\nproperty_id: 1\n", "must be a valid http or https URL"},
		{"missing token", "api_url: https://x\nproperty_id: 1\n", "api_token is required"},
		{"missing property", "api_url: https://x\napi_token: x\n", "property_id"},
		{"short timeout", minimal + "request_timeout: 100ms\n", "request_timeout"},
		{"bad cron", minimal + "fallback_schedule: \"sometimes\"\n", "fallback_schedule"},
		{"bad transport", minimal + "push:\n  transport: carrier-pigeon\n", "push.transport"},
		{"window too long", minimal + "calendar:\n  window_days: 120\n", "window_days"},
		{"bad week start", minimal + "calendar:\n  week_start: friday\n", "week_start"},
		{"negative delay", minimal + "delays:\n  sync_refetch: -1s\n", "delays.sync_refetch"},
		{"telemetry without endpoint", minimal + "telemetry:\n  insecure: true\n", "otlp_endpoint"},
		{"unknown key", minimal + "poll_interval: 30s\n", "poll_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultPath(t *testing.T) {
	p, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath: %v", err)
	}
	if !strings.HasSuffix(p, filepath.Join(".config", "availsync", "config.yaml")) {
		t.Errorf("DefaultPath = %q", p)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{
		APIURL:         "https://pms.example.com",
		APIToken:       "secret",
		PropertyID:     7,
		RequestTimeout: 10 * time.Second,
		Push:           PushConfig{Transport: "websocket"},
		Calendar:       CalendarConfig{WindowDays: 21, WeekStart: "sunday"},
	}
	if err := cfg.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PropertyID != 7 || got.Push.Transport != "websocket" || got.Calendar.WindowDays != 21 {
		t.Errorf("reloaded config = %+v", got)
	}
	if got.WeekStartDay() != time.Sunday {
		t.Errorf("WeekStartDay = %v, want Sunday", got.WeekStartDay())
	}
	if got.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", got.RequestTimeout)
	}
	if got.Delays.EditRefetch != 1500*time.Millisecond {
		t.Errorf("EditRefetch = %v, want 1.5s", got.Delays.EditRefetch)
	}
}

func TestWrite_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := (&Config{APIURL: "https://x"}).Write(path); err == nil {
		t.Fatal("expected error for config without token")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config should not be written")
	}
}
