package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/njoerd114/availsync/internal/model"
)

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.in); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"setup", "daemon", "calendar", "pending", "sync", "status", "uninstall", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := out.String(); got != "availsync dev\n" {
		t.Errorf("output = %q", got)
	}
}

func TestStatusCommand_MissingConfig(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "Config:") || !strings.Contains(out.String(), "not found") {
		t.Errorf("output = %q", out.String())
	}
}

func TestStatusCommand_DaemonDown(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "api_url: https://pms.example.com\napi_token: x\nproperty_id: 3\n" +
		"listen_addr: 127.0.0.1:1\ncache_path: " + filepath.Join(dir, "cache.db") + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--config", cfgPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"https://pms.example.com", "not reachable", "Cache:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintCalendar(t *testing.T) {
	color.NoColor = true

	d := model.NewDate(2025, time.March, 5)
	rate := 250.0
	snap := &model.Snapshot{
		Window: model.Window{From: d, To: d},
		Days: []model.Day{{
			Date: d,
			Cells: []model.Cell{
				{RoomID: 1, RoomName: "Garden Suite", Date: d, Rate: &rate, IsAvailable: true, MinStay: 2, SyncStatus: model.SyncConnected},
				{RoomID: 2, Date: d, MinStay: 1, SyncStatus: model.SyncPending, SyncPending: true},
			},
		}},
	}
	snap.Statistics = model.ComputeStatistics(snap.Days)

	var out bytes.Buffer
	printCalendar(&out, snap)
	got := out.String()
	for _, want := range []string{"Garden Suite", "250.00", "pending*", "2025-03-05..2025-03-05", "2 records, 1 synced (50.0%), 1 pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintPending(t *testing.T) {
	var out bytes.Buffer
	printPending(&out, model.PendingState{
		Count: 4,
		DateRange: &model.PendingDateRange{
			From:          model.NewDate(2025, time.March, 3),
			To:            model.NewDate(2025, time.March, 9),
			RoomsAffected: 2,
		},
	})
	for _, want := range []string{"Pending:", "4", "2025-03-03 .. 2025-03-09"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintPending_ScopesSorted(t *testing.T) {
	st := model.PendingState{Count: 6, ByScope: map[string]int{"rate": 3, "availability": 2, "min_stay": 1}}
	first := ""
	for range 5 {
		var out bytes.Buffer
		printPending(&out, st)
		if first == "" {
			first = out.String()
		} else if out.String() != first {
			t.Fatalf("output differs between runs:\n%s\n---\n%s", first, out.String())
		}
	}
	a := strings.Index(first, "availability:")
	m := strings.Index(first, "min_stay:")
	r := strings.Index(first, "rate:")
	if a < 0 || !(a < m && m < r) {
		t.Errorf("scopes not in sorted order:\n%s", first)
	}
}

func TestRunUninstall_Purge(t *testing.T) {
	home := t.TempDir()
	cfgDir := filepath.Join(home, ".config", "availsync")
	if err := os.MkdirAll(cfgDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	var out bytes.Buffer
	runUninstall(&out, home, true)

	if _, err := os.Stat(cfgDir); !os.IsNotExist(err) {
		t.Error("config directory not purged")
	}
	for _, want := range []string{"✓ Unit removed", "✓ User data purged", "availsync uninstalled"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunUninstall_KeepsData(t *testing.T) {
	home := t.TempDir()
	cfgDir := filepath.Join(home, ".config", "availsync")
	if err := os.MkdirAll(cfgDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	var out bytes.Buffer
	runUninstall(&out, home, false)

	if _, err := os.Stat(cfgDir); err != nil {
		t.Errorf("config directory removed without --purge: %v", err)
	}
	if !strings.Contains(out.String(), "--purge") {
		t.Errorf("output missing purge hint:\n%s", out.String())
	}
}
