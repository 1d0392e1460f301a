package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/njoerd114/availsync/internal/config"
)

// ConnectFunc creates a Connector for the given API URL and token.
type ConnectFunc func(apiURL, token string) (Connector, error)

// Wizard guides the user through first-run configuration and installation.
type Wizard struct {
	prompt  *Prompter
	logger  *slog.Logger
	w       io.Writer
	cfgPath string
	connect ConnectFunc
	now     func() time.Time
}

// NewWizard creates a Wizard that writes its config to cfgPath.
func NewWizard(r io.Reader, w io.Writer, cfgPath string, connect ConnectFunc, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
		connect: connect,
		now:     time.Now,
	}
}

// Run walks the user through the channel-manager connection, property
// selection, push and calendar settings, config file creation and optional
// service install.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to availsync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes %s and can install a systemd user service.\n\n", wiz.cfgPath)

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return wiz.offerServiceInstall()
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: channel manager connection.
	fmt.Fprintf(wiz.w, "Step 1/4: Channel Manager Connection\n")

	apiURL := wiz.prompt.String("API URL", "http://localhost:8000")
	token := wiz.prompt.Secret("API token")

	conn, err := wiz.connect(apiURL, token)
	if err != nil {
		return fmt.Errorf("creating channel manager client: %w", err)
	}
	fmt.Fprintf(wiz.w, "  Connecting to the channel manager...")
	if err := conn.Ping(ctx); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach the channel manager: %w\n\n  Check the URL and token, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")

	// Step 2: property.
	fmt.Fprintf(wiz.w, "Step 2/4: Property\n")

	propertyID, err := wiz.chooseProperty(ctx, conn)
	if err != nil {
		return err
	}

	// Step 3: push channel and calendar.
	fmt.Fprintf(wiz.w, "Step 3/4: Push Channel and Calendar\n")

	transports := []string{"sse", "websocket"}
	ti, err := wiz.prompt.Select("Push transport", []string{"sse (server-sent events)", "websocket"})
	if err != nil {
		return fmt.Errorf("selecting push transport: %w", err)
	}
	days, err := wiz.prompt.Int("Calendar window in days", 14, 1, 92)
	if err != nil {
		return fmt.Errorf("reading window length: %w", err)
	}
	weekStarts := []string{"monday", "sunday"}
	wi, err := wiz.prompt.Select("Week starts on", weekStarts)
	if err != nil {
		return fmt.Errorf("selecting week start: %w", err)
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: write config.
	fmt.Fprintf(wiz.w, "Step 4/4: Save Configuration\n")

	cfg := &config.Config{
		APIURL:     apiURL,
		APIToken:   token,
		PropertyID: propertyID,
		Push:       config.PushConfig{Transport: transports[ti]},
		Calendar:   config.CalendarConfig{WindowDays: int(days), WeekStart: weekStarts[wi]},
	}
	if err := cfg.Write(wiz.cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	return wiz.offerServiceInstall()
}

// chooseProperty asks for a property ID until one with rooms is found or the
// user accepts an empty one.
func (wiz *Wizard) chooseProperty(ctx context.Context, conn Connector) (int64, error) {
	for {
		id, err := wiz.prompt.Int("Property ID", 0, 1, math.MaxInt64)
		if err != nil {
			return 0, fmt.Errorf("reading property id: %w", err)
		}

		fmt.Fprintf(wiz.w, "  Discovering rooms...\n")
		rooms, err := DiscoverRooms(ctx, conn, id, wiz.now())
		if err != nil {
			wiz.logger.Warn("could not discover rooms", "property_id", id, "error", err)
			fmt.Fprintf(wiz.w, "  ⚠ Could not read the calendar for property %d.\n", id)
		} else if len(rooms) > 0 {
			fmt.Fprintf(wiz.w, "  Found %d room(s):\n", len(rooms))
			for _, r := range rooms {
				fmt.Fprintf(wiz.w, "    • %s\n", r)
			}
			fmt.Fprintf(wiz.w, "\n")
			return id, nil
		} else {
			fmt.Fprintf(wiz.w, "  ⚠ Property %d has no rooms in the next week.\n", id)
		}

		if wiz.prompt.Confirm(fmt.Sprintf("Use property %d anyway?", id), false) {
			fmt.Fprintf(wiz.w, "\n")
			return id, nil
		}
	}
}

// offerServiceInstall asks whether to install the daemon as a systemd user
// service.
func (wiz *Wizard) offerServiceInstall() error {
	if !wiz.prompt.Confirm("Install as a systemd user service (starts on login)?", true) {
		fmt.Fprintf(wiz.w, "\n  Skipping service install.\n")
		fmt.Fprintf(wiz.w, "  You can run manually with: availsync daemon\n")
		fmt.Fprintf(wiz.w, "  Or install later with:     availsync setup\n\n")
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	fmt.Fprintf(wiz.w, "\n")
	if err := WriteUnit(homeDir, wiz.cfgPath); err != nil {
		return fmt.Errorf("writing systemd unit: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Unit written to %s\n", UnitPath(homeDir))

	if err := EnableUnit(); err != nil {
		return fmt.Errorf("enabling service: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Service enabled and running\n")

	fmt.Fprintf(wiz.w, "\nSetup complete! availsync is syncing in the background.\n")
	fmt.Fprintf(wiz.w, "  Config:  %s\n", wiz.cfgPath)
	fmt.Fprintf(wiz.w, "  Logs:    journalctl --user -u %s\n", UnitName)
	fmt.Fprintf(wiz.w, "  Status:  availsync status\n")
	fmt.Fprintf(wiz.w, "  Remove:  availsync uninstall\n\n")
	return nil
}
