package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/njoerd114/availsync/internal/cellcache"
	"github.com/njoerd114/availsync/internal/config"
	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/setup"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

// oneShot builds a coordinator without push or fallback schedule for a
// single command invocation.
func (a *app) oneShot() (context.Context, context.CancelFunc, *syncp.Coordinator, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := newClient(cfg, a)
	if err != nil {
		return nil, nil, nil, err
	}
	coord, err := syncp.NewCoordinator(client, nil, nil, coordinatorOptions(cfg), a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating coordinator: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	return ctx, stop, coord, nil
}

// --- calendar ----------------------------------------------------------------

func newCalendarCommand(a *app) *cobra.Command {
	var (
		from string
		days int
	)
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Fetch and print the availability calendar",
		Example: `
availsync calendar
availsync calendar --from 2025-03-01 --days 7
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, coord, err := a.oneShot()
			if err != nil {
				return err
			}
			defer stop()

			var snap *model.Snapshot
			if from != "" {
				start, err := model.ParseDate(from)
				if err != nil {
					return err
				}
				if days <= 0 {
					days = coord.Fetcher().Window().Days()
				}
				snap, err = coord.SetRange(ctx, model.NewWindow(start, days))
				if err != nil {
					return err
				}
			} else {
				if snap, err = coord.Fetch(ctx, syncp.FetchOptions{Force: true}); err != nil {
					return err
				}
			}
			printCalendar(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date of the window (YYYY-MM-DD); defaults to this week")
	cmd.Flags().IntVar(&days, "days", 0, "number of days to show; defaults to calendar.window_days")
	return cmd
}

func printCalendar(w io.Writer, snap *model.Snapshot) {
	bold := color.New(color.Bold)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("Date"), bold.Sprint("Room"), bold.Sprint("Rate"), bold.Sprint("Open"),
		bold.Sprint("Min"), bold.Sprint("CTA"), bold.Sprint("CTD"), bold.Sprint("Sync"))
	for _, d := range snap.Days {
		for _, c := range d.Cells {
			room := c.RoomName
			if room == "" {
				room = strconv.FormatInt(c.RoomID, 10)
			}
			rate := "-"
			if c.Rate != nil {
				rate = strconv.FormatFloat(*c.Rate, 'f', 2, 64)
			}
			status := string(c.SyncStatus)
			if c.SyncPending {
				status += "*"
			}
			tbl.AddRow(d.Date.String(), room, rate, yesNo(c.IsAvailable), c.MinStay,
				yesNo(c.ClosedToArrival), yesNo(c.ClosedToDeparture), status)
		}
	}
	tbl.RightAlign(2)
	_, _ = fmt.Fprintln(w, tbl)

	st := snap.Statistics
	_, _ = fmt.Fprintf(w, "\n%s  %d records, %d synced (%.1f%%), %d pending\n",
		snap.Window, st.TotalRecords, st.SyncedRecords, st.SyncRate, st.PendingSync)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// --- pending -----------------------------------------------------------------

func newPendingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show the pending-sync backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, coord, err := a.oneShot()
			if err != nil {
				return err
			}
			defer stop()

			if _, err := coord.Pending().RefreshCount(ctx); err != nil {
				return err
			}
			printPending(cmd.OutOrStdout(), coord.Pending().State())
			return nil
		},
	}
}

func printPending(w io.Writer, st model.PendingState) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("Pending:", st.Count)
	if r := st.DateRange; r != nil {
		tbl.AddRow("Dates:", r.From.String()+" .. "+r.To.String())
		tbl.AddRow("Rooms:", r.RoomsAffected)
	}
	for _, scope := range slices.Sorted(maps.Keys(st.ByScope)) {
		tbl.AddRow("  "+scope+":", st.ByScope[scope])
	}
	_, _ = fmt.Fprintln(w, tbl)
}

// --- sync --------------------------------------------------------------------

func newSyncCommand(a *app) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending changes to the connected channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, coord, err := a.oneShot()
			if err != nil {
				return err
			}
			defer stop()

			if _, err := coord.Pending().RefreshCount(ctx); err != nil {
				return err
			}
			session, err := coord.Sync(ctx, async)
			if errors.Is(err, syncp.ErrNothingPending) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing pending.")
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch session.Status {
			case model.SessionSyncing:
				fmt.Fprintln(out, "Sync accepted; the daemon reports completion over the push channel.")
			case model.SessionError:
				return fmt.Errorf("sync failed: %s", session.Message)
			default:
				fmt.Fprintf(out, "Sync %s.", session.Status)
				if session.Message != "" {
					fmt.Fprintf(out, " %s", session.Message)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "ask the server to sync in the background")
	return cmd
}

// --- status ------------------------------------------------------------------

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config, cache and daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd.OutOrStdout())
		},
	}
}

func (a *app) runStatus(w io.Writer) error {
	tbl := uitable.New()
	tbl.Separator = "  "

	cfg, cfgErr := config.Load(a.cfgPath)
	switch {
	case cfgErr == nil:
		tbl.AddRow("Config:", a.cfgPath+" ✓")
		tbl.AddRow("API URL:", cfg.APIURL)
		tbl.AddRow("Property:", cfg.PropertyID)
		tbl.AddRow("Push:", cfg.Push.Transport+" "+cfg.PushURL())
		tbl.AddRow("Fallback:", cfg.FallbackSchedule)
	case errors.Is(cfgErr, os.ErrNotExist):
		tbl.AddRow("Config:", "not found ("+a.cfgPath+")")
	default:
		tbl.AddRow("Config:", fmt.Sprintf("%s (invalid: %v)", a.cfgPath, cfgErr))
	}

	cachePath, _ := cellcache.DefaultDBPath()
	if cfg != nil && cfg.CachePath != "" {
		cachePath = cfg.CachePath
	}
	if info, err := os.Stat(cachePath); err == nil {
		tbl.AddRow("Cache:", fmt.Sprintf("%s (%s)", cachePath, humanSize(info.Size())))
	} else {
		tbl.AddRow("Cache:", "not found")
	}

	if setup.IsUnitActive() {
		tbl.AddRow("Service:", setup.UnitName+" active")
	} else {
		tbl.AddRow("Service:", setup.UnitName+" not active")
	}

	if cfg != nil {
		if st, err := daemonStatus(cfg.ListenAddr); err != nil {
			tbl.AddRow("Daemon:", "not reachable at "+cfg.ListenAddr)
		} else {
			tbl.AddRow("Daemon:", "running at "+cfg.ListenAddr)
			tbl.AddRow("Window:", st.Window.String())
			tbl.AddRow("Push state:", st.Push)
			tbl.AddRow("Pending:", st.Pending.Count)
			tbl.AddRow("Sync rate:", fmt.Sprintf("%.1f%%", st.Statistics.SyncRate))
			tbl.AddRow("Session:", string(st.Session.Status))
			if st.Error != "" {
				tbl.AddRow("Last error:", st.Error)
			}
		}
	}

	_, _ = fmt.Fprintln(w, "Availsync Status")
	_, _ = fmt.Fprintln(w, "────────────────")
	_, _ = fmt.Fprintln(w, tbl)
	return nil
}

// daemonStatus reads the running daemon's status from its control API.
func daemonStatus(addr string) (syncp.Status, error) {
	hc := &http.Client{Timeout: 2 * time.Second}
	resp, err := hc.Get("http://" + addr + "/api/status")
	if err != nil {
		return syncp.Status{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return syncp.Status{}, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	var st syncp.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return syncp.Status{}, fmt.Errorf("decoding daemon status: %w", err)
	}
	return st, nil
}
