// Package cellcache keeps the last-seen calendar cells in a local SQLite
// database so a window can be re-displayed immediately after navigation or a
// restart, before the authoritative fetch completes.
//
// Cached cells are never authoritative. Every cell carries a verified flag
// that is set when it arrives in a successful fetch and cleared as soon as
// the displayed window moves away from its date.
//
// Only this package may open or query the database.
package cellcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/availsync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cells (
    property_id         INTEGER NOT NULL,
    room_id             INTEGER NOT NULL,
    date                TEXT    NOT NULL,
    room_name           TEXT    NOT NULL DEFAULT '',
    rate                REAL,
    is_available        INTEGER NOT NULL DEFAULT 0,
    is_bookable         INTEGER NOT NULL DEFAULT 0,
    min_stay            INTEGER NOT NULL DEFAULT 1,
    closed_to_arrival   INTEGER NOT NULL DEFAULT 0,
    closed_to_departure INTEGER NOT NULL DEFAULT 0,
    sync_status         TEXT    NOT NULL DEFAULT '',
    sync_pending        INTEGER NOT NULL DEFAULT 0,
    sync_error          TEXT    NOT NULL DEFAULT '',
    mapped_channels     TEXT    NOT NULL DEFAULT '',
    verified            INTEGER NOT NULL DEFAULT 0,
    fetched_at          TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (property_id, room_id, date)
);

CREATE INDEX IF NOT EXISTS idx_cells_date ON cells (property_id, date);
`

// Store is the SQLite-backed cell cache.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.local/share/availsync/cache.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "availsync", "cache.db"), nil
}

// Open opens (or creates) the cache at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts every cell of snap as verified.
func (s *Store) SaveSnapshot(ctx context.Context, propertyID int64, snap *model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO cells
		    (property_id, room_id, date, room_name, rate, is_available, is_bookable,
		     min_stay, closed_to_arrival, closed_to_departure, sync_status,
		     sync_pending, sync_error, mapped_channels, verified, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(property_id, room_id, date) DO UPDATE SET
		    room_name           = excluded.room_name,
		    rate                = excluded.rate,
		    is_available        = excluded.is_available,
		    is_bookable         = excluded.is_bookable,
		    min_stay            = excluded.min_stay,
		    closed_to_arrival   = excluded.closed_to_arrival,
		    closed_to_departure = excluded.closed_to_departure,
		    sync_status         = excluded.sync_status,
		    sync_pending        = excluded.sync_pending,
		    sync_error          = excluded.sync_error,
		    mapped_channels     = excluded.mapped_channels,
		    verified            = 1,
		    fetched_at          = excluded.fetched_at`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("preparing cell upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	fetchedAt := snap.FetchedAt.UTC().Format(time.RFC3339Nano)
	for _, day := range snap.Days {
		for _, c := range day.Cells {
			var rate sql.NullFloat64
			if c.Rate != nil {
				rate = sql.NullFloat64{Float64: *c.Rate, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				propertyID, c.RoomID, day.Date.String(), c.RoomName, rate,
				c.IsAvailable, c.IsBookable, c.MinStay, c.ClosedToArrival, c.ClosedToDeparture,
				string(c.SyncStatus), c.SyncPending, c.SyncError,
				strings.Join(c.MappedChannels, ","), fetchedAt,
			)
			if err != nil {
				return fmt.Errorf("upserting cell room=%d date=%s: %w", c.RoomID, day.Date, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}
	return nil
}

// MarkUnverifiedOutside clears the verified flag on every cell of the
// property whose date lies outside w. It returns the number of cells touched.
func (s *Store) MarkUnverifiedOutside(ctx context.Context, propertyID int64, w model.Window) (int64, error) {
	const q = `
		UPDATE cells SET verified = 0
		WHERE property_id = ? AND verified = 1 AND (date < ? OR date > ?)`
	res, err := s.db.ExecContext(ctx, q, propertyID, w.From.String(), w.To.String())
	if err != nil {
		return 0, fmt.Errorf("marking cells outside %s unverified: %w", w, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LoadWindow returns the cached days within w in date order. A day is
// verified only if all of its cells are.
func (s *Store) LoadWindow(ctx context.Context, propertyID int64, w model.Window) ([]model.Day, error) {
	const q = `
		SELECT room_id, date, room_name, rate, is_available, is_bookable, min_stay,
		       closed_to_arrival, closed_to_departure, sync_status, sync_pending,
		       sync_error, mapped_channels, verified
		FROM cells
		WHERE property_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, room_id`
	rows, err := s.db.QueryContext(ctx, q, propertyID, w.From.String(), w.To.String())
	if err != nil {
		return nil, fmt.Errorf("querying cells for %s: %w", w, err)
	}
	defer func() { _ = rows.Close() }()

	var days []model.Day
	for rows.Next() {
		c, verified, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		if n := len(days); n == 0 || days[n-1].Date != c.Date {
			days = append(days, model.Day{Date: c.Date, Verified: true})
		}
		d := &days[len(days)-1]
		d.Cells = append(d.Cells, c)
		d.Verified = d.Verified && verified
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cells: %w", err)
	}
	for i := range days {
		days[i].Summarize()
	}
	return days, nil
}

// Prune deletes cached cells dated before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff model.Date) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cells WHERE date < ?`, cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("pruning cells before %s: %w", cutoff, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- helpers -----------------------------------------------------------------

func scanCell(rows *sql.Rows) (model.Cell, bool, error) {
	var (
		c        model.Cell
		date     string
		rate     sql.NullFloat64
		status   string
		channels string
		verified bool
	)
	err := rows.Scan(
		&c.RoomID, &date, &c.RoomName, &rate, &c.IsAvailable, &c.IsBookable, &c.MinStay,
		&c.ClosedToArrival, &c.ClosedToDeparture, &status, &c.SyncPending,
		&c.SyncError, &channels, &verified,
	)
	if err != nil {
		return model.Cell{}, false, fmt.Errorf("scanning cell row: %w", err)
	}
	if c.Date, err = model.ParseDate(date); err != nil {
		return model.Cell{}, false, err
	}
	if rate.Valid {
		r := rate.Float64
		c.Rate = &r
	}
	c.SyncStatus = model.SyncStatus(status)
	if channels != "" {
		c.MappedChannels = strings.Split(channels, ",")
	}
	return c, verified, nil
}
