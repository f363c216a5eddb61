package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"intellilight/bulb"
	"intellilight/control"
	"intellilight/logger"
)

const driverName = "sqlite"

// Fixed width so that timestamps sort as text
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const schemaDispatches = `
CREATE TABLE IF NOT EXISTS dispatches (
    id TEXT PRIMARY KEY,
    boot_id TEXT NOT NULL,
    occurred_at TEXT NOT NULL,
    kind TEXT NOT NULL,
    value TEXT NOT NULL,
    ok BOOLEAN NOT NULL,
    error TEXT
);
`

const indexDispatches = `
CREATE INDEX IF NOT EXISTS dispatches_occurred_at ON dispatches (occurred_at);
`

type Config struct {
	// Empty disables the journal
	Path string `yaml:"path" envconfig:"INTELLILIGHT_JOURNAL"`
}

// Entry is one command sent, or attempted, to the bulb
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Boot       uuid.UUID `json:"boot"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       bulb.Kind `json:"kind"`
	Value      string    `json:"value"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
}

// Journal keeps a history of bulb commands for diagnostics. Nothing is ever
// read back to restore state.
type Journal struct {
	db  *sql.DB
	log *logger.Logger
}

func Open(path string, log *logger.Logger) (*Journal, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Only the control loop writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA busy_timeout = 5000;"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, log), nil
}

func New(db *sql.DB, log *logger.Logger) *Journal {
	return &Journal{db: db, log: log.Named("journal")}
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaDispatches, indexDispatches} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}

	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts e, a missing id or timestamp is filled in
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO dispatches (id, boot_id, occurred_at, kind, value, ok, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID.String(),
		e.Boot.String(),
		e.OccurredAt.UTC().Format(timeFormat),
		string(e.Kind),
		e.Value,
		e.OK,
		errText,
	)
	if err != nil {
		return fmt.Errorf("insert dispatch: %w", err)
	}

	return nil
}

// Recent returns the last n entries, newest first
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, boot_id, occurred_at, kind, value, ok, error
		FROM dispatches
		ORDER BY occurred_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			id, boot, at, kind string
			errText            sql.NullString
		)

		if err := rows.Scan(&id, &boot, &at, &kind, &e.Value, &e.OK, &errText); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}

		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("dispatch id %q: %w", id, err)
		}
		if e.Boot, err = uuid.Parse(boot); err != nil {
			return nil, fmt.Errorf("dispatch boot id %q: %w", boot, err)
		}
		if e.OccurredAt, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("dispatch time %q: %w", at, err)
		}
		e.Kind = bulb.Kind(kind)
		e.Error = errText.String

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

type observer struct {
	journal *Journal
	boot    uuid.UUID
}

// Boot returns an observer that records every dispatch of one boot cycle
func (j *Journal) Boot(id uuid.UUID) control.Observer {
	return &observer{journal: j, boot: id}
}

func (o *observer) OnReading(control.Reading) {}

func (o *observer) OnPhase(control.Phase, bulb.State) {}

func (o *observer) OnDispatch(d control.Dispatch) {
	e := Entry{
		Boot:       o.boot,
		OccurredAt: d.At,
		Kind:       d.Command.Kind,
		Value:      d.Command.Value(),
		OK:         d.Err == nil,
	}
	if d.Err != nil {
		e.Error = d.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := o.journal.Record(ctx, e); err != nil {
		o.journal.log.Warnw("Failed to record dispatch", "command", d.Command, "err", err)
	}
}
