package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	doc        TEXT NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 1,
	deleted    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_decisions_owner ON decisions(owner_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
CREATE INDEX IF NOT EXISTS idx_decisions_deleted ON decisions(deleted);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return wrapDriver(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDecision(ctx context.Context, d *model.Decision) error {
	if err := d.CheckInvariants(); err != nil {
		return err
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, owner_id, status, doc, revision, deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		d.ID, d.OwnerID, string(d.Status), string(doc), boolToInt(d.Deleted), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return wrapDriver(err, "sqlite: insert decision %s", d.ID)
	}
	d.Revision = 1
	return nil
}

func (s *SQLiteStore) GetDecision(ctx context.Context, id string) (*model.Decision, error) {
	var doc string
	var revision int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, revision FROM decisions WHERE id = ? AND deleted = 0`, id,
	).Scan(&doc, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NewNotFound("decision", id)
	}
	if err != nil {
		return nil, wrapDriver(err, "sqlite: get decision %s", id)
	}
	return decodeDecision([]byte(doc), revision)
}

func (s *SQLiteStore) UpdateDecision(ctx context.Context, d *model.Decision) error {
	if err := d.CheckInvariants(); err != nil {
		return err
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE decisions
		 SET doc = ?, status = ?, deleted = ?, revision = revision + 1, updated_at = ?
		 WHERE id = ? AND revision = ?`,
		string(doc), string(d.Status), boolToInt(d.Deleted), d.UpdatedAt, d.ID, d.Revision,
	)
	if err != nil {
		return wrapDriver(err, "sqlite: update decision %s", d.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDriver(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &fault.ConcurrencyConflictError{DecisionID: d.ID, ExpectedRevision: d.Revision}
	}
	d.Revision++
	return nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT doc, revision FROM decisions WHERE 1=1`
	var args []any
	if !filter.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDriver(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var doc string
		var revision int64
		if err := rows.Scan(&doc, &revision); err != nil {
			return nil, wrapDriver(err, "sqlite: scan decision")
		}
		d, err := decodeDecision([]byte(doc), revision)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, wrapDriver(rows.Err(), "sqlite: iterate decisions")
}

// decodeDecision unmarshals a stored document and verifies aggregate
// invariants before handing it to callers.
func decodeDecision(doc []byte, revision int64) (*model.Decision, error) {
	var d model.Decision
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal decision document")
	}
	d.Revision = revision
	if err := d.CheckInvariants(); err != nil {
		return nil, err
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
