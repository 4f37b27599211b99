package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgx against a JSONB document table.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool creates a PostgresStore over an existing pool.
// Used by tests to inject pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	doc        JSONB NOT NULL,
	revision   BIGINT NOT NULL DEFAULT 1,
	deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decisions_owner ON decisions(owner_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
CREATE INDEX IF NOT EXISTS idx_decisions_deleted ON decisions(deleted);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return wrapDriver(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDecision(ctx context.Context, d *model.Decision) error {
	if err := d.CheckInvariants(); err != nil {
		return err
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, owner_id, status, doc, revision, deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 1, $5, $6, $7)`,
		d.ID, d.OwnerID, string(d.Status), doc, d.Deleted, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return wrapDriver(err, "postgres: insert decision %s", d.ID)
	}
	d.Revision = 1
	return nil
}

func (s *PostgresStore) GetDecision(ctx context.Context, id string) (*model.Decision, error) {
	var doc []byte
	var revision int64
	err := s.pool.QueryRow(ctx,
		`SELECT doc, revision FROM decisions WHERE id = $1 AND NOT deleted`, id,
	).Scan(&doc, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NewNotFound("decision", id)
	}
	if err != nil {
		return nil, wrapDriver(err, "postgres: get decision %s", id)
	}
	return decodeDecision(doc, revision)
}

func (s *PostgresStore) UpdateDecision(ctx context.Context, d *model.Decision) error {
	if err := d.CheckInvariants(); err != nil {
		return err
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE decisions
		 SET doc = $1, status = $2, deleted = $3, revision = revision + 1, updated_at = $4
		 WHERE id = $5 AND revision = $6`,
		doc, string(d.Status), d.Deleted, d.UpdatedAt, d.ID, d.Revision,
	)
	if err != nil {
		return wrapDriver(err, "postgres: update decision %s", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return &fault.ConcurrencyConflictError{DecisionID: d.ID, ExpectedRevision: d.Revision}
	}
	d.Revision++
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT doc, revision FROM decisions WHERE TRUE`
	var args []any
	if !filter.IncludeDeleted {
		query += ` AND NOT deleted`
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += ` AND owner_id = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapDriver(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var doc []byte
		var revision int64
		if err := rows.Scan(&doc, &revision); err != nil {
			return nil, wrapDriver(err, "postgres: scan decision")
		}
		d, err := decodeDecision(doc, revision)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, wrapDriver(rows.Err(), "postgres: iterate decisions")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
