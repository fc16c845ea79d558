// Package journal records every closed unit-of-work scope in a SQL table.
// It implements pipeline.Hooks.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

const (
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"

	writeTimeout = 5 * time.Second
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type dialect struct {
	placeholder func(n int) string
	createTable string
}

var dialects = map[string]dialect{
	"postgres": {
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		createTable: `CREATE TABLE IF NOT EXISTS %[1]s (
	id           VARCHAR(36) PRIMARY KEY,
	run_id       VARCHAR(36) NOT NULL,
	unit_of_work VARCHAR(64) NOT NULL,
	source       TEXT,
	destination  TEXT,
	status       VARCHAR(16) NOT NULL,
	error        TEXT,
	recorded_at  TIMESTAMPTZ NOT NULL
)`,
	},
	"sqlserver": {
		placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		createTable: `IF OBJECT_ID(N'%[1]s', N'U') IS NULL
CREATE TABLE %[1]s (
	id           VARCHAR(36) PRIMARY KEY,
	run_id       VARCHAR(36) NOT NULL,
	unit_of_work VARCHAR(64) NOT NULL,
	source       NVARCHAR(MAX),
	destination  NVARCHAR(MAX),
	status       VARCHAR(16) NOT NULL,
	error        NVARCHAR(MAX),
	recorded_at  DATETIMEOFFSET NOT NULL
)`,
	},
}

// Journal writes one row per closed scope.
type Journal struct {
	db      execer
	closer  io.Closer
	dialect dialect
	table   string
	insert  string
	now     func() time.Time
}

// Open connects to the journal database. driver is "postgres" or
// "sqlserver"; table must be a plain identifier.
func Open(ctx context.Context, driver, dsn, table string) (*Journal, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s journal: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s journal: %w", driver, err)
	}
	j, err := New(db, driver, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	j.closer = db
	return j, nil
}

// New builds a journal on an existing connection.
func New(db execer, driver, table string) (*Journal, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}
	cols := []string{"id", "run_id", "unit_of_work", "source", "destination", "status", "error", "recorded_at"}
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = d.placeholder(i + 1)
	}
	return &Journal{
		db:      db,
		dialect: d,
		table:   table,
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		now: time.Now,
	}, nil
}

// EnsureSchema creates the journal table when it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, fmt.Sprintf(j.dialect.createTable, j.table)); err != nil {
		return fmt.Errorf("failed to create journal table %s: %w", j.table, err)
	}
	return nil
}

func (j *Journal) Commit(ctx context.Context, scope *pipeline.Scope) error {
	return j.record(ctx, scope, StatusCommitted, nil)
}

func (j *Journal) Rollback(ctx context.Context, scope *pipeline.Scope, cause error) error {
	return j.record(ctx, scope, StatusRolledBack, cause)
}

// record still writes when ctx was cancelled, so a timed-out run leaves a
// rolled-back row behind.
func (j *Journal) record(ctx context.Context, scope *pipeline.Scope, status string, cause error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	var errText sql.NullString
	if cause != nil {
		errText = sql.NullString{String: cause.Error(), Valid: true}
	}
	_, err := j.db.ExecContext(wctx, j.insert,
		uuid.NewString(),
		scope.RunID(),
		scope.UnitOfWork(),
		nullable(pipeline.Describe(scope.Source())),
		nullable(pipeline.Describe(scope.Destination())),
		status,
		errText,
		j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write journal row: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Journal row written.", "status", status, "uow", scope.UnitOfWork())
	return nil
}

// Close releases the connection opened by Open.
func (j *Journal) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
