// Package state keeps a durable journal of the side effects taken by the
// bot, so an operator can tell what was triggered or cancelled and why.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
	"github.com/buildherd/buildherd/pkg/utils"
)

//go:embed schema.sql
var schema string

// ErrClosed is returned by a journal after Close
var ErrClosed = errors.New("journal is closed")

// Journal stores actions in a sqlite database
type Journal struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens or creates the journal at path
func Open(ctx context.Context, path string, log logger.Logger) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := utils.EnsureParent(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	log.Debug("Journal opened", logger.WithField("path", path))
	return &Journal{db: db, logger: log}, nil
}

// Record appends an action
func (j *Journal) Record(ctx context.Context, action types.Action) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	if action.Time.IsZero() {
		action.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO actions(at, pass_id, head, sha, job, kind, detail, dry_run)
		 VALUES(?,?,?,?,?,?,?,?)`,
		action.Time.UTC().Format(time.RFC3339Nano), nullStr(action.PassID), action.Head,
		nullStr(action.SHA), nullStr(action.Job), string(action.Kind), nullStr(action.Detail), action.DryRun,
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// Recent returns up to limit actions, newest first. A head filter keeps
// only the actions of heads containing it.
func (j *Journal) Recent(ctx context.Context, limit int, head string) ([]types.Action, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT at, pass_id, head, sha, job, kind, detail, dry_run
		 FROM actions
		 WHERE ? = '' OR instr(head, ?) > 0
		 ORDER BY id DESC
		 LIMIT ?`,
		head, head, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var actions []types.Action
	for rows.Next() {
		var (
			at                       string
			passID, sha, job, detail sql.NullString
			action                   types.Action
			kind                     string
		)
		if err := rows.Scan(&at, &passID, &action.Head, &sha, &job, &kind, &detail, &action.DryRun); err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}
		action.Time, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			j.logger.Warn("Unreadable journal timestamp", logger.WithField("at", at))
		}
		action.PassID = passID.String
		action.SHA = sha.String
		action.Job = job.String
		action.Detail = detail.String
		action.Kind = types.ActionKind(kind)
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// Close releases the database
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
