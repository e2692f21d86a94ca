// Package sqlite implements the ports.Store interface on SQLite via modernc.org/sqlite
// (pure Go, no cgo). It is the default backend and uses the same file layout
// as the dashboard database: a projects table and a notifications table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corey/dashhub/internal/ports"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const timeLayout = time.RFC3339Nano

// Store implements ports.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the SQLite database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// Pragmas below are per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notifications (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id   TEXT NOT NULL,
			type         TEXT NOT NULL,
			severity     TEXT NOT NULL DEFAULT 'info',
			title        TEXT NOT NULL,
			message      TEXT NOT NULL DEFAULT '',
			link         TEXT NOT NULL DEFAULT '',
			link_type    TEXT NOT NULL DEFAULT '',
			source_table TEXT NOT NULL DEFAULT '',
			source_id    TEXT NOT NULL DEFAULT '',
			is_read      INTEGER NOT NULL DEFAULT 0,
			is_dismissed INTEGER NOT NULL DEFAULT 0,
			read_at      TEXT,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_unread
			ON notifications(is_read, is_dismissed, id);
		CREATE INDEX IF NOT EXISTS idx_notifications_project
			ON notifications(project_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Projects ────────────────────────────────────────────────────────────────

func (s *Store) Project(ctx context.Context, id string) (*ports.Project, error) {
	var p ports.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get project %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) SaveProject(ctx context.Context, p ports.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, path) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, path = excluded.path`,
		p.ID, p.Name, p.Path,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save project %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Projects(ctx context.Context) ([]ports.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, path FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list projects: %w", err)
	}
	defer rows.Close()

	var out []ports.Project
	for rows.Next() {
		var p ports.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Path); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─── Notifications ───────────────────────────────────────────────────────────

const notificationColumns = `id, project_id, type, severity, title, message, link, link_type,
	source_table, source_id, is_read, is_dismissed, read_at, created_at`

func (s *Store) Create(ctx context.Context, n ports.NewNotification) (*ports.Notification, error) {
	created := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications
			(project_id, type, severity, title, message, link, link_type, source_table, source_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ProjectID, n.Type, n.Severity, n.Title, n.Message, n.Link, n.LinkType,
		n.SourceTable, n.SourceID, created.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: insert notification: %w", err)
	}
	return &ports.Notification{
		ID:          id,
		ProjectID:   n.ProjectID,
		Type:        n.Type,
		Severity:    n.Severity,
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		LinkType:    n.LinkType,
		SourceTable: n.SourceTable,
		SourceID:    n.SourceID,
		CreatedAt:   created,
	}, nil
}

func (s *Store) Notification(ctx context.Context, id int64) (*ports.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get notification %d: %w", id, err)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, f ports.ListFilter) ([]ports.Notification, int, error) {
	var where []string
	var args []any
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.UnreadOnly {
		where = append(where, "is_read = 0 AND is_dismissed = 0")
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Search != "" {
		where = append(where, "(title LIKE ? OR message LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count notifications: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications`+clause+` ORDER BY id DESC LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: list notifications: %w", err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) UnreadSince(ctx context.Context, sinceID int64) ([]ports.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE is_read = 0 AND is_dismissed = 0 AND id > ?
		 ORDER BY id ASC`, sinceID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: unread since %d: %w", sinceID, err)
	}
	return collect(rows)
}

func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE is_read = 0 AND is_dismissed = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: unread count: %w", err)
	}
	return n, nil
}

func (s *Store) UnreadSummary(ctx context.Context) (*ports.UnreadSummary, error) {
	sum := &ports.UnreadSummary{
		ByProject:  make(map[string]int),
		BySeverity: make(map[string]int),
	}
	groups := []struct {
		column string
		into   map[string]int
	}{
		{"project_id", sum.ByProject},
		{"severity", sum.BySeverity},
	}
	for _, g := range groups {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+g.column+`, COUNT(*) FROM notifications
			 WHERE is_read = 0 AND is_dismissed = 0
			 GROUP BY `+g.column)
		if err != nil {
			return nil, fmt.Errorf("sqlite: unread by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, err
			}
			g.into[key] = n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	for _, n := range sum.ByProject {
		sum.Total += n
	}
	return sum, nil
}

func (s *Store) MarkRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`,
		s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("sqlite: mark read %d: %w", id, err)
	}
	return expectRow(res)
}

func (s *Store) MarkAllRead(ctx context.Context, projectID string) (int, error) {
	query := `UPDATE notifications SET is_read = 1, read_at = ? WHERE is_read = 0`
	args := []any{s.now().UTC().Format(timeLayout)}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: mark all read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Dismiss(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: dismiss %d: %w", id, err)
	}
	return expectRow(res)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(sc scanner) (*ports.Notification, error) {
	var (
		n         ports.Notification
		readAt    sql.NullString
		createdAt string
	)
	err := sc.Scan(&n.ID, &n.ProjectID, &n.Type, &n.Severity, &n.Title, &n.Message,
		&n.Link, &n.LinkType, &n.SourceTable, &n.SourceID,
		&n.IsRead, &n.IsDismissed, &readAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if n.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if readAt.Valid {
		t, err := time.Parse(timeLayout, readAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse read_at %q: %w", readAt.String, err)
		}
		n.ReadAt = &t
	}
	return &n, nil
}

func collect(rows *sql.Rows) ([]ports.Notification, error) {
	defer rows.Close()
	var out []ports.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

var _ ports.Store = (*Store)(nil)
