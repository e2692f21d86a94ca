// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. The hub depends
// only on these interfaces, never on concrete implementations.
package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a project or notification id is unknown.
var ErrNotFound = errors.New("not found")

// Severity levels a notification can carry.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ValidSeverity reports whether s is one of the four known severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Project is a dashboard project whose repository can be watched.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"` // repository root; the watched dir is Path/.git
}

// Notification is a durable, cross-cutting event record.
//
// Immutable after creation except IsRead and IsDismissed, which only ever
// move false→true. Stores must not expose any operation that resets them.
type Notification struct {
	ID          int64      `json:"id"`
	ProjectID   string     `json:"project_id"`
	Type        string     `json:"type"`     // event kind, e.g. "plan_completed"
	Severity    string     `json:"severity"` // info | success | warning | error
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Link        string     `json:"link"`
	LinkType    string     `json:"link_type"`
	SourceTable string     `json:"source_table,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	IsRead      bool       `json:"is_read"`
	IsDismissed bool       `json:"is_dismissed"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewNotification holds the caller-supplied fields of a notification.
// The store assigns ID and CreatedAt; flags start false.
type NewNotification struct {
	ProjectID   string `json:"project_id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Link        string `json:"link"`
	LinkType    string `json:"link_type"`
	SourceTable string `json:"source_table"`
	SourceID    string `json:"source_id"`
}

// ListFilter narrows a notification listing. Zero values mean "no filter".
type ListFilter struct {
	ProjectID  string
	UnreadOnly bool // unread AND not dismissed
	Severity   string
	Search     string // substring match on title or message
	Limit      int    // default 100
	Offset     int
}

// UnreadSummary aggregates unread, undismissed notifications.
type UnreadSummary struct {
	Total      int            `json:"total"`
	ByProject  map[string]int `json:"byProject"`
	BySeverity map[string]int `json:"bySeverity"`
}

// ProjectStore resolves projects to repository paths.
type ProjectStore interface {
	// Project returns the project with the given id, or ErrNotFound.
	Project(ctx context.Context, id string) (*Project, error)

	// SaveProject inserts or replaces a project.
	SaveProject(ctx context.Context, p Project) error

	// Projects lists all projects ordered by id.
	Projects(ctx context.Context) ([]Project, error)
}

// NotificationStore persists notifications durably. Both the streaming
// path and the polling path read from it, so neither keeps an in-memory copy.
//
// Crash safety: Create must be transactional. A notification that Create
// reported as stored survives a crash.
type NotificationStore interface {
	// Create stores a new notification and returns it with ID and CreatedAt set.
	// IDs are strictly increasing.
	Create(ctx context.Context, n NewNotification) (*Notification, error)

	// Notification returns one notification, or ErrNotFound.
	Notification(ctx context.Context, id int64) (*Notification, error)

	// List returns notifications matching f, newest first, plus the total
	// number of matches ignoring Limit/Offset.
	List(ctx context.Context, f ListFilter) ([]Notification, int, error)

	// UnreadSince returns unread, undismissed notifications with ID > sinceID,
	// oldest first.
	UnreadSince(ctx context.Context, sinceID int64) ([]Notification, error)

	// UnreadCount returns the number of unread, undismissed notifications.
	UnreadCount(ctx context.Context) (int, error)

	// UnreadSummary returns unread counts grouped by project and severity.
	UnreadSummary(ctx context.Context) (*UnreadSummary, error)

	// MarkRead sets IsRead (and ReadAt) on one notification. Idempotent.
	// Returns ErrNotFound for an unknown id.
	MarkRead(ctx context.Context, id int64) error

	// MarkAllRead sets IsRead on every unread notification, optionally
	// restricted to one project. Returns the number of rows changed.
	MarkAllRead(ctx context.Context, projectID string) (int, error)

	// Dismiss sets IsDismissed on one notification. Idempotent.
	// Returns ErrNotFound for an unknown id.
	Dismiss(ctx context.Context, id int64) error
}

// Store is the full persistence surface the daemon needs.
type Store interface {
	ProjectStore
	NotificationStore
	Close() error
}
