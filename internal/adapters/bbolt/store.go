// Package bbolt implements the ports.Store interface using bbolt (embedded B+ tree).
// Two top-level buckets hold JSON-serialized records: "projects" keyed by
// project id, and "notifications" keyed by a big-endian sequence number.
// Writes are transactional; a crash mid-write cannot corrupt previously
// committed data.
package bbolt

import (
	"context"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corey/dashhub/internal/ports"
)

// Bucket keys
var (
	bucketProjects      = []byte("projects")
	bucketNotifications = []byte("notifications")
)

// Store implements ports.Store backed by bbolt.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore opens (or creates) a bbolt database at the given path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProjects, bucketNotifications} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt init buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Project retrieves a project by id.
func (s *Store) Project(_ context.Context, id string) (*ports.Project, error) {
	var p *ports.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return ports.ErrNotFound
		}
		var err error
		p, err = decodeProject(data)
		return err
	})
	return p, err
}

// SaveProject inserts or replaces a project.
func (s *Store) SaveProject(_ context.Context, p ports.Project) error {
	data, err := encodeProject(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).Put([]byte(p.ID), data)
	})
}

// Projects lists all projects in id order.
func (s *Store) Projects(_ context.Context) ([]ports.Project, error) {
	var out []ports.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			p, err := decodeProject(v)
			if err != nil {
				return err
			}
			out = append(out, *p)
			return nil
		})
	})
	return out, err
}

// Create assigns the next sequence number and persists n in one transaction.
func (s *Store) Create(_ context.Context, n ports.NewNotification) (*ports.Notification, error) {
	rec := &ports.Notification{
		ProjectID:   n.ProjectID,
		Type:        n.Type,
		Severity:    n.Severity,
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		LinkType:    n.LinkType,
		SourceTable: n.SourceTable,
		SourceID:    n.SourceID,
		CreatedAt:   s.now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = int64(seq)
		data, err := encodeNotification(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(rec.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt create notification: %w", err)
	}
	return rec, nil
}

// Notification retrieves one notification by id.
func (s *Store) Notification(_ context.Context, id int64) (*ports.Notification, error) {
	var n *ports.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNotifications).Get(itob(id))
		if data == nil {
			return ports.ErrNotFound
		}
		var err error
		n, err = decodeNotification(data)
		return err
	})
	return n, err
}

// List walks notifications newest first, applying f.
func (s *Store) List(_ context.Context, f ports.ListFilter) ([]ports.Notification, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	search := strings.ToLower(f.Search)

	var out []ports.Notification
	total := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNotifications).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			n, err := decodeNotification(v)
			if err != nil {
				return err
			}
			if !matches(n, f, search) {
				continue
			}
			if total >= f.Offset && len(out) < limit {
				out = append(out, *n)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func matches(n *ports.Notification, f ports.ListFilter, search string) bool {
	if f.ProjectID != "" && n.ProjectID != f.ProjectID {
		return false
	}
	if f.UnreadOnly && !unread(n) {
		return false
	}
	if f.Severity != "" && n.Severity != f.Severity {
		return false
	}
	if search != "" &&
		!strings.Contains(strings.ToLower(n.Title), search) &&
		!strings.Contains(strings.ToLower(n.Message), search) {
		return false
	}
	return true
}

func unread(n *ports.Notification) bool {
	return !n.IsRead && !n.IsDismissed
}

// UnreadSince seeks past sinceID and returns unread notifications in id order.
func (s *Store) UnreadSince(_ context.Context, sinceID int64) ([]ports.Notification, error) {
	var out []ports.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNotifications).Cursor()
		for k, v := c.Seek(itob(sinceID + 1)); k != nil; k, v = c.Next() {
			n, err := decodeNotification(v)
			if err != nil {
				return err
			}
			if unread(n) {
				out = append(out, *n)
			}
		}
		return nil
	})
	return out, err
}

// UnreadCount counts unread, undismissed notifications.
func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	sum, err := s.UnreadSummary(ctx)
	if err != nil {
		return 0, err
	}
	return sum.Total, nil
}

// UnreadSummary groups unread notifications by project and severity.
func (s *Store) UnreadSummary(_ context.Context) (*ports.UnreadSummary, error) {
	sum := &ports.UnreadSummary{
		ByProject:  make(map[string]int),
		BySeverity: make(map[string]int),
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotifications).ForEach(func(_, v []byte) error {
			n, err := decodeNotification(v)
			if err != nil {
				return err
			}
			if unread(n) {
				sum.Total++
				sum.ByProject[n.ProjectID]++
				sum.BySeverity[n.Severity]++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// MarkRead sets IsRead and, the first time, ReadAt.
func (s *Store) MarkRead(_ context.Context, id int64) error {
	now := s.now().UTC()
	return s.update(id, func(n *ports.Notification) bool {
		if n.IsRead {
			return false
		}
		n.IsRead = true
		n.ReadAt = &now
		return true
	})
}

// Dismiss sets IsDismissed.
func (s *Store) Dismiss(_ context.Context, id int64) error {
	return s.update(id, func(n *ports.Notification) bool {
		if n.IsDismissed {
			return false
		}
		n.IsDismissed = true
		return true
	})
}

// MarkAllRead marks every unread notification, optionally of one project, as read.
func (s *Store) MarkAllRead(_ context.Context, projectID string) (int, error) {
	now := s.now().UTC()
	changed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		type put struct {
			key  []byte
			data []byte
		}
		var puts []put
		// Collect first: a bucket must not be modified while a cursor walks it.
		err := b.ForEach(func(k, v []byte) error {
			n, err := decodeNotification(v)
			if err != nil {
				return err
			}
			if n.IsRead || (projectID != "" && n.ProjectID != projectID) {
				return nil
			}
			n.IsRead = true
			n.ReadAt = &now
			data, err := encodeNotification(n)
			if err != nil {
				return err
			}
			puts = append(puts, put{key: append([]byte(nil), k...), data: data})
			return nil
		})
		if err != nil {
			return err
		}
		for _, p := range puts {
			if err := b.Put(p.key, p.data); err != nil {
				return err
			}
		}
		changed = len(puts)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bbolt mark all read: %w", err)
	}
	return changed, nil
}

// update applies fn to one notification inside a write transaction.
// fn returns false when nothing changed.
func (s *Store) update(id int64, fn func(n *ports.Notification) bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		key := itob(id)
		data := b.Get(key)
		if data == nil {
			return ports.ErrNotFound
		}
		n, err := decodeNotification(data)
		if err != nil {
			return err
		}
		if !fn(n) {
			return nil
		}
		out, err := encodeNotification(n)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

var _ ports.Store = (*Store)(nil)
