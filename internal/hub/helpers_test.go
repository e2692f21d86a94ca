package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corey/dashhub/internal/ports"
)

// =============================================================================
// Test doubles shared by the hub tests: a scriptable ChangeWatcher, a
// recording Conn, and an in-memory NotificationStore.
// =============================================================================

// fakeWatcher records its callbacks so tests can drive raw events by hand.
type fakeWatcher struct {
	mu       sync.Mutex
	gitDir   string
	onChange func(string)
	onError  func(error)
	watchErr error
	stops    int
}

func (w *fakeWatcher) Watch(gitDir string, onChange func(string), onError func(error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchErr != nil {
		return w.watchErr
	}
	w.gitDir = gitDir
	w.onChange = onChange
	w.onError = onError
	return nil
}

func (w *fakeWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
	w.onChange = nil
	w.onError = nil
	return nil
}

// emit simulates one raw filesystem event. No-op after Stop.
func (w *fakeWatcher) emit(path string) {
	w.mu.Lock()
	cb := w.onChange
	w.mu.Unlock()
	if cb != nil {
		cb(path)
	}
}

// crash simulates the watched directory disappearing.
func (w *fakeWatcher) crash(err error) {
	w.mu.Lock()
	cb := w.onError
	w.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (w *fakeWatcher) stopCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops
}

// watcherFarm is a WatcherFactory that hands out fakeWatchers and counts them.
type watcherFarm struct {
	mu       sync.Mutex
	created  []*fakeWatcher
	watchErr error
}

func (f *watcherFarm) factory() (ports.ChangeWatcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWatcher{watchErr: f.watchErr}
	f.created = append(f.created, w)
	return w, nil
}

func (f *watcherFarm) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *watcherFarm) last() *fakeWatcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// recConn records every frame written to it. failAfter < 0 never fails;
// otherwise writes beyond the first failAfter return an error.
type recConn struct {
	id string

	mu        sync.Mutex
	frames    []Frame
	failAfter int
	closed    bool
	writes    atomic.Int64
}

func newRecConn() *recConn {
	return &recConn{id: uuid.NewString(), failAfter: -1}
}

func newFailingConn(failAfter int) *recConn {
	c := newRecConn()
	c.failAfter = failAfter
	return c
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes.Add(1)
	if c.closed {
		return ErrConnClosed
	}
	if c.failAfter >= 0 && len(c.frames) >= c.failAfter {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recConn) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func (c *recConn) kinds() []string {
	var out []string
	for _, f := range c.snapshot() {
		out = append(out, f.Kind())
	}
	return out
}

func (c *recConn) countKind(kind string) int {
	n := 0
	for _, f := range c.snapshot() {
		if f.Kind() == kind {
			n++
		}
	}
	return n
}

func (c *recConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// memStore is an in-memory NotificationStore. Set failCreate to make Create fail.
type memStore struct {
	mu         sync.Mutex
	next       int64
	items      []ports.Notification
	failCreate error
	failCount  error
}

func (s *memStore) Create(_ context.Context, n ports.NewNotification) (*ports.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	s.next++
	rec := ports.Notification{
		ID:          s.next,
		ProjectID:   n.ProjectID,
		Type:        n.Type,
		Severity:    n.Severity,
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		LinkType:    n.LinkType,
		SourceTable: n.SourceTable,
		SourceID:    n.SourceID,
		CreatedAt:   time.Now(),
	}
	s.items = append(s.items, rec)
	return &rec, nil
}

func (s *memStore) find(id int64) *ports.Notification {
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i]
		}
	}
	return nil
}

func (s *memStore) Notification(_ context.Context, id int64) (*ports.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(id)
	if n == nil {
		return nil, ports.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) List(_ context.Context, f ports.ListFilter) ([]ports.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.Notification
	for i := len(s.items) - 1; i >= 0; i-- {
		n := s.items[i]
		if f.ProjectID != "" && n.ProjectID != f.ProjectID {
			continue
		}
		if f.UnreadOnly && (n.IsRead || n.IsDismissed) {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (s *memStore) UnreadSince(_ context.Context, sinceID int64) ([]ports.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.Notification
	for _, n := range s.items {
		if n.ID > sinceID && !n.IsRead && !n.IsDismissed {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) UnreadCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount != nil {
		return 0, s.failCount
	}
	c := 0
	for _, n := range s.items {
		if !n.IsRead && !n.IsDismissed {
			c++
		}
	}
	return c, nil
}

func (s *memStore) UnreadSummary(ctx context.Context) (*ports.UnreadSummary, error) {
	total, err := s.UnreadCount(ctx)
	if err != nil {
		return nil, err
	}
	return &ports.UnreadSummary{Total: total}, nil
}

func (s *memStore) MarkRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(id)
	if n == nil {
		return ports.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (s *memStore) MarkAllRead(_ context.Context, projectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for i := range s.items {
		n := &s.items[i]
		if n.IsRead || (projectID != "" && n.ProjectID != projectID) {
			continue
		}
		n.IsRead = true
		c++
	}
	return c, nil
}

func (s *memStore) Dismiss(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(id)
	if n == nil {
		return ports.ErrNotFound
	}
	n.IsDismissed = true
	return nil
}

var _ ports.NotificationStore = (*memStore)(nil)

// eventually polls cond until it holds or timeout expires.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// quietFor asserts cond stays false for d.
func quietFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	require.Never(t, cond, d, 5*time.Millisecond, msg)
}
