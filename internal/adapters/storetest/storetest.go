// Package storetest holds the behaviour every ports.Store backend must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/dashhub/internal/ports"
)

// Factory opens a fresh, empty store. Reopen reopens the store at the same
// location after the first one is closed; nil skips the durability test.
type Factory struct {
	Open   func(t *testing.T) ports.Store
	Reopen func(t *testing.T) ports.Store
}

func note(project, severity, title string) ports.NewNotification {
	return ports.NewNotification{
		ProjectID: project,
		Type:      "plan_completed",
		Severity:  severity,
		Title:     title,
		Message:   "message for " + title,
		Link:      "/plans/1",
		LinkType:  "plan",
	}
}

// Run executes the shared store suite.
func Run(t *testing.T, f Factory) {
	t.Run("Projects", func(t *testing.T) { testProjects(t, f.Open(t)) })
	t.Run("CreateAssignsIncreasingIDs", func(t *testing.T) { testCreate(t, f.Open(t)) })
	t.Run("List", func(t *testing.T) { testList(t, f.Open(t)) })
	t.Run("UnreadSinceAndCount", func(t *testing.T) { testUnread(t, f.Open(t)) })
	t.Run("FlagsOnlyMoveForward", func(t *testing.T) { testFlags(t, f.Open(t)) })
	t.Run("MarkAllRead", func(t *testing.T) { testMarkAllRead(t, f.Open(t)) })
	t.Run("UnreadSummary", func(t *testing.T) { testSummary(t, f.Open(t)) })
	if f.Reopen != nil {
		t.Run("SurvivesReopen", func(t *testing.T) { testReopen(t, f) })
	}
}

func testProjects(t *testing.T, s ports.Store) {
	ctx := context.Background()

	_, err := s.Project(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, s.SaveProject(ctx, ports.Project{ID: "b", Name: "Beta", Path: "/src/b"}))
	require.NoError(t, s.SaveProject(ctx, ports.Project{ID: "a", Name: "Alpha", Path: "/src/a"}))
	require.NoError(t, s.SaveProject(ctx, ports.Project{ID: "a", Name: "Alpha2", Path: "/src/a2"}))

	p, err := s.Project(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, ports.Project{ID: "a", Name: "Alpha2", Path: "/src/a2"}, *p)

	all, err := s.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func testCreate(t *testing.T, s ports.Store) {
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	first, err := s.Create(ctx, note("p1", ports.SeverityInfo, "one"))
	require.NoError(t, err)
	second, err := s.Create(ctx, note("p1", ports.SeverityError, "two"))
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.True(t, first.CreatedAt.After(before))
	assert.False(t, first.IsRead)
	assert.False(t, first.IsDismissed)
	assert.Nil(t, first.ReadAt)

	got, err := s.Notification(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Title)
	assert.Equal(t, ports.SeverityError, got.Severity)
	assert.Equal(t, "/plans/1", got.Link)
	assert.Equal(t, "plan", got.LinkType)
	assert.True(t, second.CreatedAt.Equal(got.CreatedAt))

	_, err = s.Notification(ctx, 9999)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func testList(t *testing.T, s ports.Store) {
	ctx := context.Background()
	mustCreate(t, s, note("p1", ports.SeverityInfo, "build ok"))
	mustCreate(t, s, note("p2", ports.SeverityError, "build broke"))
	third := mustCreate(t, s, note("p1", ports.SeverityWarning, "disk low"))
	mustCreate(t, s, note("p1", ports.SeverityError, "tests failed"))
	require.NoError(t, s.MarkRead(ctx, third.ID))

	all, total, err := s.List(ctx, ports.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, "tests failed", all[0].Title, "newest first")

	p1, total, err := s.List(ctx, ports.ListFilter{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, p1, 3)

	unread, total, err := s.List(ctx, ports.ListFilter{ProjectID: "p1", UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, unread, 2)

	errs, _, err := s.List(ctx, ports.ListFilter{Severity: ports.SeverityError})
	require.NoError(t, err)
	assert.Len(t, errs, 2)

	found, _, err := s.List(ctx, ports.ListFilter{Search: "build"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	page, total, err := s.List(ctx, ports.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total, "total ignores paging")
	require.Len(t, page, 2)
	assert.Equal(t, "disk low", page[0].Title)
	assert.Equal(t, "build broke", page[1].Title)
}

func testUnread(t *testing.T, s ports.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, note("p1", ports.SeverityInfo, "a"))
	b := mustCreate(t, s, note("p1", ports.SeverityInfo, "b"))
	c := mustCreate(t, s, note("p1", ports.SeverityInfo, "c"))
	d := mustCreate(t, s, note("p1", ports.SeverityInfo, "d"))
	require.NoError(t, s.MarkRead(ctx, b.ID))
	require.NoError(t, s.Dismiss(ctx, c.ID))

	n, err := s.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	since, err := s.UnreadSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, a.ID, since[0].ID, "oldest first")
	assert.Equal(t, d.ID, since[1].ID)

	since, err = s.UnreadSince(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, d.ID, since[0].ID)
}

func testFlags(t *testing.T, s ports.Store) {
	ctx := context.Background()
	n := mustCreate(t, s, note("p1", ports.SeverityInfo, "x"))

	require.NoError(t, s.MarkRead(ctx, n.ID))
	got, err := s.Notification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	firstRead := *got.ReadAt

	// Idempotent; read_at keeps its first value.
	require.NoError(t, s.MarkRead(ctx, n.ID))
	got, err = s.Notification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.True(t, firstRead.Equal(*got.ReadAt))

	require.NoError(t, s.Dismiss(ctx, n.ID))
	require.NoError(t, s.Dismiss(ctx, n.ID))
	got, err = s.Notification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDismissed)
	assert.True(t, got.IsRead)

	assert.ErrorIs(t, s.MarkRead(ctx, 424242), ports.ErrNotFound)
	assert.ErrorIs(t, s.Dismiss(ctx, 424242), ports.ErrNotFound)
}

func testMarkAllRead(t *testing.T, s ports.Store) {
	ctx := context.Background()
	mustCreate(t, s, note("p1", ports.SeverityInfo, "a"))
	mustCreate(t, s, note("p2", ports.SeverityInfo, "b"))
	mustCreate(t, s, note("p2", ports.SeverityInfo, "c"))

	n, err := s.MarkAllRead(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err = s.MarkAllRead(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.MarkAllRead(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testSummary(t *testing.T, s ports.Store) {
	ctx := context.Background()
	mustCreate(t, s, note("p1", ports.SeverityInfo, "a"))
	mustCreate(t, s, note("p1", ports.SeverityError, "b"))
	mustCreate(t, s, note("p2", ports.SeverityError, "c"))
	read := mustCreate(t, s, note("p2", ports.SeverityWarning, "d"))
	require.NoError(t, s.MarkRead(ctx, read.ID))

	sum, err := s.UnreadSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, sum.ByProject)
	assert.Equal(t, map[string]int{ports.SeverityInfo: 1, ports.SeverityError: 2}, sum.BySeverity)
}

func testReopen(t *testing.T, f Factory) {
	ctx := context.Background()
	s := f.Open(t)
	created := mustCreate(t, s, note("p1", ports.SeverityInfo, "durable"))
	require.NoError(t, s.SaveProject(ctx, ports.Project{ID: "p1", Path: "/src/p1"}))
	require.NoError(t, s.Close())

	s2 := f.Reopen(t)
	got, err := s2.Notification(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Title)

	next := mustCreate(t, s2, note("p1", ports.SeverityInfo, "after"))
	assert.Greater(t, next.ID, created.ID, "ids keep increasing across restarts")

	p, err := s2.Project(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "/src/p1", p.Path)
}

func mustCreate(t *testing.T, s ports.Store, n ports.NewNotification) *ports.Notification {
	t.Helper()
	rec, err := s.Create(context.Background(), n)
	require.NoError(t, err)
	return rec
}
