// Package hub implements the real-time change-notification core: a topic
// broadcaster shared by per-project .git watch sessions and the global
// notification feed.
//
// Ownership: the Registry owns every watch session, and each session owns its
// ChangeWatcher and its Debouncer. The Broadcaster only references
// connections; the HTTP layer owns the underlying responses.
//
// Lock order: Registry.mu → Debouncer → Broadcaster.mu. Nothing that holds
// Broadcaster.mu calls back into the registry, and store calls never happen
// under either lock.
package hub

import (
	"errors"
	"strings"
)

var (
	// ErrAttach means the watcher could not be started for a project.
	ErrAttach = errors.New("watch attach failed")
	// ErrConnClosed is returned by Write on a closed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Write when a connection's buffer is full.
	ErrSlowConsumer = errors.New("connection buffer full")
	// ErrShuttingDown is returned by Subscribe once Shutdown has begun.
	ErrShuttingDown = errors.New("hub shutting down")
	// ErrInvalidNotification wraps notification validation failures.
	ErrInvalidNotification = errors.New("invalid notification")
)

// Topic addresses a broadcast channel: one project, or the global feed.
type Topic string

// GlobalTopic is the single topic for cross-cutting notifications.
const GlobalTopic Topic = "global"

const projectPrefix = "project:"

// Topic kinds, used as metric labels.
const (
	TopicKindProject = "project"
	TopicKindGlobal  = "global"
)

// ProjectTopic returns the topic for one project's watch stream.
func ProjectTopic(projectID string) Topic {
	return Topic(projectPrefix + projectID)
}

// Kind returns TopicKindProject or TopicKindGlobal.
func (t Topic) Kind() string {
	if strings.HasPrefix(string(t), projectPrefix) {
		return TopicKindProject
	}
	return TopicKindGlobal
}

// Conn is one open streaming connection as seen by the hub.
// Implementations must make Write non-blocking and safe for concurrent use.
type Conn interface {
	// ID is unique for the process lifetime.
	ID() string
	// Write queues a frame. It fails once the peer is gone.
	Write(f Frame) error
	// Close terminates the stream cleanly. Idempotent.
	Close() error
}
