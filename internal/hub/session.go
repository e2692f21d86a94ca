package hub

import (
	"time"

	"github.com/corey/dashhub/internal/ports"
)

type sessionState int

const (
	stateStarting sessionState = iota
	stateActive
	stateStopping
)

func (s sessionState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateActive:
		return "active"
	case stateStopping:
		return "stopping"
	}
	return "unknown"
}

// session is the live watch state of one project. Every field except the
// channels is only touched with Registry.mu held.
//
// watcher is set iff state is active or stopping.
type session struct {
	projectID string
	gitDir    string
	topic     Topic
	started   time.Time

	state    sessionState
	watcher  ports.ChangeWatcher
	debounce *Debouncer

	// Watcher callbacks only ever send on these; the run loop owns the reaction.
	signals  chan struct{}
	failures chan error

	done   chan struct{} // closed to stop run
	exited chan struct{} // closed when run returns
}

func newSession(projectID, gitDir string, now time.Time) *session {
	return &session{
		projectID: projectID,
		gitDir:    gitDir,
		topic:     ProjectTopic(projectID),
		started:   now,
		state:     stateStarting,
		signals:   make(chan struct{}, 1),
		failures:  make(chan error, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

// signal is the watcher's onChange callback. A signal already queued covers
// this one: both only mean "reschedule the settle".
func (s *session) signal(string) {
	select {
	case s.signals <- struct{}{}:
	default:
	}
}

// fail is the watcher's onError callback. Only the first failure matters.
func (s *session) fail(err error) {
	select {
	case s.failures <- err:
	default:
	}
}

// run feeds raw signals into the debouncer until stopped or the watcher
// fails. onFailure runs on its own goroutine because it tears this session
// down, which waits for run to return.
func (s *session) run(onSignal func(), onFailure func(error)) {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-s.signals:
			onSignal()
			s.debounce.Schedule()
		case err := <-s.failures:
			go onFailure(err)
			return
		}
	}
}

// stop closes the watcher and waits for run to exit. The debouncer must
// already be cancelled.
func (s *session) stop() error {
	err := s.watcher.Stop()
	close(s.done)
	<-s.exited
	return err
}

// SessionInfo is a read-only snapshot of one watch session.
type SessionInfo struct {
	ProjectID     string    `json:"projectId"`
	GitDir        string    `json:"gitDir"`
	State         string    `json:"state"`
	Subscribers   int       `json:"subscribers"`
	SettlePending bool      `json:"settlePending"`
	Started       time.Time `json:"started"`
}
