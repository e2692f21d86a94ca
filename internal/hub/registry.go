package hub

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/corey/dashhub/internal/ports"
)

// DefaultQuietPeriod is how long .git must stay quiet before subscribers hear about it.
const DefaultQuietPeriod = 300 * time.Millisecond

// RegistryConfig holds the dependencies of a Registry.
type RegistryConfig struct {
	Broadcaster *Broadcaster         // required
	NewWatcher  ports.WatcherFactory // required
	QuietPeriod time.Duration        // default DefaultQuietPeriod
	Logger      *zap.Logger
	Metrics     ports.Metrics
	Now         func() time.Time // for tests; default time.Now
}

// Registry maps project id → watch session. It starts a ChangeWatcher when
// a project gains its first subscriber and tears it down when the last one
// leaves. All transitions happen under mu, so a project never has two
// sessions and a teardown always finishes before the next subscribe starts.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	bc         *Broadcaster
	newWatcher ports.WatcherFactory
	quiet      time.Duration
	now        func() time.Time
	logger     *zap.Logger
	metrics    ports.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = ports.NopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		sessions:   make(map[string]*session),
		bc:         cfg.Broadcaster,
		newWatcher: cfg.NewWatcher,
		quiet:      cfg.QuietPeriod,
		now:        cfg.Now,
		logger:     cfg.Logger.Named("registry"),
		metrics:    cfg.Metrics,
	}
}

// Subscribe attaches conn to projectID's watch stream, starting a watcher on
// gitDir if this is the first subscriber. On success conn receives a
// connected frame before any git-change frame. If the watcher cannot be
// attached, conn receives an error frame, no session is created, and the
// returned error wraps ErrAttach.
func (r *Registry) Subscribe(projectID, gitDir string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = conn.Write(ErrorFrame{ProjectID: projectID, Message: ErrShuttingDown.Error()})
		return ErrShuttingDown
	}

	s := r.sessions[projectID]
	if s == nil {
		var err error
		s, err = r.startLocked(projectID, gitDir)
		if err != nil {
			r.metrics.ObserveAttachFailure()
			r.logger.Warn("watch attach failed",
				zap.String("project", projectID),
				zap.String("path", gitDir),
				zap.Error(err),
			)
			_ = conn.Write(ErrorFrame{ProjectID: projectID, Message: err.Error()})
			return fmt.Errorf("%w: %s: %v", ErrAttach, gitDir, err)
		}
		r.sessions[projectID] = s
		r.metrics.SetActiveSessions(len(r.sessions))
	}

	if err := conn.Write(ConnectedFrame{ProjectID: projectID}); err != nil {
		// Peer vanished before it was ever a subscriber. If we just created
		// the session for it, don't leave it running with nobody listening.
		if r.bc.Count(s.topic) == 0 {
			r.teardownLocked(s)
		}
		return err
	}
	r.bc.Add(s.topic, conn)

	r.logger.Debug("subscribed",
		zap.String("project", projectID),
		zap.String("conn", conn.ID()),
		zap.Int("subscribers", r.bc.Count(s.topic)),
	)
	return nil
}

// Unsubscribe detaches conn. Removing the last subscriber cancels the
// pending settle, stops the watcher, and forgets the session, in that order.
// Unsubscribing a connection that is not a member is a no-op.
func (r *Registry) Unsubscribe(projectID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic := ProjectTopic(projectID)
	if !r.bc.Remove(topic, conn) {
		return
	}
	s := r.sessions[projectID]
	if s == nil {
		return
	}
	remaining := r.bc.Count(topic)
	r.logger.Debug("unsubscribed",
		zap.String("project", projectID),
		zap.String("conn", conn.ID()),
		zap.Int("subscribers", remaining),
	)
	if remaining == 0 {
		r.teardownLocked(s)
	}
}

// Active reports whether projectID currently has a watch session.
func (r *Registry) Active(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[projectID]
	return ok
}

// Sessions returns a snapshot of all sessions ordered by project id.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{
			ProjectID:     s.projectID,
			GitDir:        s.gitDir,
			State:         s.state.String(),
			Subscribers:   r.bc.Count(s.topic),
			SettlePending: s.debounce.Pending(),
			Started:       s.started,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// Shutdown cancels every pending settle and stops every watcher. Sessions
// are independent, so they are stopped concurrently. After Shutdown,
// Subscribe fails with ErrShuttingDown. Connections are left to the caller
// (see Broadcaster.CloseAll).
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var g errgroup.Group
	for _, s := range r.sessions {
		g.Go(func() error {
			s.state = stateStopping
			s.debounce.Cancel()
			if err := s.stop(); err != nil {
				return fmt.Errorf("stop watcher %s: %w", s.projectID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	n := len(r.sessions)
	clear(r.sessions)
	r.metrics.SetActiveSessions(0)
	r.logger.Info("watch sessions stopped", zap.Int("sessions", n))
	return err
}

// startLocked creates a session and attaches its watcher.
func (r *Registry) startLocked(projectID, gitDir string) (*session, error) {
	s := newSession(projectID, gitDir, r.now())

	w, err := r.newWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	s.debounce = NewDebouncer(r.quiet, func() { r.settle(s) })
	if err := w.Watch(gitDir, s.signal, s.fail); err != nil {
		_ = w.Stop()
		return nil, err
	}
	s.watcher = w
	s.state = stateActive

	go s.run(
		func() { r.metrics.ObserveRawEvent(projectID) },
		func(err error) { r.expire(s, err) },
	)

	r.logger.Info("watch started", zap.String("project", projectID), zap.String("path", gitDir))
	return s, nil
}

// teardownLocked moves s to stopping and releases everything it owns.
// The debounce is cancelled before the watcher closes so no settle can run
// against a half-removed session.
func (r *Registry) teardownLocked(s *session) {
	s.state = stateStopping
	s.debounce.Cancel()
	if err := s.stop(); err != nil {
		r.logger.Warn("watcher close failed", zap.String("project", s.projectID), zap.Error(err))
	}
	delete(r.sessions, s.projectID)
	r.metrics.SetActiveSessions(len(r.sessions))
	r.logger.Info("watch stopped", zap.String("project", s.projectID))
}

// settle is the debouncer callback.
func (r *Registry) settle(s *session) {
	r.metrics.ObserveSettle(s.projectID)
	remaining := r.bc.Publish(s.topic, GitChangeFrame{ProjectID: s.projectID, Timestamp: r.now()})
	if remaining == 0 {
		// Every write failed, or the last unsubscribe is mid-teardown.
		// Either way reap re-checks under the lock.
		go r.reap(s)
	}
}

// reap tears s down if it is still registered and nobody listens.
func (r *Registry) reap(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.projectID] != s || r.bc.Count(s.topic) > 0 {
		return
	}
	r.teardownLocked(s)
}

// expire handles a watcher that failed after becoming active: same teardown
// as a last unsubscribe, then one error frame to whoever is still listening,
// then their streams are closed.
func (r *Registry) expire(s *session, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.projectID] != s {
		return
	}
	r.metrics.ObserveWatcherFailure()
	r.logger.Warn("watcher failed",
		zap.String("project", s.projectID),
		zap.String("path", s.gitDir),
		zap.Error(cause),
	)
	r.teardownLocked(s)
	r.bc.Publish(s.topic, ErrorFrame{ProjectID: s.projectID, Message: cause.Error()})
	r.bc.CloseTopic(s.topic)
}
