package ports

// ChangeWatcher monitors one project's version-control metadata directory
// (.git) and reports that something under it changed. The adapter (fsnotify)
// must drop noisy internal paths (objects/, logs/, hooks/, lock files) before
// invoking onChange, so consumers only ever see meaningful signals.
//
// One Watch call owns exactly one underlying OS handle. A ChangeWatcher is not
// reusable: after Stop, create a new one.
type ChangeWatcher interface {
	// Watch starts monitoring gitDir. onChange is called with the absolute
	// path of each relevant change; onError is called at most once when the
	// watch can no longer continue (e.g. gitDir was removed). Both callbacks
	// may be invoked from any goroutine. Returns an error if gitDir doesn't
	// exist or cannot be monitored.
	Watch(gitDir string, onChange func(path string), onError func(err error)) error

	// Stop ends monitoring and releases all resources. After Stop returns,
	// no further callbacks will fire. Safe to call multiple times.
	Stop() error
}

// WatcherFactory creates a fresh, unstarted ChangeWatcher.
type WatcherFactory func() (ChangeWatcher, error)
