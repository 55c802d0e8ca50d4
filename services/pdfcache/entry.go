package pdfcache

import (
	"context"
	"sync"
)

type State int

const (
	StateUnchecked State = iota
	StateAbsent
	StateCached
	StateDownloading
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateAbsent:
		return "absent"
	case StateCached:
		return "cached"
	case StateDownloading:
		return "downloading"
	default:
		return "unknown"
	}
}

// Entry is the cache state of one lesson, as seen by one lesson view.
type Entry struct {
	mgr      *Manager
	lessonID string
	url      string

	mu    sync.Mutex
	state State
	path  string
}

// Entry returns an Unchecked entry for the lesson. url may be empty if the lesson has no PDF.
func (m *Manager) Entry(lessonID, url string) *Entry {
	return &Entry{mgr: m, lessonID: lessonID, url: url, state: StateUnchecked}
}

func (e *Entry) LessonID() string { return e.lessonID }

func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Path returns the local file once Cached.
func (e *Entry) Path() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path, e.state == StateCached
}

// Progress is in [0, 1]: 0 until a download starts, 1 once Cached.
func (e *Entry) Progress() float64 {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	switch state {
	case StateCached:
		return 1
	case StateDownloading:
		return e.mgr.progressOf(e.lessonID)
	default:
		return 0
	}
}

// Mount checks the local cache, without any network call.
// It may be called again at any time except during a download.
func (e *Entry) Mount(_ context.Context) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateDownloading {
		return e.state, ErrInvalidTransition
	}
	ok, err := e.mgr.Exists(e.lessonID)
	if err != nil {
		return e.state, err
	}
	if ok {
		e.state = StateCached
		e.path = e.mgr.Path(e.lessonID)
		mountsTotal.WithLabelValues("hit").Inc()
	} else {
		e.state = StateAbsent
		e.path = ""
		mountsTotal.WithLabelValues("miss").Inc()
	}
	return e.state, nil
}

// Download fetches the PDF from the Absent state and returns its local path.
// On failure the entry goes back to Absent; the caller may try again.
func (e *Entry) Download(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.state != StateAbsent {
		e.mu.Unlock()
		return "", ErrInvalidTransition
	}
	if e.url == "" {
		e.mu.Unlock()
		return "", ErrNoURL
	}
	if e.mgr.recorder == nil || !e.mgr.recorder.Authenticated() {
		e.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	e.state = StateDownloading
	e.mu.Unlock()

	path, err := e.mgr.download(ctx, e.lessonID, e.url)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateAbsent
		return "", err
	}
	e.state = StateCached
	e.path = path
	return path, nil
}

// ClearCache deletes the local PDF.
func (e *Entry) ClearCache() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCached {
		return ErrInvalidTransition
	}
	if err := e.mgr.Remove(e.lessonID); err != nil {
		return err
	}
	e.state = StateAbsent
	e.path = ""
	return nil
}
