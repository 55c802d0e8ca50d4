// Package pdfcache keeps lesson PDFs on the local disk for offline reading.
//
// Each lesson view holds an Entry, a small state machine:
//
//	Unchecked --Mount--> Absent | Cached
//	Absent --Download--> Downloading(progress) --ok--> Cached
//	                                           --err--> Absent
//	Cached --ClearCache--> Absent
//
// Downloads of the same lesson are shared: concurrent callers wait for a single
// transfer and all observe its result.
package pdfcache

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/maktab/core"
)

// Dir is the sub-directory of the cache dir holding the PDFs.
const Dir = "lesson-pdfs"

var (
	ErrNoURL             = errors.New("this lesson has no PDF")
	ErrNotAuthenticated  = errors.New("sign in to download lessons")
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	ErrInvalidLessonID   = errors.New("invalid lesson id")
)

// Recorder records remotely that the signed-in user downloaded a lesson.
type Recorder interface {
	Authenticated() bool
	RecordDownload(ctx context.Context, lessonID string) error
}

// Manager owns the cache directory. It is safe for concurrent use.
type Manager struct {
	dir      string
	fetcher  Fetcher
	recorder Recorder
	logger   core.Logger

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]*flight
}

func NewManager(cacheDir string, fetcher Fetcher, recorder Recorder, logger core.Logger) *Manager {
	return &Manager{
		dir:      filepath.Join(cacheDir, Dir),
		fetcher:  fetcher,
		recorder: recorder,
		logger:   logger,
		inflight: make(map[string]*flight),
	}
}

// Path returns the deterministic location of a lesson's PDF.
func (m *Manager) Path(lessonID string) string {
	return filepath.Join(m.dir, lessonID+".pdf")
}

func validLessonID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}

// Exists reports whether the lesson's PDF is in the cache.
func (m *Manager) Exists(lessonID string) (bool, error) {
	if !validLessonID(lessonID) {
		return false, ErrInvalidLessonID
	}
	fi, err := os.Stat(m.Path(lessonID))
	switch {
	case err == nil:
		return fi.Mode().IsRegular(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrap(err, "checking cache")
	}
}

// Remove deletes the lesson's PDF. A missing file is not an error.
func (m *Manager) Remove(lessonID string) error {
	if !validLessonID(lessonID) {
		return ErrInvalidLessonID
	}
	if err := os.Remove(m.Path(lessonID)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing cached pdf")
	}
	return nil
}

// progress of an in-flight download, as float64 bits.
type progress struct{ bits uint64 }

func (p *progress) load() float64 { return math.Float64frombits(atomic.LoadUint64(&p.bits)) }

// advance only ever moves forward.
func (p *progress) advance(v float64) {
	if v > 1 {
		v = 1
	}
	for {
		old := atomic.LoadUint64(&p.bits)
		if math.Float64frombits(old) >= v {
			return
		}
		if atomic.CompareAndSwapUint64(&p.bits, old, math.Float64bits(v)) {
			return
		}
	}
}

func (m *Manager) progressOf(lessonID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.inflight[lessonID]; ok {
		return f.p.load()
	}
	return 0
}

// flight is a shared transfer and the callers waiting for it.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	p       *progress
	waiters int
}

// join registers a caller of the lesson's transfer. The transfer context keeps the values
// of the first caller's ctx but not its cancellation.
func (m *Manager) join(ctx context.Context, lessonID string) *flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.inflight[lessonID]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel, p: &progress{}}
		m.inflight[lessonID] = f
	}
	f.waiters++
	return f
}

// leave unregisters a caller. The transfer is aborted once nobody waits for it.
func (m *Manager) leave(lessonID string, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if m.inflight[lessonID] == f {
		delete(m.inflight, lessonID)
	}
	// later callers must not wait for an aborted transfer
	m.group.Forget(lessonID)
}

// download fetches the PDF once per lesson id, whatever the number of concurrent callers.
// A caller giving up only stops waiting; the transfer goes on while others wait for it.
func (m *Manager) download(ctx context.Context, lessonID, url string) (string, error) {
	f := m.join(ctx, lessonID)
	defer m.leave(lessonID, f)

	ch := m.group.DoChan(lessonID, func() (interface{}, error) {
		// a shared download may have completed just before this call
		if ok, err := m.Exists(lessonID); err != nil || ok {
			return m.Path(lessonID), err
		}

		path, err := m.fetch(f.ctx, lessonID, url, f.p)
		if err != nil {
			downloadsTotal.WithLabelValues("error").Inc()
			return "", err
		}
		downloadsTotal.WithLabelValues("ok").Inc()

		if err = m.recorder.RecordDownload(f.ctx, lessonID); err != nil {
			m.logger.Warn(fmt.Sprintf("recording download of lesson %s: %v", lessonID, err), err)
		}
		return path, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) fetch(ctx context.Context, lessonID, url string, p *progress) (string, error) {
	body, size, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	if err = os.MkdirAll(m.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating cache directory")
	}
	tmp, err := os.CreateTemp(m.dir, "."+lessonID+"-*.part")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := &progressWriter{w: tmp, size: size, p: p}
	if _, err = io.Copy(w, body); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "downloading pdf")
	}
	if err = tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing temp file")
	}

	path := m.Path(lessonID)
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(err, "moving pdf into the cache")
	}
	p.advance(1)
	return path, nil
}

type progressWriter struct {
	w       io.Writer
	size    int64
	written int64
	p       *progress
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.written += int64(n)
	if pw.size > 0 {
		// 1 is reached once the file is in place
		pw.p.advance(math.Min(float64(pw.written)/float64(pw.size), 0.99))
	}
	return n, err
}
