package pdfcache

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktab/core"
	logsvc "github.com/trezcool/maktab/services/logger"
)

var pdfData = []byte("%PDF-1.4 fractions lesson")

type fetcherMock struct {
	calls   int32
	aborted int32
	data    []byte
	err     error
	gate    chan struct{} // if set, Fetch blocks until it is closed
}

func (f *fetcherMock) Fetch(ctx context.Context, _ string) (io.ReadCloser, int64, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			atomic.AddInt32(&f.aborted, 1)
			return nil, 0, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), int64(len(f.data)), nil
}

type recorderMock struct {
	mu       sync.Mutex
	signedIn bool
	err      error
	recorded []string
}

func (r *recorderMock) Authenticated() bool { return r.signedIn }

func (r *recorderMock) RecordDownload(_ context.Context, lessonID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, lessonID)
	return r.err
}

func setup(t *testing.T, fetcher Fetcher, recorder Recorder) *Manager {
	t.Helper()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	return NewManager(t.TempDir(), fetcher, recorder, logger)
}

func TestEntry_downloadThenMount(t *testing.T) {
	fetcher := &fetcherMock{data: pdfData}
	recorder := &recorderMock{signedIn: true}
	mgr := setup(t, fetcher, recorder)
	ctx := context.Background()

	e := mgr.Entry("lsn-1", "http://localhost/storage/lesson-pdfs/lsn-1/1.pdf")
	assert.Equal(t, StateUnchecked, e.State())

	state, err := e.Mount(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)
	assert.Equal(t, 0.0, e.Progress())

	path, err := e.Download(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "lsn-1.pdf"), path)
	assert.Equal(t, Dir, filepath.Base(filepath.Dir(path)))
	assert.Equal(t, StateCached, e.State())
	assert.Equal(t, 1.0, e.Progress())
	assert.Equal(t, []string{"lsn-1"}, recorder.recorded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pdfData, data)

	// a new view of the same lesson finds it without any network call
	e2 := mgr.Entry("lsn-1", "http://localhost/storage/lesson-pdfs/lsn-1/1.pdf")
	state, err = e2.Mount(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCached, state)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))

	got, ok := e2.Path()
	assert.True(t, ok)
	assert.Equal(t, path, got)
}

func TestEntry_clearCache(t *testing.T) {
	mgr := setup(t, &fetcherMock{data: pdfData}, &recorderMock{signedIn: true})
	ctx := context.Background()

	e := mgr.Entry("lsn-1", "http://pdf")
	_, err := e.Mount(ctx)
	require.NoError(t, err)
	assert.Equal(t, ErrInvalidTransition, e.ClearCache())

	path, err := e.Download(ctx)
	require.NoError(t, err)
	require.NoError(t, e.ClearCache())
	assert.Equal(t, StateAbsent, e.State())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	state, err := mgr.Entry("lsn-1", "http://pdf").Mount(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)
}

func TestEntry_downloadPreconditions(t *testing.T) {
	ctx := context.Background()
	fetcher := &fetcherMock{data: pdfData}

	tests := []struct {
		name     string
		url      string
		recorder Recorder
		mount    bool
		wantErr  error
	}{
		{name: "unchecked", url: "http://pdf", recorder: &recorderMock{signedIn: true}, wantErr: ErrInvalidTransition},
		{name: "no url", url: "", recorder: &recorderMock{signedIn: true}, mount: true, wantErr: ErrNoURL},
		{name: "signed out", url: "http://pdf", recorder: &recorderMock{}, mount: true, wantErr: ErrNotAuthenticated},
		{name: "no recorder", url: "http://pdf", mount: true, wantErr: ErrNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := setup(t, fetcher, tt.recorder)
			e := mgr.Entry("lsn-1", tt.url)
			if tt.mount {
				_, err := e.Mount(ctx)
				require.NoError(t, err)
			}
			_, err := e.Download(ctx)
			assert.Equal(t, tt.wantErr, err)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&fetcher.calls))
}

func TestEntry_downloadFailure(t *testing.T) {
	fetchErr := errors.New("connection reset by peer")
	recorder := &recorderMock{signedIn: true}
	mgr := setup(t, &fetcherMock{err: fetchErr}, recorder)
	ctx := context.Background()

	e := mgr.Entry("lsn-1", "http://pdf")
	_, err := e.Mount(ctx)
	require.NoError(t, err)

	_, err = e.Download(ctx)
	assert.Equal(t, fetchErr, errors.Cause(err))
	assert.Equal(t, StateAbsent, e.State())
	assert.Empty(t, recorder.recorded)

	ok, err := mgr.Exists("lsn-1")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(mgr.dir)
	if err == nil {
		assert.Empty(t, entries, "no temp file left behind")
	}
}

func TestEntry_recordFailureKeepsCache(t *testing.T) {
	recorder := &recorderMock{signedIn: true, err: errors.New("backend unavailable")}
	mgr := setup(t, &fetcherMock{data: pdfData}, recorder)
	ctx := context.Background()

	e := mgr.Entry("lsn-1", "http://pdf")
	_, err := e.Mount(ctx)
	require.NoError(t, err)

	_, err = e.Download(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCached, e.State())
}

func TestManager_concurrentDownloadsAreShared(t *testing.T) {
	fetcher := &fetcherMock{data: pdfData, gate: make(chan struct{})}
	recorder := &recorderMock{signedIn: true}
	mgr := setup(t, fetcher, recorder)
	ctx := context.Background()

	const n = 5
	entries := make([]*Entry, n)
	for i := range entries {
		entries[i] = mgr.Entry("lsn-1", "http://pdf")
		_, err := entries[i].Mount(ctx)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = entries[i].Download(ctx)
		}(i)
	}

	// wait for every caller to be in flight before letting the transfer go
	require.Eventually(t, func() bool {
		for _, e := range entries {
			if e.State() != StateDownloading {
				return false
			}
		}
		return true
	}, timeout, tick)
	close(fetcher.gate)
	wg.Wait()

	for i := range entries {
		require.NoError(t, errs[i])
		assert.Equal(t, mgr.Path("lsn-1"), paths[i])
		assert.Equal(t, StateCached, entries[i].State())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
	assert.Len(t, recorder.recorded, 1)
}

func TestManager_cancelledCallerLeavesSharedDownload(t *testing.T) {
	fetcher := &fetcherMock{data: pdfData, gate: make(chan struct{})}
	recorder := &recorderMock{signedIn: true}
	mgr := setup(t, fetcher, recorder)

	first := mgr.Entry("lsn-1", "http://pdf")
	second := mgr.Entry("lsn-1", "http://pdf")
	for _, e := range []*Entry{first, second} {
		_, err := e.Mount(context.Background())
		require.NoError(t, err)
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := first.Download(firstCtx)
		firstDone <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fetcher.calls) == 1 }, timeout, tick)

	secondDone := make(chan error, 1)
	go func() {
		_, err := second.Download(context.Background())
		secondDone <- err
	}()
	require.Eventually(t, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		f, ok := mgr.inflight["lsn-1"]
		return ok && f.waiters == 2
	}, timeout, tick)

	cancelFirst()
	assert.Equal(t, context.Canceled, <-firstDone)
	assert.Equal(t, StateAbsent, first.State())

	close(fetcher.gate)
	require.NoError(t, <-secondDone)
	assert.Equal(t, StateCached, second.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fetcher.aborted))

	data, err := os.ReadFile(mgr.Path("lsn-1"))
	require.NoError(t, err)
	assert.Equal(t, pdfData, data)
}

func TestManager_downloadAbortedWhenEveryCallerLeaves(t *testing.T) {
	fetcher := &fetcherMock{data: pdfData, gate: make(chan struct{})}
	mgr := setup(t, fetcher, &recorderMock{signedIn: true})

	e := mgr.Entry("lsn-1", "http://pdf")
	_, err := e.Mount(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Download(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fetcher.calls) == 1 }, timeout, tick)

	cancel()
	assert.Equal(t, context.Canceled, <-done)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fetcher.aborted) == 1 }, timeout, tick)
	assert.Equal(t, 0.0, e.Progress())

	// a new attempt starts a fresh transfer
	close(fetcher.gate)
	path, err := e.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mgr.Path("lsn-1"), path)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetcher.calls))
}

func TestEntry_downloadTwiceOnSameEntry(t *testing.T) {
	fetcher := &fetcherMock{data: pdfData, gate: make(chan struct{})}
	mgr := setup(t, fetcher, &recorderMock{signedIn: true})
	ctx := context.Background()

	e := mgr.Entry("lsn-1", "http://pdf")
	_, err := e.Mount(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Download(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return e.State() == StateDownloading }, timeout, tick)

	_, err = e.Download(ctx)
	assert.Equal(t, ErrInvalidTransition, err)
	_, err = e.Mount(ctx)
	assert.Equal(t, ErrInvalidTransition, err)

	close(fetcher.gate)
	require.NoError(t, <-done)
}

func TestManager_invalidLessonID(t *testing.T) {
	mgr := setup(t, &fetcherMock{}, &recorderMock{signedIn: true})
	for _, id := range []string{"", ".", "..", "../etc/passwd", "a/b"} {
		_, err := mgr.Entry(id, "http://pdf").Mount(context.Background())
		assert.Equal(t, ErrInvalidLessonID, err, id)
	}
}

func TestProgress_monotone(t *testing.T) {
	p := &progress{}
	w := &progressWriter{w: io.Discard, size: 10, p: p}

	var last float64
	for i := 0; i < 10; i++ {
		_, err := w.Write([]byte{0})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.load(), last)
		last = p.load()
	}
	assert.Less(t, p.load(), 1.0)

	p.advance(0.1)
	assert.Equal(t, last, p.load())
	p.advance(2)
	assert.Equal(t, 1.0, p.load())
}
