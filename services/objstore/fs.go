package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

// FSStore keeps objects under <root>/<bucket>/<key>. The API serves <root> as static files.
type FSStore struct {
	dir    string
	prefix urlPrefix
}

var _ core.ObjectStore = (*FSStore)(nil) // interface compliance check

// NewFSStore creates the bucket directory if needed.
// Objects are exposed at <publicBaseURL>/<bucket>/<key>.
func NewFSStore(root, bucket, publicBaseURL string) (*FSStore, error) {
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating bucket directory")
	}
	return &FSStore{
		dir:    dir,
		prefix: urlPrefix(strings.TrimRight(publicBaseURL, "/") + "/" + bucket + "/"),
	}, nil
}

func (s *FSStore) path(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

// Put writes to a temporary file first, so that readers never see a partial object.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating object directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fp), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing object")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing object")
	}
	return errors.Wrap(os.Rename(tmp.Name(), fp), "moving object")
}

func (s *FSStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		fp, err := s.path(key)
		if err != nil {
			return err
		}
		if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %q", key)
		}
	}
	return nil
}

func (s *FSStore) PublicURL(key string) string { return s.prefix.url(key) }

func (s *FSStore) KeyFromURL(url string) string { return s.prefix.key(url) }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader { return ctxReader{ctx: ctx, r: r} }

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
