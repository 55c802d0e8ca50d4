package pdfcache

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Fetcher opens a remote PDF. size is -1 when unknown.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (body io.ReadCloser, size int64, err error)
}

// HTTPFetcher GETs the PDF, retrying connection failures and 5xx responses
// a bounded number of times before the first byte is read.
type HTTPFetcher struct {
	client     *http.Client
	maxRetries uint64
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(client *http.Client, maxRetries uint64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPFetcher{client: client, maxRetries: maxRetries}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	var res *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "creating request"))
		}
		res, err = f.client.Do(req)
		if err != nil {
			return errors.Wrap(err, "fetching pdf")
		}
		if res.StatusCode == http.StatusOK {
			return nil
		}
		_ = res.Body.Close()
		err = errors.Errorf("fetching pdf: unexpected status %d", res.StatusCode)
		if res.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, 0, err
	}
	return res.Body, res.ContentLength, nil
}
