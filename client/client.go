// Package client is a Go SDK for the student side of the API.
//
// A Client holds no credentials: signing in returns a *Session that carries
// the token, and every authenticated call goes through it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	maxRetries uint64
	cacheDir   string
	validate   *validator.Validate
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(conf core.ClientConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(conf.BaseURL, "/"),
		http:       &http.Client{},
		timeout:    conf.RequestTimeout,
		maxRetries: conf.MaxRetries,
		cacheDir:   conf.CacheDir,
		validate:   newResponseValidator(),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// request describes one API call.
type request struct {
	method      string
	path        string
	query       url.Values
	token       string
	body        interface{} // JSON encoded unless it is an io.Reader
	contentType string
	out         interface{}
}

// do sends req and decodes the response into req.out. GETs are retried on
// network errors and 5xx responses; other methods are sent once.
func (c *Client) do(ctx context.Context, req request) error {
	var payload []byte
	contentType := req.contentType
	if req.body != nil {
		if r, ok := req.body.(io.Reader); ok {
			b, err := io.ReadAll(r)
			if err != nil {
				return errors.Wrap(err, "reading request body")
			}
			payload = b
		} else {
			b, err := json.Marshal(req.body)
			if err != nil {
				return errors.Wrap(err, "encoding request body")
			}
			payload = b
			contentType = "application/json"
		}
	}

	op := func() error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		hreq, err := http.NewRequestWithContext(ctx, req.method, c.url(req.path, req.query), body)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "creating request"))
		}
		hreq.Header.Set("Accept", "application/json")
		if contentType != "" {
			hreq.Header.Set("Content-Type", contentType)
		}
		if req.token != "" {
			hreq.Header.Set("Authorization", "Bearer "+req.token)
		}

		res, err := c.http.Do(hreq)
		if err != nil {
			return errors.Wrapf(err, "%s %s", req.method, req.path)
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode >= http.StatusBadRequest {
			apiErr := decodeError(res)
			if res.StatusCode >= http.StatusInternalServerError {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if req.out == nil || res.StatusCode == http.StatusNoContent {
			return nil
		}
		if err = json.NewDecoder(res.Body).Decode(req.out); err != nil {
			return backoff.Permanent(errors.Wrap(ErrInvalidResponse, err.Error()))
		}
		return nil
	}

	retries := c.maxRetries
	if req.method != http.MethodGet {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), retries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return err
	}
	if req.out != nil {
		return c.check(req.out)
	}
	return nil
}

// check validates a decoded response (a struct, a pointer or a slice of them).
func (c *Client) check(out interface{}) error {
	v := reflect.ValueOf(out)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := c.check(v.Index(i).Addr().Interface()); err != nil {
				return err
			}
		}
	case reflect.Struct:
		if err := c.validate.Struct(v.Addr().Interface()); err != nil {
			return errors.Wrap(ErrInvalidResponse, err.Error())
		}
	}
	return nil
}
