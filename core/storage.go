package core

import (
	"context"
	"io"
)

// ObjectStore is a bucket of binary objects with publicly readable URLs.
type ObjectStore interface {
	// Put stores (or overwrites) the object at key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete removes the objects at keys. Missing objects are ignored.
	Delete(ctx context.Context, keys ...string) error
	// PublicURL returns the public URL of the object at key.
	PublicURL(key string) string
	// KeyFromURL returns the key of an object given its public URL, or "" if the URL does not belong to the store.
	KeyFromURL(url string) string
}
