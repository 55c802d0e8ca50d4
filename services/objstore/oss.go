package objstore

import (
	"context"
	"io"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

// OSSStore keeps objects in an Aliyun OSS bucket with public-read access.
type OSSStore struct {
	bucket *oss.Bucket
	prefix urlPrefix
}

var _ core.ObjectStore = (*OSSStore)(nil) // interface compliance check

// NewOSSStore connects to the bucket. Objects are exposed at conf.PublicBaseURL/<key> if set,
// or at https://<bucket>.<endpoint>/<key>.
func NewOSSStore(conf core.StorageConfig) (*OSSStore, error) {
	client, err := oss.New(conf.OSSEndpoint, conf.OSSAccessKey, conf.OSSAccessSecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating oss client")
	}
	bkt, err := client.Bucket(conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "opening oss bucket")
	}

	base := strings.TrimRight(conf.PublicBaseURL, "/")
	if base == "" {
		endpoint := strings.TrimPrefix(strings.TrimPrefix(conf.OSSEndpoint, "https://"), "http://")
		base = "https://" + conf.Bucket + "." + endpoint
	}
	return &OSSStore{bucket: bkt, prefix: urlPrefix(base + "/")}, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	}
	if size > 0 {
		opts = append(opts, oss.ContentLength(size))
	}
	return errors.Wrap(s.bucket.PutObject(key, r, opts...), "putting object")
}

func (s *OSSStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(keys))
	for _, key := range keys {
		key, err := cleanKey(key)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, key)
	}
	_, err := s.bucket.DeleteObjects(cleaned, oss.WithContext(ctx), oss.DeleteObjectsQuiet(true))
	return errors.Wrap(err, "deleting objects")
}

func (s *OSSStore) PublicURL(key string) string { return s.prefix.url(key) }

func (s *OSSStore) KeyFromURL(url string) string { return s.prefix.key(url) }
