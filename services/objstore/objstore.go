// Package objstore implements core.ObjectStore on the local disk and on Aliyun OSS.
package objstore

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

// New returns the store selected by conf.Storage.Driver.
func New(conf *core.Config) (core.ObjectStore, error) {
	switch conf.Storage.Driver {
	case "", "fs":
		return NewFSStore(conf.Storage.RootDir, conf.Storage.Bucket, conf.Storage.PublicBaseURL)
	case "oss":
		return NewOSSStore(conf.Storage)
	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
	}
}

// urlPrefix is the public URL of the bucket root, ending with a slash.
type urlPrefix string

func (p urlPrefix) url(key string) string { return string(p) + strings.TrimLeft(key, "/") }

func (p urlPrefix) key(url string) string {
	if !strings.HasPrefix(url, string(p)) {
		return ""
	}
	return strings.TrimPrefix(url, string(p))
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", errors.Errorf("invalid object key %q", key)
	}
	return key, nil
}
