// Package imgproc turns uploaded pictures into small WebP images.
package imgproc

import (
	"bytes"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core/user"
)

const (
	DefaultAvatarSize    = 256
	DefaultAvatarQuality = 80
)

var ErrUnsupportedImage = errors.New("unsupported image format")

// WebPEncoder crops pictures to a centered square, then encodes them as lossy WebP.
type WebPEncoder struct {
	size    int
	quality float32
}

var _ user.AvatarEncoder = (*WebPEncoder)(nil) // interface compliance check

func NewWebPEncoder(size int, quality float32) *WebPEncoder {
	if size <= 0 {
		size = DefaultAvatarSize
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultAvatarQuality
	}
	return &WebPEncoder{size: size, quality: quality}
}

func NewAvatarEncoder() user.AvatarEncoder {
	return NewWebPEncoder(DefaultAvatarSize, DefaultAvatarQuality)
}

func (e *WebPEncoder) decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading image")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if img, err = webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, ErrUnsupportedImage
}

func (e *WebPEncoder) EncodeAvatar(r io.Reader) ([]byte, error) {
	img, err := e.decode(r)
	if err != nil {
		return nil, err
	}
	img = imaging.Fill(img, e.size, e.size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err = webp.Encode(&buf, img, &webp.Options{Quality: e.quality}); err != nil {
		return nil, errors.Wrap(err, "encoding webp")
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) ContentType() string { return "image/webp" }
func (e *WebPEncoder) Ext() string         { return ".webp" }
