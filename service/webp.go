package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

// Encoder turns an uploaded image into the stored, compressed representation.
type Encoder interface {
	Encode(raw []byte) ([]byte, error)
}

type EncoderFunc func(raw []byte) ([]byte, error)

func (f EncoderFunc) Encode(raw []byte) ([]byte, error) {
	return f(raw)
}

// WebPEncoder decodes jpeg, png, gif or webp input and re-encodes it as lossy WebP.
type WebPEncoder struct {
	Quality float32
}

func (e WebPEncoder) Encode(raw []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encode %s as webp: %w", format, err)
	}
	return buf.Bytes(), nil
}
