package imagehash

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Source yields an image to hash.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	Load(ctx context.Context) (image.Image, error)
}

type imageSource struct {
	img image.Image
}

// FromImage wraps an already decoded image.
func FromImage(img image.Image) Source {
	return &imageSource{img: img}
}

func (s *imageSource) Name() string { return "in-memory image" }

func (s *imageSource) Load(context.Context) (image.Image, error) {
	if s.img == nil {
		return nil, &DecodeError{Source: s.Name(), Err: fmt.Errorf("image is nil")}
	}
	return s.img, nil
}

type bytesSource struct {
	name string
	data []byte
}

// FromBytes decodes raw encoded image bytes.
func FromBytes(name string, data []byte) Source {
	return &bytesSource{name: name, data: data}
}

func (s *bytesSource) Name() string { return s.name }

func (s *bytesSource) Load(context.Context) (image.Image, error) {
	return Decode(s.name, s.data)
}

type fileSource struct {
	path string
}

// FromFile reads and decodes a local image file.
func FromFile(path string) Source {
	return &fileSource{path: path}
}

func (s *fileSource) Name() string { return s.path }

func (s *fileSource) Load(context.Context) (image.Image, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading image file %q: %w", s.path, err)
	}
	return Decode(s.path, data)
}

type urlSource struct {
	fetcher *Fetcher
	url     string
}

// FromURL fetches the image with fetcher before decoding it. A nil fetcher
// means one with default settings.
func FromURL(fetcher *Fetcher, url string) Source {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	return &urlSource{fetcher: fetcher, url: url}
}

func (s *urlSource) Name() string { return s.url }

func (s *urlSource) Load(ctx context.Context) (image.Image, error) {
	data, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return Decode(s.url, data)
}

// ParseSource returns a URL source for http(s) references and a file source
// for anything else.
func ParseSource(ref string, fetcher *Fetcher) Source {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return FromURL(fetcher, ref)
	}
	return FromFile(ref)
}

// Decode turns encoded bytes into an image. Any failure is a *DecodeError.
func Decode(name string, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Source: name, Err: fmt.Errorf("no image data")}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Source: name, Err: fmt.Errorf("%s image has empty bounds", format)}
	}

	return img, nil
}
