package imagehash

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitImage(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{A: 255}
			if x >= size/2 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func gradientImage(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / (size - 1))})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func mustParse(t *testing.T, s string) Hash {
	t.Helper()
	h, err := ParseHash(s)
	require.NoError(t, err)
	return h
}

func TestHammingDistance(t *testing.T) {
	t.Parallel()

	base := strings.Repeat("0110", 16)
	flipped := []byte(base)
	for _, i := range []int{0, 17, 63} {
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
	}

	tests := []struct {
		name   string
		a, b   string
		expect int
	}{
		{name: "identical", a: base, b: base, expect: 0},
		{name: "three bits differ", a: base, b: string(flipped), expect: 3},
		{name: "empty hashes", a: "", b: "", expect: 0},
		{name: "length mismatch is penalized", a: "1010", b: "101011", expect: 2},
		{name: "mismatch plus penalty", a: "1111", b: "0111000", expect: 4},
		{name: "against empty", a: base, b: "", expect: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, b := mustParse(t, tt.a), mustParse(t, tt.b)
			assert.Equal(t, tt.expect, HammingDistance(a, b))
			assert.Equal(t, tt.expect, HammingDistance(b, a))
		})
	}
}

func TestHashStringForms(t *testing.T) {
	h := mustParse(t, "1000000000000000000000000000000000000000000000000000000000001111")

	assert.Equal(t, 64, h.Len())
	assert.Equal(t, "800000000000000f", h.Hex())
	assert.Equal(t, "1000000000000000000000000000000000000000000000000000000000001111", h.String())

	assert.Equal(t, "a8", mustParse(t, "10101").Hex())

	_, err := ParseHash("10x1")
	assert.Error(t, err)
}

func TestComputeSplitImage(t *testing.T) {
	t.Parallel()

	h, err := Compute(splitImage(64), DefaultGridSize)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("00001111", 8), h.String())
}

func TestComputeIsStableAcrossSizes(t *testing.T) {
	t.Parallel()

	small, err := Compute(gradientImage(64), 0)
	require.NoError(t, err)
	large, err := Compute(gradientImage(320), 0)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("00001111", 8), small.String())
	assert.Equal(t, 0, HammingDistance(small, large))
}

func TestComputeSolidImageIsAllOnes(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 20, 30))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}

	h, err := Compute(img, DefaultGridSize)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("1", 64), h.String())
}

func TestComputeGridSize(t *testing.T) {
	t.Parallel()

	h, err := Compute(splitImage(64), 16)
	require.NoError(t, err)
	assert.Equal(t, 256, h.Len())

	def, err := Compute(splitImage(64), 0)
	require.NoError(t, err)
	assert.Equal(t, 64, def.Len())

	assert.Equal(t, 256-64+HammingDistance(h[:64], def), HammingDistance(h, def))
}

func TestComputeRejectsMissingImage(t *testing.T) {
	t.Parallel()

	_, err := Compute(nil, 8)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)

	_, err = Compute(image.NewRGBA(image.Rect(0, 0, 0, 10)), 8)
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	img, err := Decode("split.png", encodePNG(t, splitImage(32)))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	_, err = Decode("garbage.bin", []byte("definitely not an image"))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "garbage.bin", decodeErr.Source)
	assert.ErrorIs(t, err, image.ErrFormat)

	_, err = Decode("empty", nil)
	require.ErrorAs(t, err, &decodeErr)
}

func TestComputeHashSources(t *testing.T) {
	t.Parallel()

	img := splitImage(48)
	data := encodePNG(t, img)

	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	expected, err := Compute(img, DefaultGridSize)
	require.NoError(t, err)

	sources := []Source{
		FromImage(img),
		FromBytes("photo.png", data),
		FromFile(path),
		ParseSource(path, nil),
	}

	for _, src := range sources {
		t.Run(src.Name(), func(t *testing.T) {
			got, err := ComputeHash(context.Background(), src, DefaultGridSize)
			require.NoError(t, err)
			assert.Equal(t, expected, got)
		})
	}
}

func TestComputeHashMissingFile(t *testing.T) {
	_, err := ComputeHash(context.Background(), FromFile(filepath.Join(t.TempDir(), "missing.png")), 8)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestComputeHashFromNilImage(t *testing.T) {
	_, err := ComputeHash(context.Background(), FromImage(nil), 8)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestParseSource(t *testing.T) {
	assert.IsType(t, &urlSource{}, ParseSource("https://example.com/a.jpg", nil))
	assert.IsType(t, &urlSource{}, ParseSource("HTTP://example.com/a.jpg", nil))
	assert.IsType(t, &fileSource{}, ParseSource("./photos/a.jpg", nil))
}

func TestCacheReusesHashes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(good, encodePNG(t, splitImage(32)), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o600))

	cache := NewCache(nil, DefaultGridSize)

	first, err := cache.Hash(context.Background(), good)
	require.NoError(t, err)

	require.NoError(t, os.Remove(good))
	second, err := cache.Hash(context.Background(), good)
	require.NoError(t, err, "second lookup must be served from the cache")
	assert.Equal(t, first, second)

	_, err = cache.Hash(context.Background(), bad)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	_, err = cache.Hash(context.Background(), bad)
	require.ErrorAs(t, err, &decodeErr)

	assert.Equal(t, 2, cache.Len())
}

func TestCacheDoesNotKeepCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache := NewCache(nil, DefaultGridSize)
	_, err := cache.Hash(ctx, "https://example.invalid/photo.jpg")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}
