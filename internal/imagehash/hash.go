// Package imagehash computes average-hash (aHash) fingerprints of images and
// compares them by Hamming distance.
//
// A hash is built by downsampling the image to a small grid, converting each
// cell to luminance and emitting one bit per cell: 1 when the cell is at least
// as bright as the grid mean. It survives recompression and resizing but not
// rotation or heavy cropping.
package imagehash

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
)

// DefaultGridSize produces 64-bit hashes.
const DefaultGridSize = 8

// Hash is an ordered bit sequence in row-major grid order.
type Hash []bool

// Len returns the number of bits.
func (h Hash) Len() int { return len(h) }

// String renders the hash as '0'/'1' characters.
func (h Hash) String() string {
	var b strings.Builder
	b.Grow(len(h))
	for _, bit := range h {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Hex renders the hash as hexadecimal, most significant bit first. The last
// nibble is zero padded when the length is not a multiple of four.
func (h Hash) Hex() string {
	var b strings.Builder
	for i := 0; i < len(h); i += 4 {
		var nibble uint64
		for j := 0; j < 4; j++ {
			nibble <<= 1
			if i+j < len(h) && h[i+j] {
				nibble |= 1
			}
		}
		b.WriteString(strconv.FormatUint(nibble, 16))
	}
	return b.String()
}

// ParseHash reads the '0'/'1' form produced by String.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	h := make(Hash, 0, len(s))
	for i, r := range s {
		switch r {
		case '0':
			h = append(h, false)
		case '1':
			h = append(h, true)
		default:
			return nil, fmt.Errorf("invalid hash character %q at %d", r, i)
		}
	}
	return h, nil
}

// HammingDistance counts differing bits over the common prefix and adds the
// length difference, so hashes of different grid sizes are always penalized.
func HammingDistance(a, b Hash) int {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}

	distance := len(long) - len(short)
	for i := range short {
		if short[i] != long[i] {
			distance++
		}
	}
	return distance
}

// Compute returns the aHash of img over a gridSize×gridSize grid. A
// non-positive gridSize selects DefaultGridSize.
func Compute(img image.Image, gridSize int) (Hash, error) {
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	if img == nil {
		return nil, &DecodeError{Err: errors.New("image is nil")}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("image has empty bounds %v", b)}
	}

	grid := resize.Resize(uint(gridSize), uint(gridSize), img, resize.Bilinear)
	bounds := grid.Bounds()

	cells := make([]float64, 0, gridSize*gridSize)
	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			l := luminance(grid.At(x, y).RGBA())
			cells = append(cells, l)
			sum += l
		}
	}

	mean := sum / float64(len(cells))

	hash := make(Hash, len(cells))
	for i, l := range cells {
		hash[i] = l >= mean
	}
	return hash, nil
}

// ComputeHash loads the image from src and hashes it.
func ComputeHash(ctx context.Context, src Source, gridSize int) (Hash, error) {
	img, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Compute(img, gridSize)
}

// luminance converts 16-bit premultiplied channels to 8-bit scale luma.
func luminance(r, g, b, _ uint32) float64 {
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}
