// Package dedupe implements perceptual-hash based near-duplicate
// detection for accepted images.
package dedupe

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
)

// MinHashBits and MaxHashBits bound the hash_bits RunConfig accepts.
// hash_bits must also be a perfect square, since it sizes a square
// downscale grid.
const (
	MinHashBits = 16
	MaxHashBits = 64
)

// Fingerprint computes a perceptual hash of a PNG-encoded image that is
// hashBits wide: downscale to a sqrt(hashBits) x sqrt(hashBits)
// grayscale grid, run a 2-D DCT, and threshold every coefficient against
// their shared median to produce one bit per coefficient. hashBits must
// be a perfect square in [MinHashBits, MaxHashBits].
func Fingerprint(png []byte, hashBits int) (uint64, error) {
	n := int(math.Round(math.Sqrt(float64(hashBits))))
	if n*n != hashBits || hashBits < MinHashBits || hashBits > MaxHashBits {
		return 0, fmt.Errorf("fingerprint: hash_bits %d is not a perfect square in [%d, %d]", hashBits, MinHashBits, MaxHashBits)
	}

	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return 0, err
	}

	small := image.NewGray(image.Rect(0, 0, n, n))
	draw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	pixels := make([]float64, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := small.GrayAt(x, y)
			pixels[y*n+x] = float64(c.Y)
		}
	}

	dct := dct2D(pixels, n)
	median := medianOf(dct)

	var hash uint64
	for i, v := range dct {
		if v > median {
			hash |= 1 << uint(i)
		}
	}
	return hash, nil
}

func medianOf(v []float64) float64 {
	sorted := append([]float64(nil), v...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// dct2D runs a naive 2-D discrete cosine transform (type II) over an
// n x n grid of pixels stored row-major.
func dct2D(pixels []float64, n int) []float64 {
	out := make([]float64, n*n)
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				for y := 0; y < n; y++ {
					sum += pixels[y*n+x] *
						math.Cos(math.Pi/float64(n)*(float64(x)+0.5)*float64(u)) *
						math.Cos(math.Pi/float64(n)*(float64(y)+0.5)*float64(v))
				}
			}
			cu, cv := 1.0, 1.0
			if u == 0 {
				cu = 1 / math.Sqrt2
			}
			if v == 0 {
				cv = 1 / math.Sqrt2
			}
			out[v*n+u] = 0.25 * cu * cv * sum
		}
	}
	return out
}
