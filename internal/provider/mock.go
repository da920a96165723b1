package provider

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"

	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/errs"
)

// Mock synthesizes a PNG of the configured dimensions by sampling the
// run's seeded RNG. It never fails and always reports zero cost.
type Mock struct {
	rng *clock.Seeded
}

// NewMock builds a Mock provider backed by rng, shared with the rest of
// the run so results are reproducible given the same seed.
func NewMock(rng *clock.Seeded) *Mock {
	return &Mock{rng: rng}
}

func (m *Mock) Generate(ctx context.Context, params Params) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, errs.New(errs.KindCancelled, ctx.Err())
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, params.Width, params.Height))
	for y := 0; y < params.Height; y++ {
		for x := 0; x < params.Width; x++ {
			img.Set(x, y, color.RGBA{
				R: byte(m.rng.IntN(256)),
				G: byte(m.rng.IntN(256)),
				B: byte(m.rng.IntN(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, err
	}
	return Result{PNG: buf.Bytes(), Cost: 0}, nil
}
