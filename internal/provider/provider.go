// Package provider implements the pluggable Image Provider strategy: a
// deterministic mock for development and testing, and a remote client
// built on the go-openai image-generation API.
package provider

import (
	"context"

	"github.com/example/adgen/internal/errs"
)

// Params carries the per-call generation parameters.
type Params struct {
	Prompt string
	Model  string
	Width  int
	Height int
}

// Result is a successfully generated image.
type Result struct {
	PNG  []byte
	Cost float64
}

// Provider generates one image per call. Failures are returned as
// *errs.Error with one of errs.KindProviderTransient,
// errs.KindProviderPermanent, or errs.KindCancelled.
type Provider interface {
	Generate(ctx context.Context, params Params) (Result, error)
}

// classifyHTTPStatus maps an HTTP status code to a failure kind, shared by
// the remote provider's API-error classification and the image downloader.
func classifyHTTPStatus(status int) errs.Kind {
	switch status {
	case 408, 425, 429, 500, 502, 503, 504:
		return errs.KindProviderTransient
	default:
		return errs.KindProviderPermanent
	}
}
