package provider

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/example/adgen/internal/errs"
)

// remoteCallTimeout bounds a single call to the image-generation API.
const remoteCallTimeout = 120 * time.Second

// Remote generates images through the go-openai image-generation API and
// downloads the resulting image by URL.
type Remote struct {
	client      *openai.Client
	downloader  *Downloader
	pricePerImg float64
}

// NewRemote builds a Remote provider. apiKey must be non-empty; callers
// resolve it from the environment variable named by RunConfig's
// provider.api_key_env before construction.
func NewRemote(apiKey string, pricePerImg float64) (*Remote, error) {
	if apiKey == "" {
		return nil, errs.New(errs.KindCredentialMissing, fmt.Errorf("remote provider requires an API key"))
	}
	return &Remote{
		client:      openai.NewClient(apiKey),
		downloader:  NewDownloader(),
		pricePerImg: pricePerImg,
	}, nil
}

func (r *Remote) Generate(ctx context.Context, params Params) (Result, error) {
	req := openai.ImageRequest{
		Prompt:         params.Prompt,
		Model:          params.Model,
		N:              1,
		Size:           sizeString(params.Width, params.Height),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}
	if params.Model == openai.CreateImageModelDallE3 {
		req.Style = openai.CreateImageStyleVivid
	}

	callCtx, cancel := context.WithTimeout(ctx, remoteCallTimeout)
	resp, err := r.client.CreateImage(callCtx, req)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, errs.New(errs.KindCancelled, err)
		}
		return Result{}, errs.New(classifyAPIError(err), fmt.Errorf("create image: %w", err))
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return Result{}, errs.New(errs.KindProviderPermanent, fmt.Errorf("create image: empty response"))
	}

	png, err := r.downloader.Download(ctx, resp.Data[0].URL)
	if err != nil {
		return Result{}, err
	}

	return Result{PNG: png, Cost: r.pricePerImg}, nil
}

// sizeString maps width/height to the nearest go-openai size enum; the
// API accepts a small fixed set of square/landscape/portrait sizes.
func sizeString(width, height int) string {
	switch {
	case width == height && width <= 256:
		return openai.CreateImageSize256x256
	case width == height && width <= 512:
		return openai.CreateImageSize512x512
	case width == height:
		return openai.CreateImageSize1024x1024
	case width > height:
		return openai.CreateImageSize1792x1024
	default:
		return openai.CreateImageSize1024x1792
	}
}

// classifyAPIError inspects an *openai.APIError, falling back to
// Transient for anything it cannot positively classify as Permanent.
func classifyAPIError(err error) errs.Kind {
	var apiErr *openai.APIError
	if ae, ok := asAPIError(err); ok {
		apiErr = ae
		if apiErr.HTTPStatusCode != 0 {
			return classifyHTTPStatus(apiErr.HTTPStatusCode)
		}
	}
	return errs.KindProviderTransient
}

func asAPIError(err error) (*openai.APIError, bool) {
	apiErr, ok := err.(*openai.APIError)
	return apiErr, ok
}
