package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/adgen/internal/errs"
)

// Downloader fetches a generated image by URL, the shape a remote
// provider hands back instead of raw bytes.
type Downloader struct {
	client *http.Client
}

// NewDownloader builds a Downloader with a 120s default timeout.
func NewDownloader() *Downloader {
	return &Downloader{client: &http.Client{Timeout: 120 * time.Second}}
}

// Download fetches url and returns its body, classifying non-2xx
// responses the same way the remote provider classifies API errors.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.KindProviderPermanent, fmt.Errorf("build download request: %w", err))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.KindCancelled, err)
		}
		return nil, errs.New(errs.KindProviderTransient, fmt.Errorf("download image: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.New(classifyHTTPStatus(resp.StatusCode), fmt.Errorf("download image: status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.KindProviderTransient, fmt.Errorf("read image body: %w", err))
	}
	return body, nil
}
