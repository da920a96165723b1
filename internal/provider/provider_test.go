package provider

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/errs"
)

func TestMockGenerateProducesValidPNG(t *testing.T) {
	m := NewMock(clock.NewSeeded(1))
	result, err := m.Generate(context.Background(), Params{Width: 8, Height: 8})
	require.NoError(t, err)
	require.Equal(t, 0.0, result.Cost)

	_, err = png.Decode(bytes.NewReader(result.PNG))
	require.NoError(t, err)
}

func TestMockGenerateIsDeterministicForSameSeed(t *testing.T) {
	a := NewMock(clock.NewSeeded(7))
	b := NewMock(clock.NewSeeded(7))

	ra, err := a.Generate(context.Background(), Params{Width: 8, Height: 8})
	require.NoError(t, err)
	rb, err := b.Generate(context.Background(), Params{Width: 8, Height: 8})
	require.NoError(t, err)

	require.Equal(t, ra.PNG, rb.PNG)
}

func TestMockGenerateRespectsCancellation(t *testing.T) {
	m := NewMock(clock.NewSeeded(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, Params{Width: 8, Height: 8})
	require.True(t, errs.Is(err, errs.KindCancelled))
}

func TestClassifyHTTPStatus(t *testing.T) {
	require.Equal(t, errs.KindProviderTransient, classifyHTTPStatus(429))
	require.Equal(t, errs.KindProviderTransient, classifyHTTPStatus(503))
	require.Equal(t, errs.KindProviderPermanent, classifyHTTPStatus(400))
	require.Equal(t, errs.KindProviderPermanent, classifyHTTPStatus(401))
}

func TestSizeString(t *testing.T) {
	require.Equal(t, "256x256", sizeString(256, 256))
	require.Equal(t, "512x512", sizeString(512, 512))
	require.Equal(t, "1024x1024", sizeString(1024, 1024))
	require.Equal(t, "1792x1024", sizeString(1792, 1024))
	require.Equal(t, "1024x1792", sizeString(1024, 1792))
}

func TestDownloaderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	d := NewDownloader()
	body, err := d.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), body)
}

func TestDownloaderClassifiesTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDownloader()
	_, err := d.Download(context.Background(), srv.URL)
	require.True(t, errs.Is(err, errs.KindProviderTransient))
}

func TestNewRemoteRequiresAPIKey(t *testing.T) {
	_, err := NewRemote("", 0.02)
	require.True(t, errs.Is(err, errs.KindCredentialMissing))
}
