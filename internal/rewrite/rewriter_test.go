package rewrite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o-mini", "polish this", 256, 1024, "", zap.NewNop())
	require.Error(t, err)
}

func TestRewriteReturnsCachedValueWithoutCallingRemote(t *testing.T) {
	r, err := New("test-key", "gpt-4o-mini", "polish this", 256, 1024, "", zap.NewNop())
	require.NoError(t, err)

	r.cache.Add("a red car", "a glossy red sports car under studio lighting")

	got := r.Rewrite(context.Background(), "a red car")
	require.Equal(t, "a glossy red sports car under studio lighting", got)
}

func TestLoadCacheFilePopulatesLRU(t *testing.T) {
	dir := t.TempDir()
	cacheFile := filepath.Join(dir, "cache.jsonl")
	err := os.WriteFile(cacheFile, []byte(
		`{"seed":"a blue bike","polished":"a sleek blue bicycle on a city street"}`+"\n"+
			`not json`+"\n"+
			`{"seed":"a green hat","polished":"a vivid green wool hat"}`+"\n",
	), 0o644)
	require.NoError(t, err)

	r, err := New("test-key", "gpt-4o-mini", "polish this", 256, 1024, cacheFile, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "a sleek blue bicycle on a city street", r.Rewrite(context.Background(), "a blue bike"))
	require.Equal(t, "a vivid green wool hat", r.Rewrite(context.Background(), "a green hat"))
}
