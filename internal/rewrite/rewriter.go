// Package rewrite implements the optional Prompt Rewriter capability: an
// LRU-fronted, optionally disk-cached call to a remote chat-completion
// model that polishes a seed prompt.
package rewrite

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// remoteCallTimeout bounds a single call to the chat-completion API.
const remoteCallTimeout = 120 * time.Second

// Rewriter polishes a seed prompt into a longer, more specific variant.
// Rewrite failures are soft: callers fall back to the seed prompt.
type Rewriter struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	cache        *lru.Cache[string, string]
	cacheFile    string
	cacheMu      sync.Mutex
	log          *zap.Logger
}

// cacheRecord is one line of the on-disk cache file.
type cacheRecord struct {
	Seed    string `json:"seed"`
	Polished string `json:"polished"`
}

// New builds a Rewriter. cacheSize bounds the in-memory LRU; cacheFile,
// if non-empty, is loaded at startup and appended to on every cache miss
// that resolves successfully.
func New(apiKey, model, systemPrompt string, maxTokens, cacheSize int, cacheFile string, log *zap.Logger) (*Rewriter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("rewriter requires an API key")
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("build rewrite cache: %w", err)
	}

	r := &Rewriter{
		client:       openai.NewClient(apiKey),
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		cache:        cache,
		cacheFile:    cacheFile,
		log:          log,
	}
	if cacheFile != "" {
		r.loadCacheFile()
	}
	return r, nil
}

func (r *Rewriter) loadCacheFile() {
	f, err := os.Open(r.cacheFile)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("failed to open rewrite cache file", zap.Error(err))
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	loaded := 0
	for scanner.Scan() {
		var rec cacheRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			r.log.Warn("skipping corrupt rewrite cache line", zap.Error(err))
			continue
		}
		r.cache.Add(rec.Seed, rec.Polished)
		loaded++
	}
	r.log.Info("loaded rewrite cache", zap.Int("entries", loaded))
}

// Rewrite returns a polished prompt for seed, or seed itself if the cache
// has no entry and the remote call fails.
func (r *Rewriter) Rewrite(ctx context.Context, seed string) string {
	if polished, ok := r.cache.Get(seed); ok {
		return polished
	}

	polished, err := r.callRemote(ctx, seed)
	if err != nil {
		r.log.Warn("rewrite failed, using seed prompt", zap.String("seed", seed), zap.Error(err))
		return seed
	}

	r.cache.Add(seed, polished)
	r.appendCacheFile(seed, polished)
	return polished
}

func (r *Rewriter) callRemote(ctx context.Context, seed string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, remoteCallTimeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: seed},
		},
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (r *Rewriter) appendCacheFile(seed, polished string) {
	if r.cacheFile == "" {
		return
	}
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	f, err := os.OpenFile(r.cacheFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Warn("failed to open rewrite cache file for append", zap.Error(err))
		return
	}
	defer f.Close()

	data, err := json.Marshal(cacheRecord{Seed: seed, Polished: polished})
	if err != nil {
		r.log.Warn("failed to marshal rewrite cache record", zap.Error(err))
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		r.log.Warn("failed to append rewrite cache record", zap.Error(err))
	}
}
