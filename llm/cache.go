package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores model responses keyed by a digest of the request
type Cache interface {
	Get(key string) (*ChatResponse, bool)
	Set(key string, resp *ChatResponse) error
}

// CacheKey derives a stable key from everything that influences a response
func CacheKey(req *ChatRequest) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(struct {
		Model       string
		Messages    []Message
		MaxTokens   int
		Temperature float64
		Stop        []string
	}{req.Model, req.Messages, req.MaxTokens, req.Temperature, req.StopSequences})
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is an in-process Cache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]ChatResponse
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]ChatResponse)}
}

func (c *MemoryCache) Get(key string) (*ChatResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return &resp, true
}

func (c *MemoryCache) Set(key string, resp *ChatResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *resp
	return nil
}

// Len reports the number of cached responses
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// FileCache persists responses as JSON files under dir/<seed>/, so runs with
// the same seed replay identical completions.
type FileCache struct {
	dir string
}

func NewFileCache(root string, seed int) (*FileCache, error) {
	dir := filepath.Join(root, fmt.Sprintf("%d", seed))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *FileCache) Get(key string) (*ChatResponse, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var resp ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (c *FileCache) Set(key string, resp *ChatResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(key), data, 0644)
}
