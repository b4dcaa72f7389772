// Package knowledge manages the curated knowledge base: a JSON file of
// question/answer entries with an optional Redis cache in front of it.
//
// The knowledge base supplements web retrieval: entries matching the
// effective query are injected into the answer prompt as trusted local
// context.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/ranker"
)

var (
	// ErrInvalidEntry indicates an entry fails validation.
	ErrInvalidEntry = errors.New("invalid knowledge entry")

	// ErrCorruptFile indicates the knowledge file is not valid JSON.
	ErrCorruptFile = errors.New("corrupt knowledge file")
)

const (
	// cacheKey is the Redis key holding the serialized knowledge base.
	cacheKey = "charla:knowledge"

	// cacheTTL bounds staleness when the file is edited out-of-band.
	cacheTTL = 10 * time.Minute
)

// Entry is one curated knowledge item.
type Entry struct {
	Topic    string   `json:"topic"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
}

// validate checks structural requirements for one entry.
func (e Entry) validate() error {
	if strings.TrimSpace(e.Topic) == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("%w: entry %q has empty content", ErrInvalidEntry, e.Topic)
	}
	return nil
}

// Base is the knowledge base backed by a JSON file, optionally cached
// in Redis. Safe for concurrent use.
type Base struct {
	mu      sync.RWMutex
	entries []Entry

	path     string
	fileLock *flock.Flock
	cache    *redis.Client // nil = caching disabled
	logger   log.Logger
}

// Option configures a Base.
type Option func(*Base)

// WithRedis enables the Redis cache. redisURL uses the standard
// redis:// URL format. An unparseable URL disables caching with a
// warning rather than failing startup.
func WithRedis(redisURL string) Option {
	return func(b *Base) {
		if redisURL == "" {
			return
		}
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			b.logger.Warn("invalid redis URL, knowledge cache disabled", "error", err)
			return
		}
		b.cache = redis.NewClient(opts)
	}
}

// New opens the knowledge base at path. A missing file yields an empty
// base; a corrupt file is an error since the knowledge base is curated
// content, not runtime state.
func New(ctx context.Context, path string, logger log.Logger, opts ...Option) (*Base, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	b := &Base{
		path:     path,
		fileLock: flock.New(path + ".lock"),
		logger:   logger.With("component", "knowledge"),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.load(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// load reads entries from the cache when possible, otherwise from disk.
func (b *Base) load(ctx context.Context) error {
	if b.cache != nil {
		if data, err := b.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var entries []Entry
			if err := json.Unmarshal(data, &entries); err == nil {
				b.entries = entries
				b.logger.Debug("knowledge loaded from cache", "entries", len(entries))
				return nil
			}
			// Poisoned cache entry: fall through to the file.
			b.logger.Warn("discarding unreadable knowledge cache entry")
		}
	}

	if err := b.fileLock.RLock(); err != nil {
		return fmt.Errorf("locking knowledge file: %w", err)
	}
	defer b.fileLock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading knowledge file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptFile, err)
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
	}

	b.entries = entries
	b.fillCache(ctx, data)
	b.logger.Debug("knowledge loaded from file", "entries", len(entries))
	return nil
}

// Save validates and persists entries, replacing the current contents
// and refreshing the cache.
func (b *Base) Save(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding knowledge: %w", err)
	}

	if err := b.fileLock.Lock(); err != nil {
		return fmt.Errorf("locking knowledge file: %w", err)
	}
	defer b.fileLock.Unlock() //nolint:errcheck

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing knowledge file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replacing knowledge file: %w", err)
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()

	b.fillCache(ctx, data)
	return nil
}

// fillCache stores the serialized base in Redis, best-effort.
func (b *Base) fillCache(ctx context.Context, data []byte) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Set(ctx, cacheKey, data, cacheTTL).Err(); err != nil {
		b.logger.Debug("knowledge cache write failed", "error", err)
	}
}

// Entries returns a copy of all entries.
func (b *Base) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Relevant returns up to limit entries sharing content words with the
// query, most overlapping first. Keyword matches count double since
// they are hand-curated.
func (b *Base) Relevant(query string, limit int) []Entry {
	if limit <= 0 {
		return nil
	}

	queryTokens := ranker.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	type match struct {
		entry Entry
		score int
		index int
	}

	var matches []match
	for i, e := range b.entries {
		body := make(map[string]struct{})
		for _, tok := range ranker.Tokenize(e.Topic + " " + e.Content) {
			body[tok] = struct{}{}
		}
		curated := make(map[string]struct{})
		for _, kw := range e.Keywords {
			for _, tok := range ranker.Tokenize(kw) {
				curated[tok] = struct{}{}
			}
		}

		score := 0
		for _, tok := range queryTokens {
			if _, ok := curated[tok]; ok {
				score += 2
			} else if _, ok := body[tok]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, match{entry: e, score: score, index: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].index < matches[j].index
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Entry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out
}

// Close releases the Redis connection if caching is enabled.
func (b *Base) Close() error {
	if b.cache == nil {
		return nil
	}
	if err := b.cache.Close(); err != nil {
		return fmt.Errorf("closing knowledge cache: %w", err)
	}
	return nil
}
