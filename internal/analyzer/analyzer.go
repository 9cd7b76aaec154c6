package analyzer

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/openvault-ai/openvault/internal/backend"
	"github.com/openvault-ai/openvault/internal/safety"
)

const defaultCacheSize = 4096

// SafetyAnalyzer wraps a backend with result caching and metadata sealing.
// Results for identical (text, context) pairs are served from a bounded LRU
// cache; every returned result carries a fresh analysis id.
type SafetyAnalyzer struct {
	backend backend.Backend
	cache   *lru.Cache[string, *safety.AnalysisResult]
}

// New builds an analyzer over the selected backend. cacheSize bounds the
// number of cached (text, context) results; zero or negative falls back to
// the default.
func New(b backend.Backend, cacheSize int) (*SafetyAnalyzer, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *safety.AnalysisResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("build analysis cache: %w", err)
	}
	return &SafetyAnalyzer{backend: b, cache: cache}, nil
}

// BackendVersion reports the active backend's version string.
func (a *SafetyAnalyzer) BackendVersion() string {
	return a.backend.Version()
}

// The separator cannot appear in either field, so distinct pairs never
// collide.
func cacheKey(text, textContext string) string {
	return text + "\x00" + textContext
}

// Analyze runs a safety analysis. Cache hits are returned with fresh
// metadata; on any backend error the text is never reported safe.
func (a *SafetyAnalyzer) Analyze(ctx context.Context, text, textContext string) (*safety.AnalysisResult, error) {
	key := cacheKey(text, textContext)
	if cached, ok := a.cache.Get(key); ok {
		return seal(cached), nil
	}

	result, err := a.backend.AnalyzeSafety(ctx, text, textContext)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	a.cache.Add(key, result)
	return seal(result), nil
}

// Interpretability explains a text without touching the result cache.
func (a *SafetyAnalyzer) Interpretability(ctx context.Context, text string) (*backend.Interpretability, error) {
	out, err := a.backend.AnalyzeInterpretability(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("interpretability analysis failed: %w", err)
	}
	return out, nil
}

// CacheLen reports the number of cached results.
func (a *SafetyAnalyzer) CacheLen() int {
	return a.cache.Len()
}

// Purge drops every cached result. The cache is otherwise cleared only by
// eviction or process restart.
func (a *SafetyAnalyzer) Purge() {
	a.cache.Purge()
}

// seal copies the result and stamps per-request metadata. The cached value
// stays untouched so later hits cannot observe another request's id.
func seal(r *safety.AnalysisResult) *safety.AnalysisResult {
	out := *r
	out.Violations = append(make([]safety.Violation, 0, len(r.Violations)), r.Violations...)
	out.Metadata.AnalysisID = uuid.NewString()
	out.Metadata.Timestamp = time.Now().UTC()
	return &out
}
