package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ProviderConfig configures the lazy embedding provider.
type ProviderConfig struct {
	ModelPath  string
	ModelName  string
	Version    string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	// UseMock selects the deterministic mock embedder instead of ONNX.
	UseMock bool
}

// Provider wraps an Embedder with lazy initialization and an LRU cache.
// The underlying model is loaded on first use, not at construction; concurrent
// callers during the load block until it completes and then share the result.
// A failed load is terminal; every subsequent call returns the same error.
type Provider struct {
	cfg    ProviderConfig
	cache  *EmbeddingCache
	logger *zap.Logger

	once     sync.Once
	embedder Embedder
	initErr  error
}

// NewProvider creates a provider. No model is loaded until the first Embed call.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	return &Provider{
		cfg:    cfg,
		cache:  NewEmbeddingCache(cfg.CacheSize),
		logger: logger,
	}
}

func (p *Provider) init() {
	if p.cfg.UseMock {
		p.logger.Info("using mock embedder", zap.Int("dimensions", p.cfg.Dimensions))
		p.embedder = NewMockEmbedder(p.cfg.Dimensions)
		return
	}
	p.logger.Info("loading embedding model",
		zap.String("path", p.cfg.ModelPath),
		zap.String("model", p.cfg.ModelName))
	emb, err := NewONNXEmbedder(p.cfg.ModelPath, p.cfg.Dimensions, p.cfg.MaxTokens, p.cfg.CacheSize)
	if err != nil {
		p.initErr = fmt.Errorf("failed to load embedding model: %w", err)
		p.logger.Error("embedding model load failed", zap.Error(err))
		return
	}
	p.embedder = emb
}

func (p *Provider) get() (Embedder, error) {
	p.once.Do(p.init)
	if p.initErr != nil {
		return nil, p.initErr
	}
	return p.embedder, nil
}

// Embed returns the embedding for text, loading the model on first call.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := p.cache.Get(text); ok {
		return cached, nil
	}
	emb, err := p.get()
	if err != nil {
		return nil, err
	}
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch embeds each text, reusing cached entries.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (p *Provider) Dimensions() int {
	return p.cfg.Dimensions
}

// ModelName returns the configured model name.
func (p *Provider) ModelName() string {
	return p.cfg.ModelName
}

// ModelVersion returns the configured model version.
func (p *Provider) ModelVersion() string {
	return p.cfg.Version
}

// Close releases the underlying embedder if one was loaded.
func (p *Provider) Close() error {
	if p.embedder != nil {
		return p.embedder.Close()
	}
	return nil
}
