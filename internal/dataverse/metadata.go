package dataverse

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kyleking/dataverse-agent/internal/cache"
	"github.com/kyleking/dataverse-agent/internal/edm"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/metrics"
)

// MetadataFetcher downloads the raw $metadata document
type MetadataFetcher interface {
	Metadata(ctx context.Context) ([]byte, error)
}

// MetadataSource serves the metadata document, optionally from a TTL cache.
// Only the raw document is cached; callers re-derive everything else from it.
// Concurrent misses share one download.
type MetadataSource struct {
	fetcher MetadataFetcher
	key     string
	cache   cache.Cache
	ttl     time.Duration
	logger  *logging.Logger
	group   singleflight.Group
}

// MetadataOption configures a MetadataSource
type MetadataOption func(*MetadataSource)

// WithMetadataCache enables caching for ttl. A nil cache or non-positive ttl
// leaves caching off.
func WithMetadataCache(c cache.Cache, ttl time.Duration) MetadataOption {
	return func(s *MetadataSource) {
		if c != nil && ttl > 0 {
			s.cache = c
			s.ttl = ttl
		}
	}
}

// WithMetadataLogger sets the logger
func WithMetadataLogger(logger *logging.Logger) MetadataOption {
	return func(s *MetadataSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMetadataSource wraps fetcher. key identifies the environment in the cache.
func NewMetadataSource(fetcher MetadataFetcher, key string, opts ...MetadataOption) *MetadataSource {
	s := &MetadataSource{
		fetcher: fetcher,
		key:     "metadata:" + key,
		logger:  logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Caching reports whether a cache is configured
func (s *MetadataSource) Caching() bool {
	return s.cache != nil
}

// Raw returns the metadata document bytes
func (s *MetadataSource) Raw(ctx context.Context) ([]byte, error) {
	if s.cache == nil {
		metrics.ObserveMetadataCache("disabled")
		return s.fetch(ctx)
	}

	data, err := s.cache.Get(ctx, s.key)
	if err == nil {
		metrics.ObserveMetadataCache("hit")
		return data, nil
	}

	if !stderrors.Is(err, cache.ErrMiss) {
		s.logger.WithError(err).Warn("metadata cache read failed, downloading")
	}

	metrics.ObserveMetadataCache("miss")

	v, err, _ := s.group.Do(s.key, func() (interface{}, error) {
		data, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, s.key, data, s.ttl); err != nil {
			s.logger.WithError(err).Warn("failed to cache metadata document")
		}

		return data, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

// Document returns the parsed metadata document
func (s *MetadataSource) Document(ctx context.Context) (*edm.Document, error) {
	data, err := s.Raw(ctx)
	if err != nil {
		return nil, err
	}

	return edm.Parse(data)
}

// Invalidate drops any cached document
func (s *MetadataSource) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	return s.cache.Delete(ctx, s.key)
}

func (s *MetadataSource) fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()

	data, err := s.fetcher.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"component": "dataverse",
		"bytes":     len(data),
		"duration":  time.Since(start),
	}).Info("downloaded metadata document")

	return data, nil
}
