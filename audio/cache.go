package audio

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedFeatures is one feature-cache entry: the flattened vector, its
// original shape and the waveform statistics before and after length
// normalization.
type CachedFeatures struct {
	Features     []float64
	Frames       int
	Coeffs       int
	Stats        Stats
	Preprocessed Stats
}

// FeatureCache memoizes extracted features keyed by audio content hash and
// feature type, so repeated uploads of the same clip skip decode and FFT work.
type FeatureCache struct {
	cache *lru.Cache[string, CachedFeatures]
}

// NewFeatureCache creates a cache holding up to size entries.
func NewFeatureCache(size int) (*FeatureCache, error) {
	cache, err := lru.New[string, CachedFeatures](size)
	if err != nil {
		return nil, err
	}
	return &FeatureCache{cache: cache}, nil
}

// Key derives the cache key for raw audio bytes and a feature type.
func (fc *FeatureCache) Key(content []byte, featureType string) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) + ":" + featureType
}

// Get returns the cached entry for key, if present.
func (fc *FeatureCache) Get(key string) (CachedFeatures, bool) {
	return fc.cache.Get(key)
}

// Add stores an entry under key.
func (fc *FeatureCache) Add(key string, entry CachedFeatures) {
	fc.cache.Add(key, entry)
}

// Len returns the number of cached entries.
func (fc *FeatureCache) Len() int {
	return fc.cache.Len()
}
