package cache

import (
	"encoding/binary"
	"math"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
)

// Scorer is the artifact surface the engine calls.
type Scorer interface {
	Normalize(v domain.FeatureVector) (domain.FeatureVector, error)
	Score(v domain.FeatureVector) (float64, error)
}

// ScoreCache wraps a Scorer and memoizes Score by the exact bits of the
// normalized vector. Errors are never cached.
type ScoreCache struct {
	next Scorer
	lru  *LRUCache[string, float64]
}

// NewScoreCache returns a memoizing Scorer holding at most size entries.
func NewScoreCache(next Scorer, size int) *ScoreCache {
	return &ScoreCache{next: next, lru: NewLRUCache[string, float64](size)}
}

// Normalize delegates to the wrapped scorer.
func (s *ScoreCache) Normalize(v domain.FeatureVector) (domain.FeatureVector, error) {
	return s.next.Normalize(v)
}

// Score returns the cached decision value for v, computing it on a miss.
func (s *ScoreCache) Score(v domain.FeatureVector) (float64, error) {
	key := vectorKey(v)
	if d, ok := s.lru.Get(key); ok {
		metrics.ScoreCacheTotal.WithLabelValues("hit").Inc()
		return d, nil
	}
	metrics.ScoreCacheTotal.WithLabelValues("miss").Inc()

	d, err := s.next.Score(v)
	if err != nil {
		return 0, err
	}
	s.lru.Set(key, d)
	return d, nil
}

// Stats returns the number of cached scores and the capacity.
func (s *ScoreCache) Stats() (size int, capacity int) {
	return s.lru.Stats()
}

// vectorKey encodes v bit-exactly so -0 and 0 stay distinct keys.
func vectorKey(v domain.FeatureVector) string {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return string(buf)
}
