package llm

import (
	"context"
	"sync"
	"time"
)

// ModelCache memoizes the backend's model listing. A fetch failure
// keeps whatever was cached; staleness is better than an empty list
// while the backend restarts.
type ModelCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	fetch   func(context.Context) ([]string, error)
	models  []string
	fetched time.Time
}

func NewModelCache(ttl time.Duration, fetch func(context.Context) ([]string, error)) *ModelCache {
	return &ModelCache{ttl: ttl, now: time.Now, fetch: fetch}
}

// Get returns the cached model list, refreshing it when forced, empty,
// or past the TTL. The returned error reports a failed refresh even
// when stale data is returned alongside it.
func (m *ModelCache) Get(ctx context.Context, force bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && len(m.models) > 0 && m.now().Sub(m.fetched) < m.ttl {
		return m.models, nil
	}

	models, err := m.fetch(ctx)
	if err != nil {
		return m.models, err
	}
	if len(models) > 0 {
		m.models = models
		m.fetched = m.now()
	}
	return m.models, nil
}
