package cache

import (
	"context"
	"sync"
	"time"

	"apsplan/internal/model"
)

type memEntry struct {
	res    model.ScheduleResult
	stored time.Time
}

// Memory is a process-local cache; entries expire on read.
type Memory struct {
	ttl time.Duration
	mu  sync.RWMutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Memory{ttl: ttl, m: map[string]memEntry{}, now: time.Now}
}

func (c *Memory) Get(ctx context.Context, key string) (model.ScheduleResult, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return model.ScheduleResult{}, ErrMiss
	}
	if c.now().Sub(e.stored) > c.ttl {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return model.ScheduleResult{}, ErrMiss
	}
	return e.res, nil
}

func (c *Memory) Put(ctx context.Context, key string, res model.ScheduleResult) error {
	c.mu.Lock()
	c.m[key] = memEntry{res: res, stored: c.now()}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
