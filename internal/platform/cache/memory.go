package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Store with per-entry TTL and periodic eviction.
type Memory struct {
	data      map[string]memoryItem
	mutex     sync.RWMutex
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
	cleanupWG sync.WaitGroup
}

// NewMemory creates a Memory store. A positive cleanupInterval starts a
// goroutine that evicts expired entries; call Stop to end it.
func NewMemory(cleanupInterval time.Duration) *Memory {
	c := &Memory{
		data:     make(map[string]memoryItem),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		c.cleanupWG.Add(1)
		go c.cleanupExpired(cleanupInterval)
	}

	return c
}

// Get returns the value and whether it was found and not expired.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.data[key]
	if !ok || !c.now().Before(item.expiresAt) {
		return nil, false, nil
	}
	return item.value, true, nil
}

// Set stores value under key until ttl elapses. A non-positive ttl is a no-op.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = memoryItem{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *Memory) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

func (c *Memory) evictExpired() {
	now := c.now()
	c.mutex.Lock()
	for k, v := range c.data {
		if !now.Before(v.expiresAt) {
			delete(c.data, k)
		}
	}
	c.mutex.Unlock()
}

func (c *Memory) cleanupExpired(interval time.Duration) {
	defer c.cleanupWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopChan:
			return
		}
	}
}

// Stop shuts down the background cleanup. It is safe to call more than once.
func (c *Memory) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.cleanupWG.Wait()
}
