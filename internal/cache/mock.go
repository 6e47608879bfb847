package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockRedisClient is an in-process RedisInterface used in tests and when
// Redis is not available. TTLs are honoured lazily on Get.
type MockRedisClient struct {
	mu      sync.Mutex
	data    map[string]mockEntry
	subs    map[string]map[int]chan []byte
	nextSub int
	closed  bool
}

type mockEntry struct {
	value   []byte
	expires time.Time
}

var _ RedisInterface = (*MockRedisClient)(nil)

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		data: make(map[string]mockEntry),
		subs: make(map[string]map[int]chan []byte),
	}
}

func (m *MockRedisClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	m.subs = make(map[string]map[int]chan []byte)
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.data, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := mockEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *MockRedisClient) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys lists stored keys starting with prefix.
func (m *MockRedisClient) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Publish drops the message for subscribers whose buffer is full, like a
// slow Redis subscriber would lose it.
func (m *MockRedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan []byte, 64)
	if m.closed {
		close(ch)
		return ch, func() error { return nil }, nil
	}

	id := m.nextSub
	m.nextSub++
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]chan []byte)
	}
	m.subs[channel][id] = ch

	var once sync.Once
	unsubscribe := func() error {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[channel][id]; ok {
				delete(m.subs[channel], id)
				close(c)
			}
		})
		return nil
	}
	return ch, unsubscribe, nil
}
