package metacache

import (
	"sync"
	"time"
)

// Mem is an in-memory Client for tests and for running without a
// memcached deployment.
type Mem struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMem() *Mem {
	return &Mem{data: map[string][]byte{}}
}

func (m *Mem) GetKey(k Keyer) ([]byte, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k.Key()]
	if !ok {
		return nil, time.Time{}, ErrNotCached
	}
	return append([]byte(nil), v...), time.Time{}, nil
}

func (m *Mem) SetKey(k Keyer, v []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k.Key()] = append([]byte(nil), v...)
	return nil
}

func (m *Mem) DeleteKey(k Keyer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k.Key())
	return nil
}
