package staging

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemQueue keeps staged images in memory.
type MemQueue struct {
	mu     sync.Mutex
	images map[Key]map[string][]byte
}

func NewMemQueue() *MemQueue {
	return &MemQueue{images: make(map[Key]map[string][]byte)}
}

func (q *MemQueue) Put(_ context.Context, key Key, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	folder, ok := q.images[key]
	if !ok {
		folder = make(map[string][]byte)
		q.images[key] = folder
	}
	folder[name] = append([]byte(nil), data...)
	return nil
}

func (q *MemQueue) List(_ context.Context, key Key) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	names := make([]string, 0, len(q.images[key]))
	for name := range q.images[key] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (q *MemQueue) Read(_ context.Context, key Key, name string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, ok := q.images[key][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

func (q *MemQueue) Remove(_ context.Context, key Key, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.images[key][name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(q.images[key], name)
	return nil
}

// Len returns the number of images staged under key.
func (q *MemQueue) Len(key Key) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.images[key])
}
