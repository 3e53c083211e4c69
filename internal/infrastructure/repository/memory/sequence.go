package memory

import (
	"context"
	"sync"
	"time"
)

type SequenceAllocator struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewSequenceAllocator() *SequenceAllocator {
	return &SequenceAllocator{values: make(map[string]int64)}
}

func (a *SequenceAllocator) Next(_ context.Context, typeCode string, day time.Time) (int64, error) {
	key := typeCode + ":" + day.Format("20060102")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key]++
	return a.values[key], nil
}
