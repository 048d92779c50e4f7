package lock

import (
	"context"
	"fmt"
	"sync"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
)

// LocalRunLock serializes source runs inside one process.
// It does not coordinate between worker instances.
type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalRunLock creates an in-process run lock
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: make(map[string]struct{})}
}

// Acquire marks sourceID as running, failing with ErrSourceBusy if it already is
func (l *LocalRunLock) Acquire(_ context.Context, sourceID string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[sourceID]; busy {
		return nil, fmt.Errorf("%w: %s", integration.ErrSourceBusy, sourceID)
	}
	l.held[sourceID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sourceID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

var _ appintegration.RunLock = (*LocalRunLock)(nil)
