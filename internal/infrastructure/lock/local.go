package lock

import (
	"context"
	"sync"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// LocalLocker serializes claims inside one process. Entries are reference
// counted and dropped when the last holder or waiter leaves.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	// buffered channel of size 1 acts as a mutex that can be waited on with a context
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process claim locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[int64]*entry)}
}

// Lock blocks until the claim is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, claimID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[claimID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[claimID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(claimID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(claimID, e)
		})
	}, nil
}

func (l *LocalLocker) release(claimID int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, claimID)
	}
}

// held reports the number of claims with a holder or waiter
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

var _ port.ClaimLocker = (*LocalLocker)(nil)
