package edits

import (
	"context"
	"sync"
)

// tripLocks hands out one lock per trip id. Entries are dropped once nobody
// holds or waits on them.
type tripLocks struct {
	mu    sync.Mutex
	locks map[string]*tripLock
}

type tripLock struct {
	ch   chan struct{}
	refs int
}

func newTripLocks() *tripLocks {
	return &tripLocks{locks: make(map[string]*tripLock)}
}

// acquire blocks until the trip's lock is free or ctx is done.
func (l *tripLocks) acquire(ctx context.Context, tripID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[tripID]
	if !ok {
		tl = &tripLock{ch: make(chan struct{}, 1)}
		l.locks[tripID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.ch <- struct{}{}:
	case <-ctx.Done():
		l.put(tripID, tl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-tl.ch
			l.put(tripID, tl)
		})
	}, nil
}

func (l *tripLocks) put(tripID string, tl *tripLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, tripID)
	}
}

func (l *tripLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
