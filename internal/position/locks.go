package position

import (
	"context"
	"sync"
)

// TokenLocks is an in-process keyed mutex. Operations on the same token are
// serialised while different tokens proceed independently.
type TokenLocks struct {
	mu    sync.Mutex
	locks map[string]*tokenLock
}

type tokenLock struct {
	sem  chan struct{}
	refs int
}

// NewTokenLocks creates an empty lock table.
func NewTokenLocks() *TokenLocks {
	return &TokenLocks{locks: make(map[string]*tokenLock)}
}

// Lock blocks until the token lock is held or ctx is done. The returned
// unlock func is safe to call more than once.
func (l *TokenLocks) Lock(ctx context.Context, tokenID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[tokenID]
	if !ok {
		tl = &tokenLock{sem: make(chan struct{}, 1)}
		l.locks[tokenID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(tokenID, tl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-tl.sem
			l.release(tokenID, tl)
		})
	}, nil
}

func (l *TokenLocks) release(tokenID string, tl *tokenLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, tokenID)
	}
}
