package server

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// pathLocks serializes work on overlapping directory trees. Two paths
// overlap when one equals or contains the other; disjoint trees run in
// parallel.
type pathLocks struct {
	mu     sync.Mutex
	active map[string]chan struct{}
}

func newPathLocks() *pathLocks {
	return &pathLocks{active: make(map[string]chan struct{})}
}

// acquire blocks until no held path overlaps path, then holds it. The
// returned release must be called exactly once.
func (l *pathLocks) acquire(ctx context.Context, path string) (release func(), err error) {
	path = filepath.Clean(path)
	for {
		l.mu.Lock()
		busy := l.overlapping(path)
		if busy == nil {
			done := make(chan struct{})
			l.active[path] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.active, path)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// overlapping returns the wait channel of a held path overlapping path.
func (l *pathLocks) overlapping(path string) chan struct{} {
	for held, done := range l.active {
		if within(held, path) || within(path, held) {
			return done
		}
	}
	return nil
}

// within reports whether path equals dir or lies below it.
func within(dir, path string) bool {
	if dir == path {
		return true
	}
	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
	return strings.HasPrefix(path, prefix)
}
