package spacetraveling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eringen/spacetraveling/content"
)

// pathSet is the set of article uids known to exist, i.e. prerendered or
// resolved through a fallback.
type pathSet struct {
	mu   sync.RWMutex
	uids map[string]struct{}
}

func newPathSet() *pathSet {
	return &pathSet{uids: make(map[string]struct{})}
}

func (s *pathSet) add(uids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range uids {
		s.uids[u] = struct{}{}
	}
}

func (s *pathSet) remove(uid string) {
	s.mu.Lock()
	delete(s.uids, uid)
	s.mu.Unlock()
}

func (s *pathSet) has(uid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.uids[uid]
	return ok
}

func (s *pathSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uids)
}

// maxPendingFallbacks bounds the number of uids resolving or remembered
// as missing at once.
const maxPendingFallbacks = 1024

// errFallbacksFull is returned by start when the tracker is at capacity.
var errFallbacksFull = errors.New("too many article fallbacks in flight")

// fallbackTracker holds the deferred resolutions for uids outside the known
// set. One resolution runs per uid at a time. A resolved article is handed
// to resolved and dropped; a missing or failed one is remembered for retain
// so repeated requests keep answering 404 without asking upstream again.
type fallbackTracker struct {
	mu       sync.Mutex
	pending  map[string]*content.Deferred
	timeout  time.Duration
	retain   time.Duration
	max      int
	resolved func(ctx context.Context, uid string, article content.Article) error
}

func newFallbackTracker(timeout time.Duration, resolved func(context.Context, string, content.Article) error) *fallbackTracker {
	return &fallbackTracker{
		pending:  make(map[string]*content.Deferred),
		timeout:  timeout,
		retain:   timeout,
		max:      maxPendingFallbacks,
		resolved: resolved,
	}
}

// start returns the resolution for uid, beginning one if none is running.
func (f *fallbackTracker) start(a *content.Assembler, uid string) (*content.Deferred, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.pending[uid]; ok {
		return d, nil
	}
	if len(f.pending) >= f.max {
		return nil, errFallbacksFull
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	d := a.Defer(ctx, uid, "")
	f.pending[uid] = d
	go f.settle(uid, d, cancel)
	return d, nil
}

func (f *fallbackTracker) settle(uid string, d *content.Deferred, cancel context.CancelFunc) {
	<-d.Done()
	cancel()
	if d.State() == content.Ready && f.resolved != nil {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		article, err := d.Wait(ctx)
		if err == nil {
			err = f.resolved(ctx, uid, article)
		}
		if err == nil {
			f.forget(uid, d)
			return
		}
	}
	time.AfterFunc(f.retain, func() { f.forget(uid, d) })
}

func (f *fallbackTracker) forget(uid string, d *content.Deferred) {
	f.mu.Lock()
	if f.pending[uid] == d {
		delete(f.pending, uid)
	}
	f.mu.Unlock()
}

func (f *fallbackTracker) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
