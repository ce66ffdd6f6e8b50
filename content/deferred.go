package content

import "context"

// FallbackState is the progress of a deferred article.
type FallbackState int

const (
	// Pending means retrieval has not finished.
	Pending FallbackState = iota
	// Ready means the article is available from Wait.
	Ready
	// NotFound means retrieval failed for any reason.
	NotFound
)

func (s FallbackState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

// Deferred is an article being assembled in the background.
type Deferred struct {
	done    chan struct{}
	article Article
	err     error
}

// Defer starts assembling uid and returns immediately. ctx bounds the
// retrieval; give it a deadline so the result settles.
func (a *Assembler) Defer(ctx context.Context, uid, ref string) *Deferred {
	d := &Deferred{done: make(chan struct{})}
	go func() {
		defer close(d.done)
		d.article, d.err = a.Assemble(ctx, uid, ref)
	}()
	return d
}

// State reports the current progress without blocking.
func (d *Deferred) State() FallbackState {
	select {
	case <-d.done:
		if d.err != nil {
			return NotFound
		}
		return Ready
	default:
		return Pending
	}
}

// Done is closed once the state is no longer Pending.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Wait blocks until retrieval settles or ctx is done.
func (d *Deferred) Wait(ctx context.Context) (Article, error) {
	select {
	case <-d.done:
		return d.article, d.err
	case <-ctx.Done():
		return Article{}, ctx.Err()
	}
}
