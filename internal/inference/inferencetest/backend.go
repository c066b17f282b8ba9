package inferencetest

import (
	"context"
	"errors"
	"sync"

	"github.com/seanhlewis/mcagentgym/internal/inference"
)

// Backend is a scripted inference backend for tests. Responses are served
// from a FIFO queue; Hold() parks in-flight submissions until released so
// tests can pin the "awaiting inference" window open deterministically.
type Backend struct {
	mu        sync.Mutex
	queue     []inference.Result
	submitted []inference.PromptPayload
	hold      bool
	waiters   []chan struct{}
}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Enqueue(d inference.Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, inference.Result{Decision: d})
}

func (b *Backend) EnqueueErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, inference.Result{Decision: inference.IdleDecision("scripted error"), Err: err})
}

// Hold makes subsequent submissions wait until ReleaseOne/ReleaseAll.
func (b *Backend) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = true
}

func (b *Backend) ReleaseOne() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.waiters) == 0 {
		return false
	}
	close(b.waiters[0])
	b.waiters = b.waiters[1:]
	return true
}

func (b *Backend) ReleaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.waiters {
		close(w)
	}
	b.waiters = nil
	b.hold = false
}

func (b *Backend) SubmitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submitted)
}

func (b *Backend) Submitted() []inference.PromptPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]inference.PromptPayload, len(b.submitted))
	copy(out, b.submitted)
	return out
}

func (b *Backend) Submit(ctx context.Context, p inference.PromptPayload) <-chan inference.Result {
	out := make(chan inference.Result, 1)

	b.mu.Lock()
	b.submitted = append(b.submitted, p)
	res := inference.Result{Decision: inference.IdleDecision("scripted: queue empty")}
	if len(b.queue) > 0 {
		res = b.queue[0]
		b.queue = b.queue[1:]
	}
	var gate chan struct{}
	if b.hold {
		gate = make(chan struct{})
		b.waiters = append(b.waiters, gate)
	}
	b.mu.Unlock()

	go func() {
		defer close(out)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				err := ctx.Err()
				if errors.Is(err, context.DeadlineExceeded) {
					err = inference.ErrTimeout
				}
				out <- inference.Result{Decision: inference.IdleDecision("scripted: cancelled"), Err: err}
				return
			}
		}
		out <- res
	}()
	return out
}
