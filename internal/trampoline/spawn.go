package trampoline

import "sync"

// SpawnRequest describes a task to create at the end of the current round.
type SpawnRequest struct {
	Name string
	Func Func
	Args Args
}

// SpawnQueue is the mailbox through which running tasks and host code request
// new tasks. The scheduler drains it completely once per round, so a task
// submitted during round K first runs in round K+1. Entries submitted in the
// same round have no ordering guarantee.
type SpawnQueue struct {
	mu      sync.Mutex
	pending []SpawnRequest
}

// Submit queues an unnamed task built by fn.
func (q *SpawnQueue) Submit(fn Func, positional []any, keyword map[string]any) {
	q.SubmitNamed("", fn, positional, keyword)
}

// SubmitNamed queues a task with a diagnostic name.
func (q *SpawnQueue) SubmitNamed(name string, fn Func, positional []any, keyword map[string]any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, SpawnRequest{
		Name: name,
		Func: fn,
		Args: Args{Positional: positional, Keyword: keyword},
	})
}

// Drain returns and clears all queued requests.
func (q *SpawnQueue) Drain() []SpawnRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of queued requests.
func (q *SpawnQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
