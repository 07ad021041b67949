package gateway

import "github.com/layer-3/faucetadmin/core"

// refreshOutcome is what a deferred request receives when the refresh resolves
type refreshOutcome struct {
	token string
	err   error
}

// pendingReplay is one request parked behind an in-flight refresh. ready has
// capacity 1 so resolving never blocks, even if the caller already gave up.
type pendingReplay struct {
	ready chan refreshOutcome
}

// pendingQueue is the ordered set of requests waiting on the current refresh
type pendingQueue struct {
	entries []*pendingReplay
}

func (q *pendingQueue) push() *pendingReplay {
	entry := &pendingReplay{ready: make(chan refreshOutcome, 1)}
	q.entries = append(q.entries, entry)
	return entry
}

func (q *pendingQueue) len() int { return len(q.entries) }

// take empties the queue and returns its entries in the order they were deferred
func (q *pendingQueue) take() []*pendingReplay {
	entries := q.entries
	q.entries = nil
	return entries
}

// release resolves entries in FIFO order, each exactly once
func release(entries []*pendingReplay, outcome refreshOutcome) {
	for _, entry := range entries {
		entry.ready <- outcome
	}
}

// refreshHandle is the single shared refresh in progress. It is assigned once
// by resolve; done is closed afterwards.
type refreshHandle struct {
	done    chan struct{}
	session *core.Session
	err     error

	// reactive is set once any failed request joins; a failure then ends the session
	reactive bool
}

func newRefreshHandle() *refreshHandle {
	return &refreshHandle{done: make(chan struct{})}
}

func (h *refreshHandle) resolve(session *core.Session, err error) {
	h.session = session
	h.err = err
	close(h.done)
}
