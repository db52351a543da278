package pipeline

import "sync"

// notifier delivers snapshots to a listener one at a time, in the order they
// were pushed. Pushing never blocks on the listener.
type notifier struct {
	fn func(Snapshot)

	mu      sync.Mutex
	idle    *sync.Cond
	pending []Snapshot
	running bool
	last    uint64
}

func newNotifier(fn func(Snapshot)) *notifier {
	n := &notifier{fn: fn}
	n.idle = sync.NewCond(&n.mu)
	return n
}

// push queues snap for delivery. Snapshots not newer than one already queued
// or delivered are dropped.
func (n *notifier) push(snap Snapshot) {
	if n == nil || n.fn == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if snap.Seq <= n.last {
		return
	}
	n.last = snap.Seq
	n.pending = append(n.pending, snap)
	if !n.running {
		n.running = true
		go n.drain()
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.running = false
			n.idle.Broadcast()
			n.mu.Unlock()
			return
		}
		snap := n.pending[0]
		n.pending = n.pending[1:]
		n.mu.Unlock()

		n.fn(snap)
	}
}

// wait blocks until every snapshot pushed so far has been delivered.
func (n *notifier) wait() {
	if n == nil {
		return
	}

	n.mu.Lock()
	for n.running {
		n.idle.Wait()
	}
	n.mu.Unlock()
}
