package delivery

import (
	"sync"

	jp "github.com/go-mclib/protocol/java_protocol"
)

// Tracker guards a PendingQueue and a ReadySet behind one lock, so that a
// readiness check and the enqueue it decides on can never interleave with a
// join draining the same identity.
type Tracker struct {
	// RetainOnQuit keeps queued packets of a player that quits without ever
	// joining. By default they are discarded on quit.
	RetainOnQuit bool

	mu      sync.Mutex
	pending *PendingQueue
	ready   *ReadySet
}

// Stats is a point-in-time view of the tracker.
type Stats struct {
	Ready   int              `json:"ready"`
	Pending map[Identity]int `json:"pending"`
}

func NewTracker() *Tracker {
	return &Tracker{
		pending: NewPendingQueue(),
		ready:   NewReadySet(),
	}
}

// Hold queues pkt for id unless id already joined. It reports whether the
// packet was queued.
func (t *Tracker) Hold(id Identity, pkt *jp.WirePacket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ready.Contains(id) {
		return false
	}
	t.pending.Enqueue(id, pkt)
	return true
}

// Join marks id ready and returns its queued packets in the order they were
// queued. The queue entry is removed.
func (t *Tracker) Join(id Identity) []*jp.WirePacket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready.Add(id)
	return t.pending.Drain(id)
}

// Quit clears readiness for id and returns the number of queued packets that
// were discarded.
func (t *Tracker) Quit(id Identity) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready.Remove(id)
	if t.RetainOnQuit {
		return 0
	}
	return t.pending.Discard(id)
}

func (t *Tracker) IsReady(id Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready.Contains(id)
}

// Pending returns the number of packets queued for id.
func (t *Tracker) Pending(id Identity) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Len(id)
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{Ready: t.ready.Len(), Pending: make(map[Identity]int)}
	for _, id := range t.pending.Identities() {
		s.Pending[id] = t.pending.Len(id)
	}
	return s
}

// Reset forgets every ready identity and queued packet.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = NewPendingQueue()
	t.ready = NewReadySet()
}
