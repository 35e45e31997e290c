package delivery

import (
	"slices"

	jp "github.com/go-mclib/protocol/java_protocol"
)

// PendingQueue holds packets that could not be relied upon to reach a player
// before it finished joining. Not safe for concurrent use; see Tracker.
type PendingQueue struct {
	entries map[Identity][]*jp.WirePacket
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{entries: make(map[Identity][]*jp.WirePacket)}
}

// Enqueue appends pkt to the identity's queue, creating it if needed.
func (q *PendingQueue) Enqueue(id Identity, pkt *jp.WirePacket) {
	q.entries[id] = append(q.entries[id], pkt)
}

// Drain removes and returns the identity's packets in insertion order.
func (q *PendingQueue) Drain(id Identity) []*jp.WirePacket {
	pkts, ok := q.entries[id]
	if !ok {
		return nil
	}
	delete(q.entries, id)
	return pkts
}

// Discard drops the identity's queue and returns how many packets it held.
func (q *PendingQueue) Discard(id Identity) int {
	n := len(q.entries[id])
	delete(q.entries, id)
	return n
}

// Len returns the number of packets queued for id.
func (q *PendingQueue) Len(id Identity) int { return len(q.entries[id]) }

func (q *PendingQueue) Has(id Identity) bool {
	_, ok := q.entries[id]
	return ok
}

// Identities returns every identity with queued packets, sorted.
func (q *PendingQueue) Identities() []Identity {
	ids := make([]Identity, 0, len(q.entries))
	for id := range q.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Total returns the number of queued packets across all identities.
func (q *PendingQueue) Total() int {
	n := 0
	for _, pkts := range q.entries {
		n += len(pkts)
	}
	return n
}

// ReadySet is the set of identities that completed the join sequence and
// have not quit. Not safe for concurrent use; see Tracker.
type ReadySet struct {
	members map[Identity]struct{}
}

func NewReadySet() *ReadySet {
	return &ReadySet{members: make(map[Identity]struct{})}
}

func (s *ReadySet) Add(id Identity)           { s.members[id] = struct{}{} }
func (s *ReadySet) Remove(id Identity)        { delete(s.members, id) }
func (s *ReadySet) Contains(id Identity) bool { _, ok := s.members[id]; return ok }
func (s *ReadySet) Len() int                  { return len(s.members) }
