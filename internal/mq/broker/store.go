package broker

import (
	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/topic"
)

// record is a registered topic. A record in the store always has at least
// one subscriber.
type record struct {
	name string
	id   topic.ID
	subs []*mq.Subscriber
}

func (r *record) indexOf(sub *mq.Subscriber) int {
	for i, s := range r.subs {
		if s.ID() == sub.ID() {
			return i
		}
	}
	return -1
}

// ref addresses a slot. A ref whose generation no longer matches the slot
// refers to a removed record.
type ref struct {
	index uint32
	gen   uint32
}

type slot struct {
	gen uint32
	rec *record
}

// store holds topic records in reusable, generation-checked slots.
// It is not safe for concurrent use; the broker lock guards it.
type store struct {
	slots  []slot
	free   []uint32
	byName map[string]ref
	limit  int
	subs   int
}

func newStore(limit int) *store {
	return &store{
		byName: make(map[string]ref),
		limit:  limit,
	}
}

// Len returns the number of live records.
func (s *store) Len() int {
	return len(s.byName)
}

// Full reports whether a new record would exceed the limit.
func (s *store) Full() bool {
	return len(s.byName) >= s.limit
}

// Lookup returns the record registered under name.
func (s *store) Lookup(name string) (*record, ref, bool) {
	r, ok := s.byName[name]
	if !ok {
		return nil, ref{}, false
	}
	rec := s.get(r)
	return rec, r, rec != nil
}

func (s *store) get(r ref) *record {
	if int(r.index) >= len(s.slots) {
		return nil
	}
	sl := s.slots[r.index]
	if sl.gen != r.gen {
		return nil
	}
	return sl.rec
}

// Insert stores rec and returns its ref.
func (s *store) Insert(rec *record) ref {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}
	s.slots[idx].rec = rec
	r := ref{index: idx, gen: s.slots[idx].gen}
	s.byName[rec.name] = r
	s.subs += len(rec.subs)
	return r
}

// Remove deletes the record at r. Stale refs are ignored.
func (s *store) Remove(r ref) {
	rec := s.get(r)
	if rec == nil {
		return
	}
	delete(s.byName, rec.name)
	s.subs -= len(rec.subs)
	s.slots[r.index] = slot{gen: r.gen + 1}
	s.free = append(s.free, r.index)
}

// Each calls fn for every live record in slot order.
func (s *store) Each(fn func(*record)) {
	for i := range s.slots {
		if rec := s.slots[i].rec; rec != nil {
			fn(rec)
		}
	}
}

// Subscriptions returns the number of subscribers over all records.
func (s *store) Subscriptions() int {
	return s.subs
}

// Attach appends sub to rec.
func (s *store) Attach(rec *record, sub *mq.Subscriber) {
	rec.subs = append(rec.subs, sub)
	s.subs++
}

// Detach removes the i-th subscriber of the record at r, removing the
// record when it was the last one. It reports whether the record was removed.
func (s *store) Detach(r ref, rec *record, i int) bool {
	rec.subs = append(rec.subs[:i], rec.subs[i+1:]...)
	s.subs--
	if len(rec.subs) > 0 {
		return false
	}
	s.Remove(r)
	return true
}
