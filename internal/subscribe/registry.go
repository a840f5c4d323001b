// Package subscribe matches committed changesets against glob
// subscriptions and batches the matches per subscriber: one changeset
// in, at most one delivered message per subscription out.
package subscribe

import (
	"errors"
	"sort"
	"sync"

	"github.com/hearthgrid/hearth/internal/engine"
	"github.com/hearthgrid/hearth/internal/tree"
)

// ErrNoSuchSubscription reports an unsubscribe for an unknown id.
var ErrNoSuchSubscription = errors.New("no such subscription")

// Sink receives batched subscription messages. Sessions implement it;
// Deliver must not block, slow subscribers are the session's problem.
type Sink interface {
	Deliver(subID uint64, changes []engine.Change)
}

type subscription struct {
	id    uint64
	glob  tree.Glob
	owner string
	sink  Sink
}

// Registry owns all live subscriptions across sessions.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a glob for the owning session and returns the
// subscription id.
func (r *Registry) Subscribe(owner string, glob tree.Glob, sink Sink) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[id] = &subscription{id: id, glob: glob, owner: owner, sink: sink}
	return id
}

// Unsubscribe removes one subscription. Sessions may only drop their
// own; owner guards against a client guessing another session's id.
func (r *Registry) Unsubscribe(owner string, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.owner != owner {
		return ErrNoSuchSubscription
	}
	delete(r.subs, id)
	return nil
}

// DropOwner removes every subscription a session owns. Called on
// session teardown.
func (r *Registry) DropOwner(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sub := range r.subs {
		if sub.owner == owner {
			delete(r.subs, id)
		}
	}
}

// Broadcast fans one changeset out: for every subscription whose glob
// matches at least one changed path, exactly one Deliver call carrying
// all of its matches.
func (r *Registry) Broadcast(cs engine.Changeset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Parse each path once, not once per subscription.
	paths := make([]tree.Path, len(cs))
	for i, c := range cs {
		p, err := tree.ParsePath(c.Path)
		if err != nil {
			continue
		}
		paths[i] = p
	}

	// Stable iteration order keeps delivery reproducible in tests.
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sub := r.subs[id]
		var matched []engine.Change
		for i, c := range cs {
			if sub.glob.Matches(paths[i]) {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			sub.sink.Deliver(sub.id, matched)
		}
	}
}
