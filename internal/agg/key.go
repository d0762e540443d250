// key.go defines the identity types of the aggregation engine: the owning
// Key stored in the sharded maps, the transient LookupKey borrowed from a
// recording call, the materialized Tags with their precomputed wire join,
// and the RemoveKey used for safe eviction.
//
// The `id` field on Key is essential: the flush worker prepares RemoveKeys
// while iterating a drained snapshot and applies them later under per-shard
// locks.  Without the monotonic id a key re-inserted with identical content
// in the meantime would be incorrectly evicted by the stale RemoveKey.
//
// © 2025 statline authors. MIT License.

package agg

import (
	"strings"
	"sync/atomic"

	"github.com/statline/statline/internal/flexstr"
)

// nextID is the process-wide monotonic counter for Key identities.
var nextID atomic.Uint64

// Tags is an ordered sequence of owned tag strings plus the precomputed
// comma-joined form emitted on the wire after "|#".  The caller sorts before
// materialization; Tags never re-orders.
//
// Invariant: len(Joined) == Σ len(Items[i]) + (len(Items)-1), zero for an
// empty set.
type Tags struct {
	Items  []string
	Joined string
}

// MaterializeTags promotes a sorted tag slice into owned storage and builds
// the joined form in a single exactly-sized allocation.
func MaterializeTags(tags []flexstr.String) Tags {
	if len(tags) == 0 {
		return Tags{}
	}
	if len(tags) == 1 {
		t := tags[0].Promote()
		return Tags{Items: []string{t}, Joined: t}
	}

	items := make([]string, len(tags))
	total := 0
	for i, t := range tags {
		items[i] = t.Promote()
		total += len(items[i])
	}

	var b strings.Builder
	b.Grow(total + len(items) - 1)
	b.WriteString(items[0])
	for _, t := range items[1:] {
		b.WriteByte(',')
		b.WriteString(t)
	}
	return Tags{Items: items, Joined: b.String()}
}

// Key is the owning identity stored in a shard: metric name, materialized
// tags, the externally-computed hash and the insertion id.  Equality ignores
// the id; the hash is a fast reject only.
type Key struct {
	Metric string
	Tags   Tags
	Hash   uint64
	ID     uint64
}

// RemoveKey captures the (hash, id) pair needed to evict exactly the entry
// it was taken from, and nothing re-inserted after it.
type RemoveKey struct {
	Hash uint64
	ID   uint64
}

// Remover returns the RemoveKey for this entry.
func (k *Key) Remover() RemoveKey {
	return RemoveKey{Hash: k.Hash, ID: k.ID}
}

// LookupKey is the transient, non-owning identity built on the recording hot
// path.  It borrows the caller's strings and is never stored.
type LookupKey struct {
	Metric flexstr.String
	Tags   []flexstr.String
	Hash   uint64
}

// Matches reports whether the lookup identity equals the stored key: hashes
// first (cheap reject), then metric and tag byte contents.
func (lk *LookupKey) Matches(k *Key) bool {
	if lk.Hash != k.Hash || lk.Metric.Str() != k.Metric {
		return false
	}
	if len(lk.Tags) != len(k.Tags.Items) {
		return false
	}
	for i, t := range k.Tags.Items {
		if lk.Tags[i].Str() != t {
			return false
		}
	}
	return true
}

// Materialize promotes the borrowed identity into an owning Key, assigning a
// fresh insertion id.  Called only on the miss path, under the shard's
// exclusive lock.
func (lk *LookupKey) Materialize() *Key {
	return &Key{
		Metric: lk.Metric.Promote(),
		Tags:   MaterializeTags(lk.Tags),
		Hash:   lk.Hash,
		ID:     nextID.Add(1),
	}
}
