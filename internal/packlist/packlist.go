// Package packlist maintains the deduplicated packing list built from
// classifier detections.
package packlist

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/movemate/internal/model"
)

// List is the authoritative packing list. At most one item exists per
// case-insensitive name.
//
// List is not safe for concurrent use; callers serialize access.
type List struct {
	items    []model.PackingItem
	seq      []uint64 // insertion sequence, parallel to items
	nextSeq  uint64
	revision uint64
	now      func() time.Time
	entropy  *ulid.MonotonicEntropy
}

// New returns an empty list. now defaults to time.Now when nil.
func New(now func() time.Time) *List {
	if now == nil {
		now = time.Now
	}
	return &List{
		now:     now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (l *List) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), l.entropy).String()
}

// Admit merges one batch of detections into the list. Candidates whose
// name is already present (ignoring case) are skipped, including names
// admitted earlier in the same batch. It returns the name of the last
// admitted candidate, or ok=false when nothing was added.
func (l *List) Admit(candidates []model.DetectedItem) (name string, ok bool) {
	added := l.AdmitItems(candidates)
	if len(added) == 0 {
		return "", false
	}
	return added[len(added)-1].Name, true
}

// AdmitItems is Admit returning every item created, in candidate order.
func (l *List) AdmitItems(candidates []model.DetectedItem) []model.PackingItem {
	var added []model.PackingItem
	for _, c := range candidates {
		if l.indexByName(c.Name) >= 0 {
			continue
		}
		ts := l.now()
		it := model.PackingItem{
			ID:        l.newID(ts),
			Name:      c.Name,
			Category:  c.Category,
			Fragility: model.NormalizeFragility(c.Fragility),
			Timestamp: ts,
		}
		l.items = append(l.items, it)
		l.seq = append(l.seq, l.nextSeq)
		l.nextSeq++
		added = append(added, it)
	}
	if len(added) > 0 {
		l.revision++
	}
	return added
}

// Delete removes the item with the given id. Unknown ids are ignored.
func (l *List) Delete(id string) bool {
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			l.seq = append(l.seq[:i:i], l.seq[i+1:]...)
			l.revision++
			return true
		}
	}
	return false
}

// Clear empties the list.
func (l *List) Clear() {
	if len(l.items) == 0 {
		return
	}
	l.items = nil
	l.seq = nil
	l.revision++
}

// Items returns a copy of the list, most recent first. Items sharing a
// timestamp are ordered by later insertion first.
func (l *List) Items() []model.PackingItem {
	idx := make([]int, len(l.items))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := l.items[idx[a]], l.items[idx[b]]
		if !ia.Timestamp.Equal(ib.Timestamp) {
			return ia.Timestamp.After(ib.Timestamp)
		}
		return l.seq[idx[a]] > l.seq[idx[b]]
	})

	out := make([]model.PackingItem, len(idx))
	for i, j := range idx {
		out[i] = l.items[j]
	}
	return out
}

// Find returns the item with the given id.
func (l *List) Find(id string) (model.PackingItem, bool) {
	for _, it := range l.items {
		if it.ID == id {
			return it, true
		}
	}
	return model.PackingItem{}, false
}

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// Revision changes whenever the list contents change. Two equal
// revisions mean the list was not mutated in between.
func (l *List) Revision() uint64 { return l.revision }

func (l *List) indexByName(name string) int {
	for i, it := range l.items {
		if strings.EqualFold(it.Name, name) {
			return i
		}
	}
	return -1
}
