// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package blackboard implements the per-run shared context that pipeline
// stages read from and write to.
//
// A Board is an append-only log of writes with an index of the latest
// value per key. Keys are never deleted; a Set on an existing key records a
// new write that shadows the previous one. Each run owns its own Board, and
// a Board is not safe for concurrent use.
package blackboard

import (
	"errors"
	"fmt"
	"sort"
)

// Well-known keys. Each is owned by exactly one stage.
const (
	KeyDocuments  = "input_documents"
	KeyProfile    = "user_profile"
	KeyRecords    = "standardized_records"
	KeyTimeline   = "mapped_timeline"
	KeyNarrative  = "relational_summary"
	KeyConflicts  = "conflict_report"
	KeyReport     = "final_report"
	KeyRunFailure = "run_failure"
)

// ErrMissing is returned by Fetch when a key has never been set.
var ErrMissing = errors.New("key not set")

// TypeError reports a value whose type differs from the one requested.
type TypeError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("key %s holds %s, want %s", e.Key, e.Got, e.Want)
}

type write struct {
	key   string
	value any
}

// Board is the shared context of one pipeline run.
type Board struct {
	log    []write
	latest map[string]int
}

// New returns a board seeded with the given values. Seed keys are written in
// sorted order so the write log is deterministic.
func New(seed map[string]any) *Board {
	b := &Board{latest: make(map[string]int)}
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, seed[k])
	}
	return b
}

// Set records value under key, shadowing any earlier value.
func (b *Board) Set(key string, value any) {
	if b.latest == nil {
		b.latest = make(map[string]int)
	}
	b.log = append(b.log, write{key: key, value: value})
	b.latest[key] = len(b.log) - 1
}

// Get returns the latest value for key, or def when the key is not set.
func (b *Board) Get(key string, def any) any {
	if v, ok := b.lookup(key); ok {
		return v
	}
	return def
}

// Has reports whether key has been set.
func (b *Board) Has(key string) bool {
	_, ok := b.latest[key]
	return ok
}

// Keys returns the set keys in sorted order.
func (b *Board) Keys() []string {
	keys := make([]string, 0, len(b.latest))
	for k := range b.latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Revision returns the number of writes recorded so far. Pass it to
// WrittenSince to find the keys a stage touched.
func (b *Board) Revision() int {
	return len(b.log)
}

// WrittenSince returns the distinct keys written after revision rev, in
// first-write order.
func (b *Board) WrittenSince(rev int) []string {
	if rev < 0 {
		rev = 0
	}
	seen := make(map[string]bool)
	var keys []string
	for _, w := range b.log[min(rev, len(b.log)):] {
		if !seen[w.key] {
			seen[w.key] = true
			keys = append(keys, w.key)
		}
	}
	return keys
}

// Revert discards the writes to keys made after revision rev, so each key
// shows the value it held at rev again, or is unset if it had none.
func (b *Board) Revert(rev int, keys []string) {
	if rev < 0 {
		rev = 0
	}
	if rev >= len(b.log) || len(keys) == 0 {
		return
	}
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	kept := b.log[:rev:rev]
	for _, w := range b.log[rev:] {
		if !drop[w.key] {
			kept = append(kept, w)
		}
	}
	b.log = kept
	b.latest = make(map[string]int, len(b.latest))
	for i, w := range b.log {
		b.latest[w.key] = i
	}
}

// Snapshot returns the latest value of every key.
func (b *Board) Snapshot() map[string]any {
	out := make(map[string]any, len(b.latest))
	for k, i := range b.latest {
		out[k] = b.log[i].value
	}
	return out
}

func (b *Board) lookup(key string) (any, bool) {
	i, ok := b.latest[key]
	if !ok {
		return nil, false
	}
	return b.log[i].value, true
}

// Fetch returns the value under key as a T. It fails with ErrMissing when
// the key is unset, with the stored *Marker when an upstream stage recorded
// a soft error there, and with a *TypeError otherwise.
func Fetch[T any](b *Board, key string) (T, error) {
	var zero T
	v, ok := b.lookup(key)
	if !ok {
		return zero, fmt.Errorf("%s: %w", key, ErrMissing)
	}
	if m, ok := v.(*Marker); ok {
		return zero, m
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeError{Key: key, Want: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", v)}
	}
	return t, nil
}

// MarkerAt returns the marker stored under key, if any.
func (b *Board) MarkerAt(key string) (*Marker, bool) {
	v, ok := b.lookup(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(*Marker)
	return m, ok
}
