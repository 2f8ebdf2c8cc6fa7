package engine

import (
	"container/list"
	"fmt"

	"LottoLedger/internal/event"
)

// Deduper provides two-tier deduplication for remote requests: an in-memory
// LRU for the hot path backed by a database lookup for keys that fell out of
// the cache.
type Deduper struct {
	lru       *dedupLRU
	dbChecker DBDedupChecker

	lruHits int64
	dbHits  int64
	dbErrs  int64
}

// DBDedupChecker is the database-backed lookup for the cold path.
type DBDedupChecker interface {
	Seen(kind event.Kind, idempotencyKey string) (bool, error)
}

func NewDeduper(capacity int, dbChecker DBDedupChecker) *Deduper {
	return &Deduper{
		lru:       newDedupLRU(capacity),
		dbChecker: dbChecker,
	}
}

func dedupKey(kind event.Kind, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", kind, idempotencyKey)
}

// IsDuplicate reports whether a request with this key was already applied.
// A database error on the cold path fails the check rather than guessing
// either way: applying anyway could re-apply a key that fell out of the LRU,
// and absorbing would silently drop a live request. The caller surfaces the
// error so the transport redelivers once the database recovers.
func (d *Deduper) IsDuplicate(kind event.Kind, idempotencyKey string) (bool, error) {
	key := dedupKey(kind, idempotencyKey)

	if d.lru.contains(key) {
		d.lruHits++
		return true, nil
	}

	if d.dbChecker != nil {
		seen, err := d.dbChecker.Seen(kind, idempotencyKey)
		if err != nil {
			d.dbErrs++
			return false, fmt.Errorf("dedup lookup for %s: %w", key, err)
		}
		if seen {
			d.dbHits++
			d.lru.add(key)
			return true, nil
		}
	}

	return false, nil
}

// IsDuplicateLocal checks only the in-memory tier. Used during event-log
// replay, where every replayed key is present in the database by definition.
func (d *Deduper) IsDuplicateLocal(kind event.Kind, idempotencyKey string) bool {
	if d.lru.contains(dedupKey(kind, idempotencyKey)) {
		d.lruHits++
		return true
	}
	return false
}

// MarkApplied records the key after the request has been fully applied.
func (d *Deduper) MarkApplied(kind event.Kind, idempotencyKey string) {
	d.lru.add(dedupKey(kind, idempotencyKey))
}

// Warm preloads composite keys, typically the most recent rows from the
// event log on restart.
func (d *Deduper) Warm(keys []string) {
	for _, key := range keys {
		d.lru.add(key)
	}
}

// Keys returns every cached composite key, for snapshotting.
func (d *Deduper) Keys() []string {
	return d.lru.keys()
}

func (d *Deduper) Stats() (lruHits, dbHits, dbErrs int64) {
	return d.lruHits, d.dbHits, d.dbErrs
}

// dedupLRU is not thread-safe; it is only touched under the engine's write
// lock.
type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *dedupLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

func (l *dedupLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.cache[key] = l.order.PushFront(key)
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
	}
}

func (l *dedupLRU) keys() []string {
	out := make([]string, 0, l.order.Len())
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(string))
	}
	return out
}
