// Package blocking implements the waiter registries behind BLPOP and
// XREAD BLOCK: a client that finds nothing ready registers a channel under
// every key it is watching, and the command that made new data available
// wakes the oldest interested waiter, FIFO, trying its keys in the order it
// originally gave them.
package blocking

import (
	"sync"
	"time"

	"github.com/flonle/diyredis-server/internal/store"
	"github.com/flonle/diyredis-server/internal/stream"
)

// Coordinator owns the waiter registries for one Keyspace. The keyspace
// itself is not exported here; callers pass the same *store.Keyspace this
// Coordinator was built with, since waking a waiter means touching the
// keyspace under its own lock.
type Coordinator struct {
	ks *store.Keyspace

	mu            sync.Mutex
	listWaiters   map[string][]*listWaiter
	streamWaiters map[string][]*streamWaiter
}

func New(ks *store.Keyspace) *Coordinator {
	return &Coordinator{
		ks:            ks,
		listWaiters:   make(map[string][]*listWaiter),
		streamWaiters: make(map[string][]*streamWaiter),
	}
}

type listWaiter struct {
	keys     []string
	response chan listResult
	done     bool // guarded by Coordinator.mu
}

type listResult struct {
	key string
	val []byte
}

// BLPopResult is returned by BLPop.
type BLPopResult struct {
	Key string
	Val []byte
}

// BLPop tries every key in order for an immediately available element; if
// none is ready it blocks until NotifyListWrite wakes it or timeout elapses.
// A timeout of 0 means block forever. ok is false only on timeout.
func (c *Coordinator) BLPop(keys []string, timeout time.Duration) (result BLPopResult, ok bool) {
	if key, val, err := c.ks.PopFirstReady(keys); err == nil && key != "" {
		return BLPopResult{Key: key, Val: val}, true
	}

	w := &listWaiter{keys: keys, response: make(chan listResult, 1)}
	c.mu.Lock()
	for _, k := range keys {
		c.listWaiters[k] = append(c.listWaiters[k], w)
	}
	c.mu.Unlock()

	var after <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		after = timer.C
	}

	select {
	case res := <-w.response:
		return BLPopResult{Key: res.key, Val: res.val}, true
	case <-after:
		c.removeListWaiter(w)
		return BLPopResult{}, false
	}
}

// NotifyListWrite must be called after a successful RPUSH/LPUSH commits,
// outside the keyspace lock that protected the push itself. It keeps waking
// the oldest waiter registered against key, re-running its whole key list
// through PopFirstReady so the waiter's original priority order is
// respected, for as long as a waiter remains and data is still there for it
// -- a single RPUSH of several values can and should wake several waiters.
func (c *Coordinator) NotifyListWrite(key string) {
	for {
		c.mu.Lock()
		waiters := c.listWaiters[key]
		if len(waiters) == 0 {
			c.mu.Unlock()
			return
		}
		w := waiters[0]
		k, val, err := c.ks.PopFirstReady(w.keys)
		if err != nil || k == "" {
			c.mu.Unlock()
			return
		}
		c.unregisterListWaiterLocked(w)
		c.mu.Unlock()

		select {
		case w.response <- listResult{key: k, val: val}:
		default:
		}
	}
}

func (c *Coordinator) removeListWaiter(w *listWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unregisterListWaiterLocked(w)
}

func (c *Coordinator) unregisterListWaiterLocked(w *listWaiter) {
	if w.done {
		return
	}
	w.done = true
	for _, k := range w.keys {
		list := c.listWaiters[k]
		for i, other := range list {
			if other == w {
				c.listWaiters[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(c.listWaiters[k]) == 0 {
			delete(c.listWaiters, k)
		}
	}
}

type streamWaiter struct {
	keys     []string
	after    map[string]stream.Key
	response chan StreamReadResult
	done     bool
}

// StreamReadResult is one key's worth of newly available entries, as
// delivered to a blocked XREAD.
type StreamReadResult struct {
	Key     string
	Entries []stream.Entry
}

// XReadBlock waits for at least one entry after the given per-key cursor on
// any of keys. after must already be resolved to a concrete ID (XREAD's "$"
// is resolved by the caller via Keyspace.StreamLastID before calling this,
// so a concurrent write between resolution and registration can't be
// missed). A timeout of 0 blocks forever.
func (c *Coordinator) XReadBlock(keys []string, after map[string]stream.Key, timeout time.Duration) ([]StreamReadResult, bool) {
	c.mu.Lock()
	if results := c.collectStreamReady(keys, after); len(results) > 0 {
		c.mu.Unlock()
		return results, true
	}

	w := &streamWaiter{keys: keys, after: after, response: make(chan StreamReadResult, len(keys))}
	for _, k := range keys {
		c.streamWaiters[k] = append(c.streamWaiters[k], w)
	}
	c.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case first := <-w.response:
		c.removeStreamWaiter(w)
		out := []StreamReadResult{first}
		drain := true
		for drain {
			select {
			case next := <-w.response:
				out = append(out, next)
			default:
				drain = false
			}
		}
		return out, true
	case <-timer:
		c.removeStreamWaiter(w)
		return nil, false
	}
}

func (c *Coordinator) collectStreamReady(keys []string, after map[string]stream.Key) []StreamReadResult {
	var out []StreamReadResult
	for _, k := range keys {
		entries, err := c.ks.StreamEntriesAfter(k, after[k])
		if err != nil || len(entries) == 0 {
			continue
		}
		out = append(out, StreamReadResult{Key: k, Entries: entries})
	}
	return out
}

// NotifyStreamWrite must be called after a successful XADD commits. It
// wakes every waiter registered against key in FIFO order, delivering the
// entries newer than each waiter's own cursor for that key.
func (c *Coordinator) NotifyStreamWrite(key string) {
	c.mu.Lock()
	waiters := append([]*streamWaiter(nil), c.streamWaiters[key]...)
	c.mu.Unlock()

	for _, w := range waiters {
		entries, err := c.ks.StreamEntriesAfter(key, w.after[key])
		if err != nil || len(entries) == 0 {
			continue
		}
		select {
		case w.response <- StreamReadResult{Key: key, Entries: entries}:
		default:
		}
	}
}

func (c *Coordinator) removeStreamWaiter(w *streamWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	for _, k := range w.keys {
		list := c.streamWaiters[k]
		for i, other := range list {
			if other == w {
				c.streamWaiters[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(c.streamWaiters[k]) == 0 {
			delete(c.streamWaiters, k)
		}
	}
}
