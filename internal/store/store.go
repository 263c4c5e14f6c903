// Package store implements the shared, mutex-guarded keyspace: a single
// mapping from key to a typed value (string, list or stream) plus a
// parallel expiry table, with lazy expiration on every read.
package store

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/flonle/diyredis-server/internal/stream"
)

// ValueType identifies what kind of value, if any, lives at a key.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeString
	TypeList
	TypeStream
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeStream:
		return "stream"
	default:
		return "none"
	}
}

var (
	// ErrWrongType is returned whenever a command targets a key holding a
	// value of a different type. Never coerced -- the caller must translate
	// this into the wire-level WRONGTYPE error.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	// ErrNotInteger is returned by Incr when the stored string does not
	// parse as a signed 64-bit decimal.
	ErrNotInteger = errors.New("value is not an integer or out of range")
)

type stringValue struct {
	data   []byte
	expiry time.Time // zero value means "no expiry"
}

// Keyspace is the process-wide shared key/value store. All exported methods
// are atomic with respect to one another; Atomically lets a caller (EXEC)
// compose several operations into one atomic block.
type Keyspace struct {
	mu     sync.Mutex
	values map[string]any // stringValue | *list.List (of []byte) | *stream.Stream
	expiry map[string]time.Time
}

// New returns an empty Keyspace.
func New() *Keyspace {
	return &Keyspace{
		values: make(map[string]any),
		expiry: make(map[string]time.Time),
	}
}

// Tx exposes the same operations as Keyspace but assumes the caller already
// holds the lock (obtained via Keyspace.Atomically). Used by EXEC to run a
// whole queued batch as one linearizable block.
type Tx struct{ ks *Keyspace }

// Ops is the operation surface shared by *Keyspace (each call takes the
// lock itself) and *Tx (each call assumes the lock is already held). The
// command dispatcher is written against Ops so a single dispatch function
// serves both a standalone command and one running inside EXEC.
type Ops interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte, ttl *time.Duration)
	Incr(key string) (int64, error)
	Delete(keys ...string) int
	TypeOf(key string) ValueType
	RPush(key string, values ...[]byte) (int, error)
	LPush(key string, values ...[]byte) (int, error)
	LPop(key string, count *int) ([][]byte, bool, error)
	LRange(key string, start, stop int) ([][]byte, error)
	LLen(key string) (int, error)
	PopFirstReady(keys []string) (string, []byte, error)
	XAdd(key, idSpec string, fields []stream.FieldValue, nowMs uint64) (stream.Key, error)
	XRange(key string, from, to stream.Key) ([]stream.Entry, error)
	StreamLastID(key string) (stream.Key, error)
	StreamEntriesAfter(key string, after stream.Key) ([]stream.Entry, error)
}

var _ Ops = (*Keyspace)(nil)
var _ Ops = (*Tx)(nil)

// Atomically runs fn with the keyspace lock held for its entire duration.
func (ks *Keyspace) Atomically(fn func(tx *Tx)) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	fn(&Tx{ks})
}

// isExpiredLocked deletes key if its expiry deadline has passed and reports
// whether it did so. Must be called with the lock held.
func (ks *Keyspace) isExpiredLocked(key string) bool {
	deadline, ok := ks.expiry[key]
	if !ok {
		return false
	}
	if deadline.After(time.Now()) {
		return false
	}
	delete(ks.expiry, key)
	delete(ks.values, key)
	return true
}

// lookupLocked returns the live value at key, honoring lazy expiration.
func (ks *Keyspace) lookupLocked(key string) (any, bool) {
	if ks.isExpiredLocked(key) {
		return nil, false
	}
	v, ok := ks.values[key]
	return v, ok
}

func typeOfValue(v any) ValueType {
	switch v.(type) {
	case stringValue:
		return TypeString
	case *list.List:
		return TypeList
	case *stream.Stream:
		return TypeStream
	default:
		return TypeNone
	}
}

// TypeOf reports the type of the live value at key, or TypeNone.
func (ks *Keyspace) TypeOf(key string) ValueType {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.typeOfLocked(key)
}

func (ks *Keyspace) typeOfLocked(key string) ValueType {
	v, ok := ks.lookupLocked(key)
	if !ok {
		return TypeNone
	}
	return typeOfValue(v)
}

func (tx *Tx) TypeOf(key string) ValueType { return tx.ks.typeOfLocked(key) }

// Delete removes every key in keys that is currently present (honoring lazy
// expiration) and returns how many were actually removed. Atomic across the
// whole key set.
func (ks *Keyspace) Delete(keys ...string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.deleteLocked(keys...)
}

func (ks *Keyspace) deleteLocked(keys ...string) int {
	n := 0
	for _, key := range keys {
		ks.isExpiredLocked(key)
		if _, ok := ks.values[key]; ok {
			delete(ks.values, key)
			delete(ks.expiry, key)
			n++
		}
	}
	return n
}

func (tx *Tx) Delete(keys ...string) int { return tx.ks.deleteLocked(keys...) }
