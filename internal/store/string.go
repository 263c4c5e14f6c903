package store

import (
	"strconv"
	"time"
)

// Get returns the live string value at key. ok is false if the key is
// absent, expired, or holds a non-string value -- GET never errors on type
// mismatch, unlike the other string operators; a non-string key just reads
// back as null.
func (ks *Keyspace) Get(key string) (val []byte, ok bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.getLocked(key)
}

func (ks *Keyspace) getLocked(key string) ([]byte, bool, error) {
	v, ok := ks.lookupLocked(key)
	if !ok {
		return nil, false, nil
	}
	sv, ok := v.(stringValue)
	if !ok {
		return nil, false, nil
	}
	return sv.data, true, nil
}

func (tx *Tx) Get(key string) ([]byte, bool, error) { return tx.ks.getLocked(key) }

// Set writes key = val. If ttl is non-nil, the key expires ttl after now;
// otherwise any previous expiry is cleared.
func (ks *Keyspace) Set(key string, val []byte, ttl *time.Duration) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.setLocked(key, val, ttl)
}

func (ks *Keyspace) setLocked(key string, val []byte, ttl *time.Duration) {
	ks.values[key] = stringValue{data: val}
	if ttl != nil {
		ks.expiry[key] = time.Now().Add(*ttl)
	} else {
		delete(ks.expiry, key)
	}
}

func (tx *Tx) Set(key string, val []byte, ttl *time.Duration) { tx.ks.setLocked(key, val, ttl) }

// Incr parses the string at key as a signed 64-bit decimal (treating an
// absent key as 0), increments it, writes the result back, and returns the
// new value. Leaves the key unchanged on error.
func (ks *Keyspace) Incr(key string) (int64, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.incrLocked(key)
}

func (ks *Keyspace) incrLocked(key string) (int64, error) {
	v, ok := ks.lookupLocked(key)
	var current int64
	if ok {
		sv, ok := v.(stringValue)
		if !ok {
			return 0, ErrWrongType
		}
		n, err := strconv.ParseInt(string(sv.data), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		current = n
	}

	next := current + 1
	ks.values[key] = stringValue{data: []byte(strconv.FormatInt(next, 10))}
	return next, nil
}

func (tx *Tx) Incr(key string) (int64, error) { return tx.ks.incrLocked(key) }
