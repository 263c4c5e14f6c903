package store

import "container/list"

// listAtLocked returns the *list.List stored at key, or nil if absent. Returns
// ErrWrongType if key holds a non-list value.
func (ks *Keyspace) listAtLocked(key string) (*list.List, error) {
	v, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	l, ok := v.(*list.List)
	if !ok {
		return nil, ErrWrongType
	}
	return l, nil
}

func (ks *Keyspace) listOrCreateLocked(key string) (*list.List, error) {
	l, err := ks.listAtLocked(key)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = list.New()
		ks.values[key] = l
	}
	return l, nil
}

// RPush appends values, left to right, to the tail of the list at key,
// creating the list if absent. Returns the new length.
func (ks *Keyspace) RPush(key string, values ...[]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.rpushLocked(key, values...)
}

func (ks *Keyspace) rpushLocked(key string, values ...[]byte) (int, error) {
	l, err := ks.listOrCreateLocked(key)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		l.PushBack(v)
	}
	return l.Len(), nil
}

func (tx *Tx) RPush(key string, values ...[]byte) (int, error) {
	return tx.ks.rpushLocked(key, values...)
}

// LPush prepends values, in argument order, to the head of the list at key
// -- so the last argument ends up as the new head -- creating the list if
// absent. Returns the new length.
func (ks *Keyspace) LPush(key string, values ...[]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.lpushLocked(key, values...)
}

func (ks *Keyspace) lpushLocked(key string, values ...[]byte) (int, error) {
	l, err := ks.listOrCreateLocked(key)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		l.PushFront(v)
	}
	return l.Len(), nil
}

func (tx *Tx) LPush(key string, values ...[]byte) (int, error) {
	return tx.ks.lpushLocked(key, values...)
}

// LPop removes up to count elements from the head of the list at key. When
// count is nil, pops a single element and returns (val, true) or
// (nil, false) if the list is empty or absent. When count is non-nil,
// always returns a (possibly empty) slice, even for count == 1.
func (ks *Keyspace) LPop(key string, count *int) (popped [][]byte, singleOK bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.lpopLocked(key, count)
}

func (ks *Keyspace) lpopLocked(key string, count *int) ([][]byte, bool, error) {
	l, err := ks.listAtLocked(key)
	if err != nil {
		return nil, false, err
	}
	if l == nil || l.Len() == 0 {
		if count == nil {
			return nil, false, nil
		}
		return [][]byte{}, false, nil
	}

	n := 1
	if count != nil {
		n = *count
	}
	if n < 0 {
		n = 0
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n && l.Len() > 0; i++ {
		front := l.Front()
		out = append(out, front.Value.([]byte))
		l.Remove(front)
	}

	if count == nil {
		if len(out) == 0 {
			return nil, false, nil
		}
		return out[:1], true, nil
	}
	return out, false, nil
}

func (tx *Tx) LPop(key string, count *int) ([][]byte, bool, error) {
	return tx.ks.lpopLocked(key, count)
}

// LRange returns the inclusive [start, stop] slice of the list at key,
// negative indices counting from the end. Returns an empty slice (never an
// error) for an absent key, and ErrWrongType for a non-list key.
func (ks *Keyspace) LRange(key string, start, stop int) ([][]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.lrangeLocked(key, start, stop)
}

func (ks *Keyspace) lrangeLocked(key string, start, stop int) ([][]byte, error) {
	l, err := ks.listAtLocked(key)
	if err != nil {
		return nil, err
	}
	if l == nil || l.Len() == 0 {
		return [][]byte{}, nil
	}

	length := l.Len()
	start = clampIndex(start, length)
	stop = clampIndex(stop, length)
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0, stop-start+1)
	e := l.Front()
	for i := 0; i < start; i++ {
		e = e.Next()
	}
	for i := start; i <= stop; i++ {
		out = append(out, e.Value.([]byte))
		e = e.Next()
	}
	return out, nil
}

func (tx *Tx) LRange(key string, start, stop int) ([][]byte, error) {
	return tx.ks.lrangeLocked(key, start, stop)
}

func clampIndex(idx, length int) int {
	if idx < 0 {
		idx += length
	}
	return idx
}

// LLen returns the length of the list at key, 0 if absent.
func (ks *Keyspace) LLen(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.llenLocked(key)
}

func (ks *Keyspace) llenLocked(key string) (int, error) {
	l, err := ks.listAtLocked(key)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return 0, nil
	}
	return l.Len(), nil
}

func (tx *Tx) LLen(key string) (int, error) { return tx.ks.llenLocked(key) }

// PopFirstReady tries each key in order and pops the head of the first one
// holding a non-empty list, atomically across the whole key set. Used both
// by BLPOP's immediate (non-blocking) attempt and by the blocking
// coordinator when waking a waiter after a write.
func (ks *Keyspace) PopFirstReady(keys []string) (key string, val []byte, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.popFirstReadyLocked(keys)
}

func (ks *Keyspace) popFirstReadyLocked(keys []string) (string, []byte, error) {
	for _, k := range keys {
		out, ok, err := ks.lpopLocked(k, nil)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return k, out[0], nil
		}
	}
	return "", nil, nil
}

func (tx *Tx) PopFirstReady(keys []string) (string, []byte, error) {
	return tx.ks.popFirstReadyLocked(keys)
}
