package store

import "github.com/flonle/diyredis-server/internal/stream"

func (ks *Keyspace) streamAtLocked(key string) (*stream.Stream, error) {
	v, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	s, ok := v.(*stream.Stream)
	if !ok {
		return nil, ErrWrongType
	}
	return s, nil
}

func (ks *Keyspace) streamOrCreateLocked(key string) (*stream.Stream, error) {
	s, err := ks.streamAtLocked(key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &stream.Stream{}
		ks.values[key] = s
	}
	return s, nil
}

// XAdd resolves idSpec against the stream's current top ID (generating one
// for "*" / "<ms>-*" forms using nowMs as the wall clock), appends the entry
// on success, and returns the final ID. On any error the stream is left
// unchanged; note that per Redis's own semantics, XADD on a previously
// absent key that then fails ID validation still leaves behind an empty
// stream, because the key is created before the ID is validated.
func (ks *Keyspace) XAdd(key, idSpec string, fields []stream.FieldValue, nowMs uint64) (stream.Key, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.xaddLocked(key, idSpec, fields, nowMs)
}

func (ks *Keyspace) xaddLocked(key, idSpec string, fields []stream.FieldValue, nowMs uint64) (stream.Key, error) {
	s, err := ks.streamOrCreateLocked(key)
	if err != nil {
		return stream.Key{}, err
	}
	id, err := stream.GenerateID(idSpec, s.Last, nowMs)
	if err != nil {
		return stream.Key{}, err
	}
	s.Append(id, fields)
	return id, nil
}

func (tx *Tx) XAdd(key, idSpec string, fields []stream.FieldValue, nowMs uint64) (stream.Key, error) {
	return tx.ks.xaddLocked(key, idSpec, fields, nowMs)
}

// XRange returns the entries of the stream at key within [from, to]
// inclusive, empty (never an error) for an absent key.
func (ks *Keyspace) XRange(key string, from, to stream.Key) ([]stream.Entry, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.xrangeLocked(key, from, to)
}

func (ks *Keyspace) xrangeLocked(key string, from, to stream.Key) ([]stream.Entry, error) {
	s, err := ks.streamAtLocked(key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	return s.Range(from, to), nil
}

func (tx *Tx) XRange(key string, from, to stream.Key) ([]stream.Entry, error) {
	return tx.ks.xrangeLocked(key, from, to)
}

func (tx *Tx) StreamLastID(key string) (stream.Key, error) {
	s, err := tx.ks.streamAtLocked(key)
	if err != nil {
		return stream.Key{}, err
	}
	if s == nil {
		return stream.MinKey, nil
	}
	return s.Last, nil
}

func (tx *Tx) StreamEntriesAfter(key string, after stream.Key) ([]stream.Entry, error) {
	return tx.ks.streamEntriesAfterLocked(key, after)
}

// StreamLastID returns the current top ID of the stream at key, or MinKey
// if the key is absent -- the correct basis for resolving XREAD's "$".
func (ks *Keyspace) StreamLastID(key string) (stream.Key, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	s, err := ks.streamAtLocked(key)
	if err != nil {
		return stream.Key{}, err
	}
	if s == nil {
		return stream.MinKey, nil
	}
	return s.Last, nil
}

// StreamEntriesAfter returns every entry with ID strictly greater than
// after, empty (never an error) for an absent key.
func (ks *Keyspace) StreamEntriesAfter(key string, after stream.Key) ([]stream.Entry, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.streamEntriesAfterLocked(key, after)
}

func (ks *Keyspace) streamEntriesAfterLocked(key string, after stream.Key) ([]stream.Entry, error) {
	s, err := ks.streamAtLocked(key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	all := s.Range(after, stream.MaxKey)
	out := all[:0:0]
	for _, e := range all {
		if e.ID.Greater(after) {
			out = append(out, e)
		}
	}
	return out, nil
}
