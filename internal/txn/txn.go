// Package txn implements the per-connection MULTI/EXEC/DISCARD command
// buffer: once MULTI opens it, subsequent commands are queued rather than
// executed, until EXEC drains the queue or DISCARD throws it away.
package txn

import "errors"

// ErrNotInMulti is returned by Enqueue, Drain and Discard when no MULTI is
// open on the connection.
var ErrNotInMulti = errors.New("ERR EXEC without MULTI")

// Buffer holds the queued command frames for one connection's in-flight
// transaction.
type Buffer struct {
	inMulti bool
	queued  [][]string
}

// InMulti reports whether a MULTI is currently open.
func (b *Buffer) InMulti() bool { return b.inMulti }

// Begin opens a MULTI block. Returns false if one is already open.
func (b *Buffer) Begin() bool {
	if b.inMulti {
		return false
	}
	b.inMulti = true
	b.queued = nil
	return true
}

// Enqueue appends cmd to the queue. Must only be called while InMulti.
func (b *Buffer) Enqueue(cmd []string) error {
	if !b.inMulti {
		return ErrNotInMulti
	}
	b.queued = append(b.queued, cmd)
	return nil
}

// Drain closes the MULTI block and returns the queued commands in order.
func (b *Buffer) Drain() ([][]string, error) {
	if !b.inMulti {
		return nil, ErrNotInMulti
	}
	cmds := b.queued
	b.inMulti = false
	b.queued = nil
	return cmds, nil
}

// Discard closes the MULTI block, throwing away anything queued.
func (b *Buffer) Discard() error {
	if !b.inMulti {
		return ErrNotInMulti
	}
	b.inMulti = false
	b.queued = nil
	return nil
}
