package server

import (
	"errors"
	"io"
	"log"
	"net"

	"github.com/flonle/diyredis-server/internal/resp"
	"github.com/flonle/diyredis-server/internal/store"
	"github.com/flonle/diyredis-server/internal/txn"
)

// Session is one connection's worth of state: its socket, its transaction
// buffer, and a scratch read buffer for the incremental decoder.
type Session struct {
	server *Server
	conn   net.Conn
	log    *log.Logger

	txn txn.Buffer
	buf []byte
	dec resp.Decoder
	enc resp.Encoder
}

// HandleCommands reads frames off the connection until EOF or a protocol
// error, dispatching each to a command handler. Mirrors the teacher's
// HandleCommands loop, generalized from a single switch to the command
// table in commands.go, and with transaction queuing spliced in.
func (s *Session) HandleCommands() {
	readBuf := make([]byte, 4096)
	for {
		frame, ok, err := s.nextFrame(readBuf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Println("protocol error:", err)
			}
			return
		}
		if !ok {
			continue // "*0\r\n" -- empty array is a no-op
		}
		if len(frame) == 0 {
			continue
		}

		s.enc.Reset()
		s.dispatchTop(frame)
		if len(s.enc.Buf) > 0 {
			if _, err := s.conn.Write(s.enc.Buf); err != nil {
				return
			}
		}
	}
}

// nextFrame returns the next decoded command, reading more bytes from the
// connection as needed. ok is false only for a successfully decoded but
// empty ("*0\r\n") frame.
func (s *Session) nextFrame(readBuf []byte) ([]string, bool, error) {
	for {
		frame, consumed, err := s.dec.Decode(s.buf)
		if err != nil {
			return nil, false, err
		}
		if consumed > 0 || frame != nil {
			s.buf = s.buf[consumed:]
			return frame, len(frame) > 0, nil
		}

		n, err := s.conn.Read(readBuf)
		if n > 0 {
			s.buf = append(s.buf, readBuf[:n]...)
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// dispatchTop handles transaction queuing around the shared dispatch
// table: MULTI/EXEC/DISCARD always execute immediately; every other
// command is queued verbatim while a MULTI is open.
func (s *Session) dispatchTop(cmd []string) {
	name := upperFirst(cmd[0])

	if s.txn.InMulti() {
		switch name {
		case "MULTI":
			s.enc.WriteError("ERR MULTI calls can not be nested")
			return
		case "EXEC":
			s.doExec()
			return
		case "DISCARD":
			s.txn.Discard()
			s.enc.WriteSimpleString("OK")
			return
		default:
			if err := s.txn.Enqueue(cmd); err != nil {
				s.enc.WriteError(err.Error())
				return
			}
			s.enc.WriteSimpleString("QUEUED")
			return
		}
	}

	switch name {
	case "MULTI":
		s.txn.Begin()
		s.enc.WriteSimpleString("OK")
	case "EXEC":
		s.enc.WriteError("ERR EXEC without MULTI")
	case "DISCARD":
		s.enc.WriteError("ERR DISCARD without MULTI")
	default:
		dispatch(dispatchArgs{
			ops:           s.server.KS,
			coord:         s.server.Coord,
			blockingOK:    true,
			cmd:           cmd,
			enc:           &s.enc,
			log:           s.log,
			onListWrite:   s.server.Coord.NotifyListWrite,
			onStreamWrite: s.server.Coord.NotifyStreamWrite,
			rdbDir:        s.server.RdbDir,
			rdbFilename:   s.server.RdbFilename,
		})
	}
}

// doExec runs the whole queued batch under one Keyspace.Atomically call, so
// it appears as a single linearizable step to every other connection.
// Blocking commands never suspend here: they fall back to their immediate,
// non-blocking attempt, matching real Redis's MULTI/EXEC behavior.
// Notifications for writes made during the batch are deferred until after
// the lock is released, since the coordinator locks the same keyspace.
func (s *Session) doExec() {
	queued, err := s.txn.Drain()
	if err != nil {
		s.enc.WriteError(err.Error())
		return
	}

	replies := make([][]byte, len(queued))
	var listKeys, streamKeys []string

	s.server.KS.Atomically(func(tx *store.Tx) {
		for i, cmd := range queued {
			var sub resp.Encoder
			dispatch(dispatchArgs{
				ops:        tx,
				coord:      s.server.Coord,
				blockingOK: false,
				cmd:        cmd,
				enc:        &sub,
				log:        s.log,
				onListWrite: func(k string) {
					listKeys = append(listKeys, k)
				},
				onStreamWrite: func(k string) {
					streamKeys = append(streamKeys, k)
				},
				rdbDir:      s.server.RdbDir,
				rdbFilename: s.server.RdbFilename,
			})
			replies[i] = sub.Buf
		}
	})

	for _, k := range listKeys {
		s.server.Coord.NotifyListWrite(k)
	}
	for _, k := range streamKeys {
		s.server.Coord.NotifyStreamWrite(k)
	}

	s.enc.WriteArrayHeader(len(replies))
	for _, r := range replies {
		s.enc.Buf = append(s.enc.Buf, r...)
	}
}

func upperFirst(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
