package server

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/flonle/diyredis-server/internal/blocking"
	"github.com/flonle/diyredis-server/internal/resp"
	"github.com/flonle/diyredis-server/internal/store"
	"github.com/flonle/diyredis-server/internal/stream"
)

// dispatchArgs bundles everything a command handler needs. Built once per
// invocation so both the top-level request loop and EXEC's batch runner
// can share the same dispatch function -- the only difference between
// them is which store.Ops implementation they pass and whether blocking
// commands are allowed to actually suspend.
type dispatchArgs struct {
	ops        store.Ops
	coord      *blocking.Coordinator
	blockingOK bool
	cmd        []string
	enc        *resp.Encoder
	log        *log.Logger

	// onListWrite/onStreamWrite fire after a successful RPUSH/LPUSH/XADD.
	// At the top level they notify the coordinator immediately; inside
	// EXEC they just record the key so the session can notify once the
	// whole batch has released the keyspace lock.
	onListWrite   func(key string)
	onStreamWrite func(key string)

	rdbDir      string
	rdbFilename string
}

type cmdFunc func(a dispatchArgs)

var commandTable = map[string]cmdFunc{
	"PING":   cmdPing,
	"ECHO":   cmdEcho,
	"SET":    cmdSet,
	"GET":    cmdGet,
	"INCR":   cmdIncr,
	"DEL":    cmdDel,
	"TYPE":   cmdType,
	"RPUSH":  cmdRPush,
	"LPUSH":  cmdLPush,
	"LPOP":   cmdLPop,
	"LRANGE": cmdLRange,
	"LLEN":   cmdLLen,
	"BLPOP":  cmdBLPop,
	"XADD":   cmdXAdd,
	"XRANGE": cmdXRange,
	"XREAD":  cmdXRead,
	"CONFIG": cmdConfig,
}

func dispatch(a dispatchArgs) {
	name := upperFirst(a.cmd[0])
	fn, ok := commandTable[name]
	if !ok {
		a.enc.WriteError("ERR unknown command '" + a.cmd[0] + "'")
		return
	}
	fn(a)
}

func arityErr(enc *resp.Encoder, name string) {
	enc.WriteError("ERR wrong number of arguments for '" + name + "' command")
}

// writeOpError translates a store/stream sentinel error into its wire form.
// WRONGTYPE already carries its own prefix; everything else gets "ERR ".
func writeOpError(enc *resp.Encoder, err error) {
	msg := err.Error()
	if errors.Is(err, store.ErrWrongType) {
		enc.WriteError(msg)
		return
	}
	enc.WriteError("ERR " + msg)
}

func cmdPing(a dispatchArgs) {
	if len(a.cmd) > 1 {
		a.enc.WriteBulkString(a.cmd[1])
		return
	}
	a.enc.WriteSimpleString("PONG")
}

func cmdEcho(a dispatchArgs) {
	if len(a.cmd) != 2 {
		arityErr(a.enc, "echo")
		return
	}
	a.enc.WriteBulkString(a.cmd[1])
}

func cmdSet(a dispatchArgs) {
	if len(a.cmd) < 3 {
		arityErr(a.enc, "set")
		return
	}
	var ttl *time.Duration
	if len(a.cmd) >= 5 && upperFirst(a.cmd[3]) == "PX" {
		ms, err := strconv.ParseInt(a.cmd[4], 10, 64)
		if err != nil {
			a.enc.WriteError("ERR PX value is not an integer or out of range")
			return
		}
		d := time.Duration(ms) * time.Millisecond
		ttl = &d
	}
	a.ops.Set(a.cmd[1], []byte(a.cmd[2]), ttl)
	a.enc.WriteSimpleString("OK")
}

func cmdGet(a dispatchArgs) {
	if len(a.cmd) != 2 {
		arityErr(a.enc, "get")
		return
	}
	val, ok, err := a.ops.Get(a.cmd[1])
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	if !ok {
		a.enc.WriteNullBulkString()
		return
	}
	a.enc.WriteBulkBytes(val)
}

func cmdIncr(a dispatchArgs) {
	if len(a.cmd) != 2 {
		arityErr(a.enc, "incr")
		return
	}
	n, err := a.ops.Incr(a.cmd[1])
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	a.enc.WriteInteger(n)
}

func cmdDel(a dispatchArgs) {
	if len(a.cmd) < 2 {
		arityErr(a.enc, "del")
		return
	}
	n := a.ops.Delete(a.cmd[1:]...)
	a.enc.WriteInteger(int64(n))
}

func cmdType(a dispatchArgs) {
	if len(a.cmd) != 2 {
		arityErr(a.enc, "type")
		return
	}
	a.enc.WriteSimpleString(a.ops.TypeOf(a.cmd[1]).String())
}

func cmdRPush(a dispatchArgs) {
	if len(a.cmd) < 3 {
		arityErr(a.enc, "rpush")
		return
	}
	n, err := a.ops.RPush(a.cmd[1], strsToBytes(a.cmd[2:])...)
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	a.enc.WriteInteger(int64(n))
	a.onListWrite(a.cmd[1])
}

func cmdLPush(a dispatchArgs) {
	if len(a.cmd) < 3 {
		arityErr(a.enc, "lpush")
		return
	}
	n, err := a.ops.LPush(a.cmd[1], strsToBytes(a.cmd[2:])...)
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	a.enc.WriteInteger(int64(n))
	a.onListWrite(a.cmd[1])
}

func cmdLPop(a dispatchArgs) {
	if len(a.cmd) < 2 || len(a.cmd) > 3 {
		arityErr(a.enc, "lpop")
		return
	}
	var count *int
	if len(a.cmd) == 3 {
		n, err := strconv.Atoi(a.cmd[2])
		if err != nil {
			a.enc.WriteError("ERR value is not an integer or out of range")
			return
		}
		count = &n
	}
	out, single, err := a.ops.LPop(a.cmd[1], count)
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	if count == nil {
		if !single {
			a.enc.WriteNullBulkString()
			return
		}
		a.enc.WriteBulkBytes(out[0])
		return
	}
	a.enc.WriteArrayHeader(len(out))
	for _, v := range out {
		a.enc.WriteBulkBytes(v)
	}
}

func cmdLRange(a dispatchArgs) {
	if len(a.cmd) != 4 {
		arityErr(a.enc, "lrange")
		return
	}
	start, err1 := strconv.Atoi(a.cmd[2])
	stop, err2 := strconv.Atoi(a.cmd[3])
	if err1 != nil || err2 != nil {
		a.enc.WriteError("ERR value is not an integer or out of range")
		return
	}
	out, err := a.ops.LRange(a.cmd[1], start, stop)
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	a.enc.WriteArrayHeader(len(out))
	for _, v := range out {
		a.enc.WriteBulkBytes(v)
	}
}

func cmdLLen(a dispatchArgs) {
	if len(a.cmd) != 2 {
		arityErr(a.enc, "llen")
		return
	}
	n, err := a.ops.LLen(a.cmd[1])
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	a.enc.WriteInteger(int64(n))
}

func cmdBLPop(a dispatchArgs) {
	if len(a.cmd) < 3 {
		arityErr(a.enc, "blpop")
		return
	}
	keys := a.cmd[1 : len(a.cmd)-1]
	timeoutSecs, err := strconv.ParseFloat(a.cmd[len(a.cmd)-1], 64)
	if err != nil || timeoutSecs < 0 {
		a.enc.WriteError("ERR timeout is not a float or out of range")
		return
	}

	if key, val, err := a.ops.PopFirstReady(keys); err == nil && key != "" {
		a.enc.WriteArrayHeader(2)
		a.enc.WriteBulkString(key)
		a.enc.WriteBulkBytes(val)
		return
	}

	if !a.blockingOK {
		a.enc.WriteNullArray()
		return
	}

	res, ok := a.coord.BLPop(keys, time.Duration(timeoutSecs*float64(time.Second)))
	if !ok {
		a.enc.WriteNullArray()
		return
	}
	a.enc.WriteArrayHeader(2)
	a.enc.WriteBulkString(res.Key)
	a.enc.WriteBulkBytes(res.Val)
}

func cmdXAdd(a dispatchArgs) {
	if len(a.cmd) < 5 || len(a.cmd)%2 != 1 {
		arityErr(a.enc, "xadd")
		return
	}
	fields := make([]stream.FieldValue, 0, (len(a.cmd)-3)/2)
	for i := 3; i < len(a.cmd); i += 2 {
		fields = append(fields, stream.FieldValue{Field: a.cmd[i], Value: a.cmd[i+1]})
	}
	id, err := a.ops.XAdd(a.cmd[1], a.cmd[2], fields, uint64(time.Now().UnixMilli()))
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	a.enc.WriteBulkString(id.String())
	a.onStreamWrite(a.cmd[1])
}

func cmdXRange(a dispatchArgs) {
	if len(a.cmd) != 4 {
		arityErr(a.enc, "xrange")
		return
	}
	from, err := stream.ParseRangeBound(a.cmd[2], false)
	if err != nil {
		a.enc.WriteError("ERR Bad \"from\" key")
		return
	}
	to, err := stream.ParseRangeBound(a.cmd[3], true)
	if err != nil {
		a.enc.WriteError("ERR Bad \"to\" key")
		return
	}
	entries, err := a.ops.XRange(a.cmd[1], from, to)
	if err != nil {
		writeOpError(a.enc, err)
		return
	}
	writeStreamEntries(a.enc, entries)
}

func writeStreamEntries(enc *resp.Encoder, entries []stream.Entry) {
	enc.WriteArrayHeader(len(entries))
	for _, e := range entries {
		enc.WriteArrayHeader(2)
		enc.WriteBulkString(e.ID.String())
		enc.WriteArrayHeader(len(e.Fields) * 2)
		for _, fv := range e.Fields {
			enc.WriteBulkString(fv.Field)
			enc.WriteBulkString(fv.Value)
		}
	}
}

// cmdXRead implements XREAD [BLOCK ms] STREAMS key... id.... The "STREAMS"
// keyword splits the key list from the id list, each half the same length.
func cmdXRead(a dispatchArgs) {
	cmd := a.cmd
	idx := 1
	var blockMs int64 = -1
	for idx < len(cmd) {
		switch upperFirst(cmd[idx]) {
		case "BLOCK":
			if idx+1 >= len(cmd) {
				arityErr(a.enc, "xread")
				return
			}
			ms, err := strconv.ParseInt(cmd[idx+1], 10, 64)
			if err != nil || ms < 0 {
				a.enc.WriteError("ERR timeout is not an integer or out of range")
				return
			}
			blockMs = ms
			idx += 2
		case "STREAMS":
			idx++
			goto parsedOptions
		default:
			a.enc.WriteError("ERR syntax error")
			return
		}
	}
parsedOptions:
	rest := cmd[idx:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		a.enc.WriteError("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
		return
	}
	n := len(rest) / 2
	keys := rest[:n]
	after := make(map[string]stream.Key, n)
	for i, k := range keys {
		idSpec := rest[n+i]
		if idSpec == "$" {
			last, err := a.ops.StreamLastID(k)
			if err != nil {
				writeOpError(a.enc, err)
				return
			}
			after[k] = last
			continue
		}
		id, err := stream.ParseRangeBound(idSpec, false)
		if err != nil {
			a.enc.WriteError("ERR Invalid stream ID specified as stream command argument")
			return
		}
		after[k] = id
	}

	type keyEntries struct {
		key     string
		entries []stream.Entry
	}
	var results []keyEntries
	for _, k := range keys {
		entries, err := a.ops.StreamEntriesAfter(k, after[k])
		if err != nil {
			writeOpError(a.enc, err)
			return
		}
		if len(entries) > 0 {
			results = append(results, keyEntries{k, entries})
		}
	}

	if len(results) == 0 && blockMs >= 0 && a.blockingOK {
		woken, ok := a.coord.XReadBlock(keys, after, time.Duration(blockMs)*time.Millisecond)
		if !ok {
			a.enc.WriteNullArray()
			return
		}
		for _, r := range woken {
			results = append(results, keyEntries{r.Key, r.Entries})
		}
	}

	if len(results) == 0 {
		a.enc.WriteNullArray()
		return
	}
	a.enc.WriteArrayHeader(len(results))
	for _, r := range results {
		a.enc.WriteArrayHeader(2)
		a.enc.WriteBulkString(r.key)
		writeStreamEntries(a.enc, r.entries)
	}
}

// cmdConfig answers CONFIG GET dir/dbfilename with the flag-provided
// values; this server never backs them with a real RDB file.
func cmdConfig(a dispatchArgs) {
	if len(a.cmd) != 3 || upperFirst(a.cmd[1]) != "GET" {
		a.enc.WriteError("ERR unsupported CONFIG subcommand")
		return
	}
	switch a.cmd[2] {
	case "dir":
		a.enc.WriteBulkStrings([]string{"dir", a.rdbDir})
	case "dbfilename":
		a.enc.WriteBulkStrings([]string{"dbfilename", a.rdbFilename})
	default:
		a.enc.WriteArrayHeader(0)
	}
}

func strsToBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}
