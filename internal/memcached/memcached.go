// Package memcached implements a minimal memcached text-protocol codec
// that operates directly on keyspace shards (bypassing the RESP command
// dispatch), so a memcached benchmark client can drive the same keyspace (spec
// §6 "benchmark client... treated only as external collaborators"; this
// package is the protocol-awareness half of that collaboration). Shaped
// after the command grammar `original_source/dep/himemcached-0.1.0`'s
// himemcached.h documents: `get <key>*\r\n`, `set <key> <flags> <exptime>
// <bytes>\r\n<data>\r\n`, `delete <key>\r\n`, with `STORED\r\n`/`VALUE ...
// END\r\n`/`DELETED\r\n`/`NOT_FOUND\r\n` replies.
//
// Like the RESP codec, this package is stdlib-only: the command set is a half dozen
// line-oriented verbs with no compression, pipelining, or binary framing
// to speak of, and none of the examples' libraries (gobwas/ws, the RESP
// stack itself) target a line-based key/value text protocol — reaching
// for one would mean bending its API to a shape it wasn't built for.
package memcached

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

const (
	replyStored   = "STORED\r\n"
	replyNotFound = "NOT_FOUND\r\n"
	replyDeleted  = "DELETED\r\n"
	replyEnd      = "END\r\n"
	replyError    = "ERROR\r\n"
)

// Conn serves one memcached client's text-protocol command stream
// against ks, reusing the same shard routing and TTL semantics commands
// against RESP clients get (memcached's exptime is relative seconds,
// like RESP's EX).
type Conn struct {
	r  *bufio.Reader
	w  io.Writer
	ks *keyspace.Keyspace
	db int
}

// NewConn wraps rw as a memcached text-protocol session against db 0 of
// ks (memcached has no SELECT equivalent; every connection is pinned to
// one logical database, matching the protocol's single-keyspace model).
func NewConn(r io.Reader, w io.Writer, ks *keyspace.Keyspace) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w, ks: ks}
}

// Serve processes commands until the client disconnects or sends a
// malformed line.
func (c *Conn) Serve() error {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if err := c.dispatch(fields); err != nil {
			return err
		}
	}
}

func (c *Conn) dispatch(fields []string) error {
	if len(fields) == 0 {
		return c.reply(replyError)
	}
	switch strings.ToLower(fields[0]) {
	case "get", "gets":
		return c.handleGet(fields[1:])
	case "set":
		return c.handleSet(fields[1:])
	case "delete":
		return c.handleDelete(fields[1:])
	case "incr", "decr":
		return c.handleIncrDecr(fields[0] == "decr", fields[1:])
	case "quit":
		return io.EOF
	default:
		return c.reply(replyError)
	}
}

func (c *Conn) reply(s string) error {
	_, err := io.WriteString(c.w, s)
	return err
}

func (c *Conn) handleGet(keys []string) error {
	for _, key := range keys {
		sh := c.ks.ShardFor(c.db, []byte(key))
		sh.RLock()
		o, found := sh.LookupRead(key)
		var v []byte
		if found && o.Kind == object.KindString {
			v = o.StringBytes()
		} else {
			found = false
		}
		sh.RUnlock()
		if !found {
			continue
		}
		if err := c.reply(fmt.Sprintf("VALUE %s 0 %d\r\n", key, len(v))); err != nil {
			return err
		}
		if _, err := c.w.Write(v); err != nil {
			return err
		}
		if err := c.reply("\r\n"); err != nil {
			return err
		}
	}
	return c.reply(replyEnd)
}

// handleSet parses `set <key> <flags> <exptime> <bytes> [noreply]` plus
// the following <bytes>-byte payload and trailing CRLF.
func (c *Conn) handleSet(fields []string) error {
	if len(fields) < 4 {
		return c.reply(replyError)
	}
	key := fields[0]
	exptime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return c.reply(replyError)
	}
	n, err := strconv.Atoi(fields[3])
	if err != nil || n < 0 {
		return c.reply(replyError)
	}
	noreply := len(fields) >= 5 && fields[4] == "noreply"

	data := make([]byte, n+2) // payload + trailing CRLF
	if _, err := io.ReadFull(c.r, data); err != nil {
		return err
	}
	payload := data[:n]

	sh := c.ks.ShardFor(c.db, []byte(key))
	sh.Lock()
	sh.Set(key, object.NewRawString(payload))
	if exptime > 0 {
		sh.SetExpire(key, time.Now().UnixMilli()+exptime*1000)
	}
	sh.Unlock()

	if noreply {
		return nil
	}
	return c.reply(replyStored)
}

func (c *Conn) handleDelete(fields []string) error {
	if len(fields) < 1 {
		return c.reply(replyError)
	}
	key := fields[0]
	sh := c.ks.ShardFor(c.db, []byte(key))
	sh.Lock()
	found := sh.Delete(key)
	sh.Unlock()
	if !found {
		return c.reply(replyNotFound)
	}
	return c.reply(replyDeleted)
}

func (c *Conn) handleIncrDecr(decr bool, fields []string) error {
	if len(fields) < 2 {
		return c.reply(replyError)
	}
	key := fields[0]
	delta, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return c.reply(replyError)
	}
	if decr {
		delta = -delta
	}
	sh := c.ks.ShardFor(c.db, []byte(key))
	sh.Lock()
	o, found, _ := sh.LookupWrite(key)
	if !found || o.Kind != object.KindString {
		sh.Unlock()
		return c.reply(replyNotFound)
	}
	cur, perr := strconv.ParseInt(string(o.StringBytes()), 10, 64)
	if perr != nil {
		sh.Unlock()
		return c.reply(replyError)
	}
	next := cur + delta
	if next < 0 {
		next = 0
	}
	sh.Set(key, object.NewInt(next))
	sh.Unlock()
	return c.reply(strconv.FormatInt(next, 10) + "\r\n")
}
