package command

import "strconv"

func cmdDel(ctx *Ctx, argv [][]byte) Outcome {
	keys := argv[1:]
	_, unlock := ctx.lockShards(keys, true)
	defer unlock()
	var n int64
	for _, k := range keys {
		sh := ctx.shardFor(k)
		if o, found, _ := sh.LookupWrite(string(k)); found {
			ctx.writeBarrier(sh, string(k), o)
			sh.Delete(string(k))
			n++
		}
	}
	ctx.Client.Out.Integer(n)
	return OutcomeReplied
}

func cmdExists(ctx *Ctx, argv [][]byte) Outcome {
	keys := argv[1:]
	_, unlock := ctx.lockShards(keys, false)
	defer unlock()
	var n int64
	for _, k := range keys {
		sh := ctx.shardFor(k)
		if _, found := sh.LookupRead(string(k)); found {
			n++
		}
	}
	ctx.Client.Out.Integer(n)
	return OutcomeReplied
}

// expireAt implements EXPIRE/PEXPIRE/EXPIREAT/PEXPIREAT, all of which
// reduce to "set an absolute millisecond deadline" (spec §4.5 append-log
// note: "absolute-time PEXPIREAT for EXPIRE/SETEX variants").
func expireAt(ctx *Ctx, key []byte, atMillis int64) Outcome {
	sh := ctx.shardFor(key)
	sh.Lock()
	defer sh.Unlock()
	o, found, _ := sh.LookupWrite(string(key))
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.RewriteArgv = [][]byte{[]byte("PEXPIREAT"), key, []byte(strconv.FormatInt(atMillis, 10))}
	if atMillis <= nowMillis() {
		ctx.writeBarrier(sh, string(key), o)
		sh.Delete(string(key))
		ctx.Client.Out.Integer(1)
		return OutcomeReplied
	}
	sh.SetExpire(string(key), atMillis)
	ctx.Client.Out.Integer(1)
	return OutcomeReplied
}

func cmdExpire(ctx *Ctx, argv [][]byte) Outcome {
	secs, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	return expireAt(ctx, argv[1], nowMillis()+secs*1000)
}

func cmdPExpire(ctx *Ctx, argv [][]byte) Outcome {
	ms, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	return expireAt(ctx, argv[1], nowMillis()+ms)
}

func cmdExpireAt(ctx *Ctx, argv [][]byte) Outcome {
	secs, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	return expireAt(ctx, argv[1], secs*1000)
}

func cmdPExpireAt(ctx *Ctx, argv [][]byte) Outcome {
	ms, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	return expireAt(ctx, argv[1], ms)
}

func cmdTTL(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	defer sh.RUnlock()
	if _, found := sh.LookupRead(string(argv[1])); !found {
		ctx.Client.Out.Integer(-2)
		return OutcomeReplied
	}
	ms, ok := sh.TTL(string(argv[1]))
	if !ok {
		ctx.Client.Out.Integer(-1)
		return OutcomeReplied
	}
	secs := ms / 1000
	if ms%1000 != 0 {
		secs++
	}
	ctx.Client.Out.Integer(secs)
	return OutcomeReplied
}

func cmdPTTL(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	defer sh.RUnlock()
	if _, found := sh.LookupRead(string(argv[1])); !found {
		ctx.Client.Out.Integer(-2)
		return OutcomeReplied
	}
	ms, ok := sh.TTL(string(argv[1]))
	if !ok {
		ctx.Client.Out.Integer(-1)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(ms)
	return OutcomeReplied
}

func cmdPersist(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	if _, found, _ := sh.LookupWrite(string(argv[1])); !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	if sh.Persist(string(argv[1])) {
		ctx.Client.Out.Integer(1)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(0)
	return OutcomeReplied
}

// renameInternal implements RENAME/RENAMENX (spec §8: "RENAME k1 k2 when
// k1 has TTL t transfers the TTL to k2; source is absent afterwards").
func renameInternal(ctx *Ctx, src, dst []byte, failIfDstExists bool) Outcome {
	shards, unlock := ctx.lockShards([][]byte{src, dst}, true)
	defer unlock()
	_ = shards
	srcShard := ctx.shardFor(src)
	dstShard := ctx.shardFor(dst)

	obj, found, _ := srcShard.LookupWrite(string(src))
	if !found {
		return ctx.replyErr(newErr("ERR", "no such key"))
	}
	if failIfDstExists {
		if _, exists, _ := dstShard.LookupWrite(string(dst)); exists {
			ctx.Client.Out.Integer(0)
			return OutcomeReplied
		}
	}
	ctx.writeBarrier(srcShard, string(src), obj)
	if old, exists, _ := dstShard.LookupWrite(string(dst)); exists {
		ctx.writeBarrier(dstShard, string(dst), old)
	}
	ttl, hadTTL := srcShard.TTL(string(src))
	srcShard.Delete(string(src))
	obj.Version = 0 // the destination shard's snapshot pass has never seen this object
	dstShard.Set(string(dst), obj)
	if hadTTL {
		dstShard.SetExpire(string(dst), nowMillis()+ttl)
	}
	if failIfDstExists {
		ctx.Client.Out.Integer(1)
	} else {
		ctx.Client.Out.OK()
	}
	return OutcomeReplied
}

func cmdRename(ctx *Ctx, argv [][]byte) Outcome {
	return renameInternal(ctx, argv[1], argv[2], false)
}

func cmdRenameNX(ctx *Ctx, argv [][]byte) Outcome {
	return renameInternal(ctx, argv[1], argv[2], true)
}

func cmdType(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found := sh.LookupRead(string(argv[1]))
	sh.RUnlock()
	if !found {
		ctx.Client.Out.SimpleString("none")
		return OutcomeReplied
	}
	ctx.Client.Out.SimpleString(o.Kind.String())
	return OutcomeReplied
}

// cmdKeys implements a shard-by-shard pattern scan (spec §3 Keyspace: "A
// 'SCAN all keys' operation walks shards sequentially using each shard's
// dict cursor"); here KEYS walks every shard of the current logical DB,
// one at a time under its read lock, matching against a glob pattern.
func cmdKeys(ctx *Ctx, argv [][]byte) Outcome {
	pattern := string(argv[1])
	var matches []string
	for _, sh := range ctx.Keyspace.ShardsForDB(ctx.Client.DB) {
		sh.RLock()
		it := sh.Data().NewSafeIterator()
		for {
			key, _, ok := it.Next()
			if !ok {
				break
			}
			if globMatch(pattern, key) {
				matches = append(matches, key)
			}
		}
		it.Release()
		sh.RUnlock()
	}
	ctx.Client.Out.ArrayHeader(len(matches))
	for _, k := range matches {
		ctx.Client.Out.Bulk([]byte(k))
	}
	return OutcomeReplied
}

// cmdScan implements a cursor-based SCAN whose cursor is a shard index:
// it selects which of the current DB's shards to return next, and each
// call returns every matching key of that one shard, so callers drain the whole keyspace shard by shard without ever
// holding more than one shard's lock at a time.
func cmdScan(ctx *Ctx, argv [][]byte) Outcome {
	cursor, err := parseInt(argv[1])
	if err != nil || cursor < 0 {
		return ctx.replyErr(newErr("ERR", "invalid cursor"))
	}
	pattern := "*"
	for i := 2; i+1 < len(argv); i += 2 {
		if argEquals(argv[i], "MATCH") {
			pattern = string(argv[i+1])
		}
	}
	shards := ctx.Keyspace.ShardsForDB(ctx.Client.DB)
	idx := int(cursor)
	if idx >= len(shards) {
		ctx.Client.Out.ArrayHeader(2)
		ctx.Client.Out.Bulk([]byte("0"))
		ctx.Client.Out.ArrayHeader(0)
		return OutcomeReplied
	}
	sh := shards[idx]
	sh.RLock()
	var matches []string
	it := sh.Data().NewSafeIterator()
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		if globMatch(pattern, key) {
			matches = append(matches, key)
		}
	}
	it.Release()
	sh.RUnlock()

	next := idx + 1
	if next >= len(shards) {
		next = 0
	}
	ctx.Client.Out.ArrayHeader(2)
	ctx.Client.Out.Bulk([]byte(strconv.Itoa(next)))
	ctx.Client.Out.ArrayHeader(len(matches))
	for _, k := range matches {
		ctx.Client.Out.Bulk([]byte(k))
	}
	return OutcomeReplied
}

func cmdMove(ctx *Ctx, argv [][]byte) Outcome {
	destDB, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	if int(destDB) < 0 || int(destDB) >= ctx.Keyspace.LogicalDBs() {
		return ctx.replyErr(newErr("ERR", "DB index is out of range"))
	}
	key := string(argv[1])
	srcShard := ctx.shardFor(argv[1])
	dstIdx := ctx.Keyspace.ShardIndex(int(destDB), argv[1])
	dstShard := ctx.Keyspace.Shard(dstIdx)

	first, second := srcShard, dstShard
	if dstShard.ID < srcShard.ID {
		first, second = dstShard, srcShard
	}
	if first != second {
		first.Lock()
		defer first.Unlock()
		second.Lock()
		defer second.Unlock()
	} else {
		first.Lock()
		defer first.Unlock()
	}

	obj, found, _ := srcShard.LookupWrite(key)
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	if _, exists, _ := dstShard.LookupWrite(key); exists {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.writeBarrier(srcShard, key, obj)
	ttl, hadTTL := srcShard.TTL(key)
	srcShard.Delete(key)
	obj.Version = 0
	dstShard.Set(key, obj)
	if hadTTL {
		dstShard.SetExpire(key, nowMillis()+ttl)
	}
	ctx.Client.Out.Integer(1)
	return OutcomeReplied
}

// globMatch implements the small subset of glob syntax KEYS/SCAN need:
// '*' (any run), '?' (one char), and literal matching. Kept minimal and
// allocation-light rather than pulling in a dependency for one helper.
func globMatch(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	return globMatchRec(pattern, s)
}

func globMatchRec(p, s string) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 1 && p[1] == '*' {
				p = p[1:]
			}
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchRec(p[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			p, s = p[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}
