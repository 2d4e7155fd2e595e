package command

import (
	"math"
	"strconv"

	"github.com/vipshop/vire/internal/object"
)

// stringAt fetches key's value as a string Object, reporting WRONGTYPE if
// it exists under a different Kind.
func stringAt(s interface{ LookupRead(string) (*object.Object, bool) }, key string) (*object.Object, bool, error) {
	o, found := s.LookupRead(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindString {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func cmdGet(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := stringAt(sh, string(argv[1]))
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.StatKeyspaceMisses++
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	ctx.StatKeyspaceHits++
	ctx.Client.Out.Bulk(o.StringBytes())
	return OutcomeReplied
}

type setOpts struct {
	ex, px       int64 // relative, ms; 0 = unset
	nx, xx       bool
	keepTTL      bool
	hasExpireOpt bool
}

func parseSetOpts(argv [][]byte) (setOpts, error) {
	var o setOpts
	i := 3
	for i < len(argv) {
		switch {
		case argEquals(argv[i], "EX"):
			if i+1 >= len(argv) {
				return o, errSyntax()
			}
			secs, err := parseInt(argv[i+1])
			if err != nil {
				return o, errNotInt()
			}
			o.ex = secs * 1000
			o.hasExpireOpt = true
			i += 2
		case argEquals(argv[i], "PX"):
			if i+1 >= len(argv) {
				return o, errSyntax()
			}
			ms, err := parseInt(argv[i+1])
			if err != nil {
				return o, errNotInt()
			}
			o.px = ms
			o.hasExpireOpt = true
			i += 2
		case argEquals(argv[i], "NX"):
			o.nx = true
			i++
		case argEquals(argv[i], "XX"):
			o.xx = true
			i++
		case argEquals(argv[i], "KEEPTTL"):
			o.keepTTL = true
			i++
		default:
			return o, errSyntax()
		}
	}
	if o.nx && o.xx {
		return o, errSyntax()
	}
	return o, nil
}

func cmdSet(ctx *Ctx, argv [][]byte) Outcome {
	opts, err := parseSetOpts(argv)
	if err != nil {
		return ctx.replyErr(err)
	}
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()

	old, exists, expired := sh.LookupWrite(key)
	if opts.nx && exists {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	if opts.xx && !exists {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	if expired {
		ctx.StatExpiredKeys++
	}
	if exists {
		ctx.writeBarrier(sh, key, old)
	}

	var prevTTL int64
	var hadTTL bool
	if opts.keepTTL {
		prevTTL, hadTTL = sh.TTL(key)
	}
	sh.Set(key, object.NewRawString(argv[2]))
	if opts.keepTTL && hadTTL {
		sh.SetExpire(key, nowMillisFor(prevTTL))
	}
	if opts.hasExpireOpt {
		at := nowMillis() + opts.ex
		if opts.px != 0 {
			at = nowMillis() + opts.px
		}
		sh.SetExpire(key, at)
		// Relative expirations are propagated in absolute form so a later
		// replay lands on the same deadline (spec behavior for EXPIRE and
		// the SET EX/PX variants).
		ctx.RewriteArgv = [][]byte{[]byte("SET"), argv[1], argv[2]}
		ctx.ExtraPropagate = [][][]byte{{[]byte("PEXPIREAT"), argv[1], []byte(strconv.FormatInt(at, 10))}}
	}
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func cmdSetNX(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	if _, exists, _ := sh.LookupWrite(key); exists {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	sh.Set(key, object.NewRawString(argv[2]))
	ctx.Client.Out.Integer(1)
	return OutcomeReplied
}

func cmdSetEXFamily(pxMultiplier int64) HandlerFunc {
	return func(ctx *Ctx, argv [][]byte) Outcome {
		secsOrMs, err := parseInt(argv[2])
		if err != nil {
			return ctx.replyErr(errNotInt())
		}
		key := string(argv[1])
		sh := ctx.shardFor(argv[1])
		sh.Lock()
		defer sh.Unlock()
		if old, exists, _ := sh.LookupWrite(key); exists {
			ctx.writeBarrier(sh, key, old)
		}
		at := nowMillis() + secsOrMs*pxMultiplier
		sh.Set(key, object.NewRawString(argv[3]))
		sh.SetExpire(key, at)
		ctx.RewriteArgv = [][]byte{[]byte("SET"), argv[1], argv[3]}
		ctx.ExtraPropagate = [][][]byte{{[]byte("PEXPIREAT"), argv[1], []byte(strconv.FormatInt(at, 10))}}
		ctx.Client.Out.OK()
		return OutcomeReplied
	}
}

func cmdGetSet(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := stringAt(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if found {
		ctx.writeBarrier(sh, key, o)
	}
	sh.Set(key, object.NewRawString(argv[2]))
	if !found {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	ctx.Client.Out.Bulk(o.StringBytes())
	return OutcomeReplied
}

func cmdAppend(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := stringAt(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		o = object.NewRawString(argv[2])
		sh.Set(key, o)
		ctx.Client.Out.Integer(int64(len(argv[2])))
		return OutcomeReplied
	}
	ctx.writeBarrier(sh, key, o)
	o = o.CloneForWrite()
	if o.Encoding == object.EncInt {
		o = object.NewRawString(o.StringBytes())
	}
	o.Str.Append(argv[2])
	sh.Set(key, o)
	ctx.Client.Out.Integer(int64(o.Str.Len()))
	return OutcomeReplied
}

func cmdStrlen(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := stringAt(sh, string(argv[1]))
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(int64(len(o.StringBytes())))
	return OutcomeReplied
}

// incrBy implements INCR/DECR/INCRBY/DECRBY: parse the current value as a
// base-10 integer (or default to 0), add delta, reject on overflow (spec
// §8: "saturation error if |n+m| > 2^63-1").
func incrBy(ctx *Ctx, key string, delta int64) Outcome {
	sh := ctx.shardFor([]byte(key))
	sh.Lock()
	defer sh.Unlock()
	o, found, err := stringAt(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	var cur int64
	if found {
		cur, err = strconv.ParseInt(string(o.StringBytes()), 10, 64)
		if err != nil {
			return ctx.replyErr(errNotInt())
		}
		ctx.writeBarrier(sh, key, o)
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return ctx.replyErr(newErr("ERR", "increment or decrement would overflow"))
	}
	next := cur + delta
	sh.Set(key, object.NewInt(next))
	ctx.Client.Out.Integer(next)
	return OutcomeReplied
}

func cmdIncr(ctx *Ctx, argv [][]byte) Outcome { return incrBy(ctx, string(argv[1]), 1) }
func cmdDecr(ctx *Ctx, argv [][]byte) Outcome { return incrBy(ctx, string(argv[1]), -1) }

func cmdIncrBy(ctx *Ctx, argv [][]byte) Outcome {
	n, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	return incrBy(ctx, string(argv[1]), n)
}

func cmdDecrBy(ctx *Ctx, argv [][]byte) Outcome {
	n, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	return incrBy(ctx, string(argv[1]), -n)
}

func cmdMGet(ctx *Ctx, argv [][]byte) Outcome {
	keys := argv[1:]
	shards, unlock := ctx.lockShards(keys, false)
	defer unlock()
	_ = shards
	ctx.Client.Out.ArrayHeader(len(keys))
	for _, k := range keys {
		sh := ctx.shardFor(k)
		o, found, err := stringAt(sh, string(k))
		if err != nil || !found {
			ctx.StatKeyspaceMisses++
			ctx.Client.Out.NilBulk()
			continue
		}
		ctx.StatKeyspaceHits++
		ctx.Client.Out.Bulk(o.StringBytes())
	}
	return OutcomeReplied
}

func cmdMSet(ctx *Ctx, argv [][]byte) Outcome {
	pairs := argv[1:]
	if len(pairs)%2 != 0 {
		return ctx.replyErr(errWrongArity("mset"))
	}
	keys := make([][]byte, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		keys = append(keys, pairs[i])
	}
	shards, unlock := ctx.lockShards(keys, true)
	defer unlock()
	_ = shards
	for i := 0; i < len(pairs); i += 2 {
		sh := ctx.shardFor(pairs[i])
		key := string(pairs[i])
		if old, exists, _ := sh.LookupWrite(key); exists {
			ctx.writeBarrier(sh, key, old)
		}
		sh.Set(key, object.NewRawString(pairs[i+1]))
	}
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func nowMillisFor(remaining int64) int64 { return nowMillis() + remaining }
