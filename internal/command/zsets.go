package command

import (
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

func zsetAt(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found := sh.LookupRead(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindZSet {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func zsetAtWrite(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found, _ := sh.LookupWrite(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindZSet {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func cmdZAdd(ctx *Ctx, argv [][]byte) Outcome {
	rest := argv[2:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return ctx.replyErr(errSyntax())
	}
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := zsetAtWrite(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		o = object.NewZSet()
		sh.Set(key, o)
	} else {
		ctx.writeBarrier(sh, key, o)
	}
	var added int64
	for i := 0; i < len(rest); i += 2 {
		score, perr := parseFloat(rest[i])
		if perr != nil {
			return ctx.replyErr(errNotFloat())
		}
		if o.ZSet.Insert(string(rest[i+1]), score) {
			added++
		}
	}
	sh.TouchWatchers(key)
	ctx.Client.Out.Integer(added)
	return OutcomeReplied
}

func cmdZScore(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := zsetAt(sh, string(argv[1]))
	var score float64
	var has bool
	if err == nil && found {
		score, has = o.ZSet.Score(string(argv[2]))
	}
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !has {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	ctx.Client.Out.Bulk([]byte(formatScore(score)))
	return OutcomeReplied
}

func cmdZRem(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := zsetAtWrite(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.writeBarrier(sh, key, o)
	var removed int64
	for _, m := range argv[2:] {
		if o.ZSet.Remove(string(m)) {
			removed++
		}
	}
	if o.ZSet.Len() == 0 {
		sh.Delete(key)
	} else if removed > 0 {
		sh.TouchWatchers(key)
	}
	ctx.Client.Out.Integer(removed)
	return OutcomeReplied
}

func cmdZCard(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := zsetAt(sh, string(argv[1]))
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(int64(o.ZSet.Len()))
	return OutcomeReplied
}

func cmdZRange(ctx *Ctx, argv [][]byte) Outcome {
	start, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	stop, err := parseInt(argv[3])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	withScores := len(argv) >= 5 && argEquals(argv[4], "WITHSCORES")

	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, zerr := zsetAt(sh, string(argv[1]))
	var entries []struct {
		member string
		score  float64
	}
	if zerr == nil && found {
		for _, e := range o.ZSet.Range(int(start), int(stop)) {
			entries = append(entries, struct {
				member string
				score  float64
			}{e.Member, e.Score})
		}
	}
	sh.RUnlock()
	if zerr != nil {
		return ctx.replyErr(zerr)
	}

	n := len(entries)
	if withScores {
		n *= 2
	}
	ctx.Client.Out.ArrayHeader(n)
	for _, e := range entries {
		ctx.Client.Out.Bulk([]byte(e.member))
		if withScores {
			ctx.Client.Out.Bulk([]byte(formatScore(e.score)))
		}
	}
	return OutcomeReplied
}
