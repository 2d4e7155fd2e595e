package command

import (
	"github.com/vipshop/vire/internal/buf"
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

func hashAt(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found := sh.LookupRead(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindHash {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func hashAtWrite(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found, _ := sh.LookupWrite(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindHash {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func cmdHSet(ctx *Ctx, argv [][]byte) Outcome {
	fields := argv[2:]
	if len(fields)%2 != 0 {
		return ctx.replyErr(errWrongArity("hset"))
	}
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := hashAtWrite(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		o = object.NewHash()
		sh.Set(key, o)
	} else {
		ctx.writeBarrier(sh, key, o)
	}
	var created int64
	for i := 0; i < len(fields); i += 2 {
		field := string(fields[i])
		if _, exists := o.Hash[field]; !exists {
			created++
		}
		o.Hash[field] = buf.FromBytes(append([]byte(nil), fields[i+1]...))
		if o.FieldVersions != nil {
			o.FieldVersions[field] = o.Version
		}
	}
	sh.TouchWatchers(key)
	ctx.Client.Out.Integer(created)
	return OutcomeReplied
}

func cmdHGet(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := hashAt(sh, string(argv[1]))
	var v *buf.Buffer
	var has bool
	if err == nil && found {
		v, has = o.Hash[string(argv[2])]
	}
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !has {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	ctx.Client.Out.Bulk(v.Bytes())
	return OutcomeReplied
}

func cmdHDel(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := hashAtWrite(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.writeBarrier(sh, key, o)
	var removed int64
	for _, f := range argv[2:] {
		field := string(f)
		if _, exists := o.Hash[field]; exists {
			delete(o.Hash, field)
			delete(o.FieldVersions, field)
			removed++
		}
	}
	if len(o.Hash) == 0 {
		sh.Delete(key)
	} else if removed > 0 {
		sh.TouchWatchers(key)
	}
	ctx.Client.Out.Integer(removed)
	return OutcomeReplied
}

func cmdHExists(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := hashAt(sh, string(argv[1]))
	var has bool
	if err == nil && found {
		_, has = o.Hash[string(argv[2])]
	}
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if has {
		ctx.Client.Out.Integer(1)
	} else {
		ctx.Client.Out.Integer(0)
	}
	return OutcomeReplied
}

func cmdHLen(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := hashAt(sh, string(argv[1]))
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(int64(len(o.Hash)))
	return OutcomeReplied
}

func cmdHGetAll(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := hashAt(sh, string(argv[1]))
	type pair struct {
		field string
		val   []byte
	}
	var pairs []pair
	if err == nil && found {
		pairs = make([]pair, 0, len(o.Hash))
		for f, v := range o.Hash {
			pairs = append(pairs, pair{f, v.Bytes()})
		}
	}
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	ctx.Client.Out.ArrayHeader(len(pairs) * 2)
	for _, p := range pairs {
		ctx.Client.Out.Bulk([]byte(p.field))
		ctx.Client.Out.Bulk(p.val)
	}
	return OutcomeReplied
}
