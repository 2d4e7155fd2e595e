package command

import (
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

func listAt(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found := sh.LookupRead(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindList {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func listAtWrite(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found, _ := sh.LookupWrite(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindList {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func pushCommand(front bool) HandlerFunc {
	return func(ctx *Ctx, argv [][]byte) Outcome {
		key := string(argv[1])
		sh := ctx.shardFor(argv[1])
		sh.Lock()
		defer sh.Unlock()
		o, found, err := listAtWrite(sh, key)
		if err != nil {
			return ctx.replyErr(err)
		}
		if !found {
			o = object.NewList()
			sh.Set(key, o)
		} else {
			ctx.writeBarrier(sh, key, o)
		}
		for _, v := range argv[2:] {
			if front {
				o.List.PushFront(v)
			} else {
				o.List.PushBack(v)
			}
		}
		sh.TouchWatchers(key)
		sh.MarkReady(key)
		ctx.Client.Out.Integer(int64(o.List.Len()))
		return OutcomeReplied
	}
}

func popCommand(front bool) HandlerFunc {
	return func(ctx *Ctx, argv [][]byte) Outcome {
		key := string(argv[1])
		sh := ctx.shardFor(argv[1])
		sh.Lock()
		defer sh.Unlock()
		o, found, err := listAtWrite(sh, key)
		if err != nil {
			return ctx.replyErr(err)
		}
		if !found {
			ctx.Client.Out.NilBulk()
			return OutcomeReplied
		}
		ctx.writeBarrier(sh, key, o)
		var v []byte
		var ok bool
		if front {
			v, ok = o.List.PopFront()
		} else {
			v, ok = o.List.PopBack()
		}
		if !ok {
			ctx.Client.Out.NilBulk()
			return OutcomeReplied
		}
		if o.List.Len() == 0 {
			sh.Delete(key)
		} else {
			sh.TouchWatchers(key)
		}
		ctx.Client.Out.Bulk(v)
		return OutcomeReplied
	}
}

var cmdLPush = pushCommand(true)
var cmdRPush = pushCommand(false)
var cmdLPop = popCommand(true)
var cmdRPop = popCommand(false)

func cmdLLen(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := listAt(sh, string(argv[1]))
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(int64(o.List.Len()))
	return OutcomeReplied
}

func cmdLIndex(ctx *Ctx, argv [][]byte) Outcome {
	idx, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, lerr := listAt(sh, string(argv[1]))
	sh.RUnlock()
	if lerr != nil {
		return ctx.replyErr(lerr)
	}
	if !found {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	v, ok := o.List.Index(int(idx))
	if !ok {
		ctx.Client.Out.NilBulk()
		return OutcomeReplied
	}
	ctx.Client.Out.Bulk(v)
	return OutcomeReplied
}

func cmdLRange(ctx *Ctx, argv [][]byte) Outcome {
	start, err := parseInt(argv[2])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	stop, err := parseInt(argv[3])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, lerr := listAt(sh, string(argv[1]))
	var elems [][]byte
	if lerr == nil && found {
		elems = o.List.Range(int(start), int(stop))
	}
	sh.RUnlock()
	if lerr != nil {
		return ctx.replyErr(lerr)
	}
	ctx.Client.Out.ArrayHeader(len(elems))
	for _, e := range elems {
		ctx.Client.Out.Bulk(e)
	}
	return OutcomeReplied
}
