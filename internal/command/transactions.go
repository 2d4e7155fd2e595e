package command

import "github.com/vipshop/vire/internal/session"

func cmdMulti(ctx *Ctx, argv [][]byte) Outcome {
	if ctx.Client.Multi.Active {
		return ctx.replyErr(newErr("ERR", "MULTI calls can not be nested"))
	}
	ctx.Client.BeginMulti()
	ctx.Client.ClearFlag(session.FlagDirtyExec)
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func cmdDiscard(ctx *Ctx, argv [][]byte) Outcome {
	if !ctx.Client.Multi.Active {
		return ctx.replyErr(newErr("ERR", "DISCARD without MULTI"))
	}
	clearWatches(ctx)
	ctx.Client.EndMulti()
	ctx.Client.ClearFlag(session.FlagDirtyExec)
	ctx.Client.Out.OK()
	return OutcomeReplied
}

// cmdExec runs the client's queued transaction. A queue-time failure
// (unknown command, bad arity) aborts the whole block with -EXECABORT; a
// watched key that changed since WATCH aborts with a nil array (spec §7
// Propagation policy). Otherwise every queued command runs independently
// and EXEC returns the array of their replies.
func cmdExec(ctx *Ctx, argv [][]byte) Outcome {
	if !ctx.Client.Multi.Active {
		return ctx.replyErr(newErr("ERR", "EXEC without MULTI"))
	}
	if ctx.Client.HasFlag(session.FlagDirtyExec) {
		clearWatches(ctx)
		ctx.Client.EndMulti()
		ctx.Client.ClearFlag(session.FlagDirtyExec)
		ctx.Client.Out.Error("EXECABORT Transaction discarded because of previous errors.")
		return OutcomeReplied
	}

	aborted := false
	for _, wk := range ctx.Client.WatchedKeys {
		sh := ctx.Keyspace.Shard(ctx.Keyspace.ShardIndex(wk.DB, []byte(wk.Key)))
		sh.Lock()
		if sh.DirtyCAS(ctx.Client.ID) {
			aborted = true
		}
		sh.RemoveWatcher(wk.Key, ctx.Client.ID)
		sh.ClearDirtyCAS(ctx.Client.ID)
		sh.Unlock()
	}
	queue := ctx.Client.EndMulti()
	if aborted {
		ctx.Client.Out.NilArray()
		return OutcomeReplied
	}

	ctx.InExec = true
	defer func() { ctx.InExec = false }()

	ctx.Client.Out.ArrayHeader(len(queue))
	for _, queuedArgv := range queue {
		name := lowerASCII(queuedArgv[0])
		cmd, ok := Table[name]
		if !ok {
			ctx.Client.Out.Error(errUnknownCommand(name).Error())
			continue
		}
		runCommand(ctx, cmd, queuedArgv)
	}
	return OutcomeReplied
}

func cmdWatch(ctx *Ctx, argv [][]byte) Outcome {
	if ctx.Client.Multi.Active {
		return ctx.replyErr(newErr("ERR", "WATCH inside MULTI is not allowed"))
	}
	for _, k := range argv[1:] {
		ctx.Client.Watch(ctx.Client.DB, string(k))
		sh := ctx.shardFor(k)
		sh.Lock()
		sh.AddWatcher(string(k), ctx.Client.ID)
		sh.Unlock()
	}
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func cmdUnwatch(ctx *Ctx, argv [][]byte) Outcome {
	clearWatches(ctx)
	ctx.Client.Unwatch()
	ctx.Client.Out.OK()
	return OutcomeReplied
}

// clearWatches removes the client's shard-side watch registrations and
// dirty marks; the client-side list is cleared by the caller via
// EndMulti/Unwatch.
func clearWatches(ctx *Ctx) {
	for _, wk := range ctx.Client.WatchedKeys {
		sh := ctx.Keyspace.Shard(ctx.Keyspace.ShardIndex(wk.DB, []byte(wk.Key)))
		sh.Lock()
		sh.RemoveWatcher(wk.Key, ctx.Client.ID)
		sh.ClearDirtyCAS(ctx.Client.ID)
		sh.Unlock()
	}
}
