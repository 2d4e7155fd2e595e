package command

import (
	"fmt"
	"strings"

	"github.com/vipshop/vire/internal/session"
)

// cmdClient dispatches CLIENT's subcommands (spec §8 CLIENT family).
func cmdClient(ctx *Ctx, argv [][]byte) Outcome {
	switch {
	case argEquals(argv[1], "GETNAME"):
		ctx.Client.Out.Bulk([]byte(ctx.Client.Name))
		return OutcomeReplied
	case argEquals(argv[1], "SETNAME"):
		if len(argv) != 3 {
			return ctx.replyErr(errWrongArity("client|setname"))
		}
		ctx.Client.Name = string(argv[2])
		ctx.Client.Out.OK()
		return OutcomeReplied
	case argEquals(argv[1], "LIST"):
		return cmdClientList(ctx, argv)
	case argEquals(argv[1], "KILL"):
		if len(argv) != 3 {
			return ctx.replyErr(errWrongArity("client|kill"))
		}
		return cmdClientKill(ctx, argv)
	default:
		return ctx.replyErr(newErr("ERR", "unknown CLIENT subcommand"))
	}
}

// ClientLine formats one CLIENT LIST line; exported so internal/worker can
// reuse the same format when assembling its local client list.
func ClientLine(c *session.Client) string {
	return fmt.Sprintf("id=%d addr=%s name=%s db=%d age=%d idle=%d",
		c.ID, c.Addr, c.Name, c.DB, c.AgeSeconds(), c.IdleSeconds())
}

// cmdClientList walks every worker's local client list via the jump
// protocol (spec §4.3): this worker contributes its own lines, then hops
// to the next worker until StepsTaken reaches WorkerCount, at which point
// Continuation.Finish writes the combined reply.
func cmdClientList(ctx *Ctx, argv [][]byte) Outcome {
	lines := ctx.Host.LocalClientLines()
	if ctx.Host.WorkerCount() <= 1 {
		ctx.Client.Out.Bulk(joinClientLines(lines))
		return OutcomeReplied
	}
	cont := &session.Continuation{
		Kind:         session.ContinuationClientList,
		ListLines:    lines,
		TargetWorker: (ctx.Host.WorkerIndex() + 1) % ctx.Host.WorkerCount(),
		StepsTaken:   1,
		OriginWorker: ctx.Host.WorkerIndex(),
	}
	cont.Finish = func(c *session.Client) {
		c.Out.Bulk(joinClientLines(cont.ListLines))
	}
	ctx.Client.StartJump(cont)
	ctx.Host.Dispatch(cont.TargetWorker, ctx.Client)
	return OutcomeJumped
}

// joinClientLines renders CLIENT LIST's reply body: one \n-terminated
// line per live client.
func joinClientLines(lines []string) []byte {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// cmdClientKill walks every worker killing local clients whose address
// matches argv[2], accumulating a running count the same way CLIENT LIST
// accumulates lines.
func cmdClientKill(ctx *Ctx, argv [][]byte) Outcome {
	target := string(argv[2])
	filter := func(c *session.Client) bool { return c.Addr == target }

	killed := ctx.Host.KillLocalClients(filter)
	if ctx.Host.WorkerCount() <= 1 {
		ctx.Client.Out.Integer(int64(killed))
		return OutcomeReplied
	}
	cont := &session.Continuation{
		Kind:         session.ContinuationClientKill,
		KillFilter:   filter,
		KillCount:    killed,
		TargetWorker: (ctx.Host.WorkerIndex() + 1) % ctx.Host.WorkerCount(),
		StepsTaken:   1,
		OriginWorker: ctx.Host.WorkerIndex(),
	}
	cont.Finish = func(c *session.Client) {
		c.Out.Integer(int64(cont.KillCount))
	}
	ctx.Client.StartJump(cont)
	ctx.Host.Dispatch(cont.TargetWorker, ctx.Client)
	return OutcomeJumped
}

func cmdDBSize(ctx *Ctx, argv [][]byte) Outcome {
	var n int64
	for _, sh := range ctx.Keyspace.ShardsForDB(ctx.Client.DB) {
		sh.RLock()
		n += int64(sh.Len())
		sh.RUnlock()
	}
	ctx.Client.Out.Integer(n)
	return OutcomeReplied
}

func cmdFlushDB(ctx *Ctx, argv [][]byte) Outcome {
	for _, sh := range ctx.Keyspace.ShardsForDB(ctx.Client.DB) {
		sh.Lock()
		it := sh.Data().NewSafeIterator()
		var keys []string
		for {
			k, o, ok := it.Next()
			if !ok {
				break
			}
			ctx.writeBarrier(sh, k, o)
			keys = append(keys, k)
		}
		it.Release()
		for _, k := range keys {
			sh.Delete(k)
		}
		sh.Unlock()
	}
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func cmdCommand(ctx *Ctx, argv [][]byte) Outcome {
	ctx.Client.Out.ArrayHeader(len(Table))
	for name := range Table {
		ctx.Client.Out.Bulk([]byte(name))
	}
	return OutcomeReplied
}

func cmdInfo(ctx *Ctx, argv [][]byte) Outcome {
	stats := ctx.Host.Stats()
	var dirty int64
	dumping := 0
	for _, sh := range ctx.Keyspace.All() {
		sh.RLock()
		dirty += sh.Dirty()
		if sh.Dumping {
			dumping++
		}
		sh.RUnlock()
	}
	body := fmt.Sprintf(
		"# Server\r\nconnected_clients:%d\r\ntotal_commands_processed:%d\r\n"+
			"# Stats\r\nexpired_keys:%d\r\nkeyspace_hits:%d\r\nkeyspace_misses:%d\r\n"+
			"# Persistence\r\nrdb_changes_since_last_save:%d\r\nrdb_bgsave_in_progress:%d\r\n",
		stats.Connections, stats.CommandsExecuted,
		stats.ExpiredKeys, stats.KeyspaceHits, stats.KeyspaceMisses,
		dirty, dumping,
	)
	ctx.Client.Out.Bulk([]byte(body))
	return OutcomeReplied
}

// cmdConfig dispatches CONFIG's subcommands against the live
// RuntimeConfig.
func cmdConfig(ctx *Ctx, argv [][]byte) Outcome {
	switch {
	case argEquals(argv[1], "GET"):
		if len(argv) != 3 {
			return ctx.replyErr(errWrongArity("config|get"))
		}
		matches := ctx.Config.Matching(string(argv[2]))
		ctx.Client.Out.ArrayHeader(len(matches) * 2)
		for k, v := range matches {
			ctx.Client.Out.Bulk([]byte(k))
			ctx.Client.Out.Bulk([]byte(v))
		}
		return OutcomeReplied
	case argEquals(argv[1], "SET"):
		if len(argv) != 4 {
			return ctx.replyErr(errWrongArity("config|set"))
		}
		ctx.Config.Set(string(argv[2]), string(argv[3]))
		ctx.Client.Out.OK()
		return OutcomeReplied
	default:
		return ctx.replyErr(newErr("ERR", "unknown CONFIG subcommand"))
	}
}

// cmdShutdown closes the connection without a reply, matching the
// protocol's behavior of never acknowledging SHUTDOWN. It closes only the
// calling client's connection; the server process keeps running.
func cmdShutdown(ctx *Ctx, argv [][]byte) Outcome {
	ctx.Client.SetFlag(session.FlagCloseAfterReply)
	ctx.Client.SetFlag(session.FlagCloseASAP)
	return OutcomeReplied
}
