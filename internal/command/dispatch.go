package command

import (
	"bytes"

	"github.com/vipshop/vire/internal/session"
)

// lowerASCII returns a lowercased copy of b without allocating when b is
// already lowercase, used to normalize the command name (spec §4.6 step
// 1: "Lowercase the first argv").
func lowerASCII(b []byte) string {
	needsLower := false
	for _, c := range b {
		if c >= 'A' && c <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return string(b)
	}
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// Dispatch runs one command's argv through the dispatch pipeline (spec
// §4.6): lookup, arity check, MULTI queuing, handler invocation, and
// write propagation. The caller (internal/worker) is responsible for
// having already drained a complete argv from the RESP parser.
func Dispatch(ctx *Ctx, argv [][]byte) Outcome {
	if len(argv) == 0 {
		return OutcomeReplied
	}
	name := lowerASCII(argv[0])
	cmd, ok := Table[name]
	if !ok {
		if ctx.Client.Multi.Active {
			ctx.Client.SetFlag(session.FlagDirtyExec)
		}
		ctx.Client.Out.Error(errUnknownCommand(name).Error())
		return OutcomeReplied
	}
	if !cmd.arityOK(len(argv)) {
		if ctx.Client.Multi.Active {
			ctx.Client.SetFlag(session.FlagDirtyExec)
		}
		ctx.Client.Out.Error(errWrongArity(name).Error())
		return OutcomeReplied
	}

	if ctx.Client.Multi.Active && cmd.Flags&FlagNoMulti == 0 {
		ctx.Client.QueueCommand(argv)
		ctx.Client.Out.SimpleString("QUEUED")
		return OutcomeReplied
	}

	return runCommand(ctx, cmd, argv)
}

// runCommand invokes a resolved command's handler and propagates the
// write, bypassing the MULTI-queuing step. EXEC calls this directly for
// each queued argv once it has already resolved and arity-checked them.
func runCommand(ctx *Ctx, cmd *Command, argv [][]byte) Outcome {
	if cmd.Flags&FlagWrite != 0 {
		if err := ctx.ensureMemory(); err != nil {
			return ctx.replyErr(err)
		}
	}

	ctx.NoPropagate = false
	ctx.RewriteArgv = nil
	ctx.ExtraPropagate = nil
	outcome := cmd.Handler(ctx, argv)

	if outcome == OutcomeReplied && cmd.Flags&FlagWrite != 0 && !ctx.NoPropagate && ctx.Propagator != nil {
		propagated := argv
		if ctx.RewriteArgv != nil {
			propagated = ctx.RewriteArgv
		}
		ctx.Propagator.Propagate(ctx.Client.DB, propagated)
		for _, extra := range ctx.ExtraPropagate {
			ctx.Propagator.Propagate(ctx.Client.DB, extra)
		}
	}
	return outcome
}

// argEquals is a small helper used by option-parsing handlers (SET's
// EX/PX/NX/XX, ZADD's flags, ...).
func argEquals(a []byte, s string) bool { return bytes.EqualFold(a, []byte(s)) }
