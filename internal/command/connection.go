package command

import "github.com/vipshop/vire/internal/session"

func cmdPing(ctx *Ctx, argv [][]byte) Outcome {
	if len(argv) == 2 {
		ctx.Client.Out.Bulk(argv[1])
		return OutcomeReplied
	}
	ctx.Client.Out.Pong()
	return OutcomeReplied
}

func cmdEcho(ctx *Ctx, argv [][]byte) Outcome {
	ctx.Client.Out.Bulk(argv[1])
	return OutcomeReplied
}

func cmdSelect(ctx *Ctx, argv [][]byte) Outcome {
	db, err := parseInt(argv[1])
	if err != nil {
		return ctx.replyErr(errNotInt())
	}
	if int(db) < 0 || int(db) >= ctx.Keyspace.LogicalDBs() {
		return ctx.replyErr(newErr("ERR", "DB index is out of range"))
	}
	ctx.Client.DB = int(db)
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func cmdAuth(ctx *Ctx, argv [][]byte) Outcome {
	want, ok := ctx.Config.Get("requirepass")
	if !ok || want == "" {
		return ctx.replyErr(newErr("ERR", "Client sent AUTH, but no password is set"))
	}
	if string(argv[1]) != want {
		return ctx.replyErr(newErr("ERR", "invalid password"))
	}
	ctx.Client.Out.OK()
	return OutcomeReplied
}

func cmdQuit(ctx *Ctx, argv [][]byte) Outcome {
	ctx.Client.Out.OK()
	ctx.Client.SetFlag(session.FlagCloseAfterReply)
	return OutcomeReplied
}
