package command

// blockingPopCommand implements BLPOP/BRPOP: serve immediately when any
// listed key holds an element, otherwise park the client on every key
// until a push arrives or the deadline passes (spec §4.2 suspension
// points, §5 cancellation & timeouts).
func blockingPopCommand(front bool) HandlerFunc {
	return func(ctx *Ctx, argv [][]byte) Outcome {
		keys := argv[1 : len(argv)-1]
		timeoutSecs, err := parseFloat(argv[len(argv)-1])
		if err != nil || timeoutSecs < 0 {
			return ctx.replyErr(newErr("ERR", "timeout is not a float or out of range"))
		}

		// Fast path: serve immediately from the first key already
		// holding an element (spec §4.2: a blocking command that can be
		// satisfied immediately never actually blocks).
		for _, k := range keys {
			sh := ctx.shardFor(k)
			sh.Lock()
			o, found, lerr := listAtWrite(sh, string(k))
			if lerr != nil {
				sh.Unlock()
				return ctx.replyErr(lerr)
			}
			if found {
				ctx.writeBarrier(sh, string(k), o)
				var v []byte
				var ok bool
				if front {
					v, ok = o.List.PopFront()
				} else {
					v, ok = o.List.PopBack()
				}
				if ok {
					if o.List.Len() == 0 {
						sh.Delete(string(k))
					} else {
						sh.TouchWatchers(string(k))
					}
					sh.Unlock()
					// The append-log replays as a plain one-sided pop:
					// re-blocking during replay would stall the loader.
					op := "RPOP"
					if front {
						op = "LPOP"
					}
					ctx.RewriteArgv = [][]byte{[]byte(op), k}
					ctx.Client.Out.ArrayHeader(2)
					ctx.Client.Out.Bulk(k)
					ctx.Client.Out.Bulk(v)
					return OutcomeReplied
				}
			}
			sh.Unlock()
		}

		// Inside EXEC a blocking command must not park the client; the
		// transaction's reply array cannot be suspended halfway.
		if ctx.InExec {
			ctx.NoPropagate = true
			ctx.Client.Out.NilArray()
			return OutcomeReplied
		}

		// Nothing available: register as a blocker on every key and let
		// the worker cron wake this client once one of them is pushed
		// to, or time it out.
		ctx.Client.BlockedKeys = ctx.Client.BlockedKeys[:0]
		for _, k := range keys {
			sh := ctx.shardFor(k)
			sh.Lock()
			sh.AddBlocker(string(k), ctx.Client.ID)
			sh.Unlock()
			ctx.Client.BlockedKeys = append(ctx.Client.BlockedKeys, string(k))
		}
		if timeoutSecs == 0 {
			ctx.Client.BlockedDeadline = 0
		} else {
			ctx.Client.BlockedDeadline = nowMillis() + int64(timeoutSecs*1000)
		}
		return OutcomeBlocked
	}
}

var cmdBLPop = blockingPopCommand(true)
var cmdBRPop = blockingPopCommand(false)
