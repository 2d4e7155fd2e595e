package command

import "fmt"

// respErr is the distinct RESP-facing error type named in SPEC_FULL.md
// A.2: internal functions return plain `error`, but anything that reaches
// a client's socket carries the space-separated error token Redis clients
// parse on (spec §6, §7).
type respErr struct {
	Kind string
	Msg  string
}

func (e *respErr) Error() string { return e.Kind + " " + e.Msg }

func newErr(kind, format string, args ...any) *respErr {
	return &respErr{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func errWrongType() *respErr {
	return &respErr{Kind: "WRONGTYPE", Msg: "Operation against a key holding the wrong kind of value"}
}

func errSyntax() *respErr {
	return &respErr{Kind: "ERR", Msg: "syntax error"}
}

func errNotInt() *respErr {
	return &respErr{Kind: "ERR", Msg: "value is not an integer or out of range"}
}

func errNotFloat() *respErr {
	return &respErr{Kind: "ERR", Msg: "value is not a valid float"}
}

func errUnknownCommand(name string) *respErr {
	return newErr("ERR", "unknown command '%s'", name)
}

func errWrongArity(name string) *respErr {
	return newErr("ERR", "wrong number of arguments for '%s' command", name)
}

func errOOM() *respErr {
	return &respErr{Kind: "OOM", Msg: "command not allowed when used memory > 'maxmemory'"}
}

// replyErr writes err as a RESP error, translating a bare error into a
// generic -ERR.
func (ctx *Ctx) replyErr(err error) Outcome {
	if re, ok := err.(*respErr); ok {
		ctx.Client.Out.Error(re.Error())
	} else {
		ctx.Client.Out.Error("ERR " + err.Error())
	}
	return OutcomeReplied
}
