package command

// Table is the command name -> entry registry Dispatch consults. Built
// once at init time; never mutated afterward (spec §4.6: "the command
// table is immutable after startup").
var Table map[string]*Command

func register(entries []*Command) map[string]*Command {
	t := make(map[string]*Command, len(entries))
	for _, e := range entries {
		t[e.Name] = e
	}
	return t
}

func init() {
	Table = register([]*Command{
		// strings
		{Name: "get", Handler: cmdGet, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "set", Handler: cmdSet, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "setnx", Handler: cmdSetNX, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "setex", Handler: cmdSetEXFamily(1000), Arity: 4, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "psetex", Handler: cmdSetEXFamily(1), Arity: 4, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "getset", Handler: cmdGetSet, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "append", Handler: cmdAppend, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "strlen", Handler: cmdStrlen, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "incr", Handler: cmdIncr, Arity: 2, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "decr", Handler: cmdDecr, Arity: 2, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "incrby", Handler: cmdIncrBy, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "decrby", Handler: cmdDecrBy, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "mget", Handler: cmdMGet, Arity: -2, Flags: FlagReadonly, FirstKey: 1, LastKey: -1, KeyStep: 1},
		{Name: "mset", Handler: cmdMSet, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: -1, KeyStep: 2},

		// keys
		{Name: "del", Handler: cmdDel, Arity: -2, Flags: FlagWrite, FirstKey: 1, LastKey: -1, KeyStep: 1},
		{Name: "exists", Handler: cmdExists, Arity: -2, Flags: FlagReadonly, FirstKey: 1, LastKey: -1, KeyStep: 1},
		{Name: "expire", Handler: cmdExpire, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "pexpire", Handler: cmdPExpire, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "expireat", Handler: cmdExpireAt, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "pexpireat", Handler: cmdPExpireAt, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "ttl", Handler: cmdTTL, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "pttl", Handler: cmdPTTL, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "persist", Handler: cmdPersist, Arity: 2, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "rename", Handler: cmdRename, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 2, KeyStep: 1},
		{Name: "renamenx", Handler: cmdRenameNX, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 2, KeyStep: 1},
		{Name: "type", Handler: cmdType, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "keys", Handler: cmdKeys, Arity: 2, Flags: FlagReadonly | FlagAdmin},
		{Name: "scan", Handler: cmdScan, Arity: -2, Flags: FlagReadonly},
		{Name: "move", Handler: cmdMove, Arity: 3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},

		// lists
		{Name: "lpush", Handler: cmdLPush, Arity: -3, Flags: FlagWrite | FlagBlocking, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "rpush", Handler: cmdRPush, Arity: -3, Flags: FlagWrite | FlagBlocking, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "lpop", Handler: cmdLPop, Arity: 2, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "rpop", Handler: cmdRPop, Arity: 2, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "llen", Handler: cmdLLen, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "lindex", Handler: cmdLIndex, Arity: 3, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "lrange", Handler: cmdLRange, Arity: 4, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "blpop", Handler: cmdBLPop, Arity: -3, Flags: FlagWrite | FlagBlocking, FirstKey: 1, LastKey: -2, KeyStep: 1},
		{Name: "brpop", Handler: cmdBRPop, Arity: -3, Flags: FlagWrite | FlagBlocking, FirstKey: 1, LastKey: -2, KeyStep: 1},

		// sets
		{Name: "sadd", Handler: cmdSAdd, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "srem", Handler: cmdSRem, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "smembers", Handler: cmdSMembers, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "sismember", Handler: cmdSIsMember, Arity: 3, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "scard", Handler: cmdSCard, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "sunionstore", Handler: cmdSUnionStore, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: -1, KeyStep: 1},
		{Name: "sinterstore", Handler: cmdSInterStore, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: -1, KeyStep: 1},
		{Name: "sdiffstore", Handler: cmdSDiffStore, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: -1, KeyStep: 1},

		// hashes
		{Name: "hset", Handler: cmdHSet, Arity: -4, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "hget", Handler: cmdHGet, Arity: 3, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "hdel", Handler: cmdHDel, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "hexists", Handler: cmdHExists, Arity: 3, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "hlen", Handler: cmdHLen, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "hgetall", Handler: cmdHGetAll, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},

		// sorted sets
		{Name: "zadd", Handler: cmdZAdd, Arity: -4, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "zscore", Handler: cmdZScore, Arity: 3, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "zrem", Handler: cmdZRem, Arity: -3, Flags: FlagWrite, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "zcard", Handler: cmdZCard, Arity: 2, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},
		{Name: "zrange", Handler: cmdZRange, Arity: -4, Flags: FlagReadonly, FirstKey: 1, LastKey: 1, KeyStep: 1},

		// connection
		{Name: "ping", Handler: cmdPing, Arity: -1, Flags: FlagLoading},
		{Name: "echo", Handler: cmdEcho, Arity: 2, Flags: FlagLoading},
		{Name: "select", Handler: cmdSelect, Arity: 2, Flags: FlagLoading},
		{Name: "auth", Handler: cmdAuth, Arity: 2, Flags: FlagLoading},
		{Name: "quit", Handler: cmdQuit, Arity: -1, Flags: FlagLoading},

		// transactions
		{Name: "multi", Handler: cmdMulti, Arity: 1, Flags: FlagNoMulti | FlagLoading},
		{Name: "discard", Handler: cmdDiscard, Arity: 1, Flags: FlagNoMulti | FlagLoading},
		{Name: "exec", Handler: cmdExec, Arity: 1, Flags: FlagNoMulti | FlagLoading},
		{Name: "watch", Handler: cmdWatch, Arity: -2, Flags: FlagNoMulti | FlagLoading},
		{Name: "unwatch", Handler: cmdUnwatch, Arity: 1, Flags: FlagNoMulti | FlagLoading},

		// server/admin
		{Name: "client", Handler: cmdClient, Arity: -2, Flags: FlagAdmin | FlagNoMulti},
		{Name: "config", Handler: cmdConfig, Arity: -2, Flags: FlagAdmin},
		{Name: "dbsize", Handler: cmdDBSize, Arity: 1, Flags: FlagReadonly},
		{Name: "flushdb", Handler: cmdFlushDB, Arity: 1, Flags: FlagWrite | FlagAdmin},
		{Name: "command", Handler: cmdCommand, Arity: 1, Flags: FlagLoading},
		{Name: "info", Handler: cmdInfo, Arity: -1, Flags: FlagLoading},
		{Name: "shutdown", Handler: cmdShutdown, Arity: -1, Flags: FlagAdmin | FlagNoMulti},
	})
}
