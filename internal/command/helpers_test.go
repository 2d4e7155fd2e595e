package command

import (
	"strings"
	"testing"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/session"
)

func newTestCtx(t *testing.T) *Ctx {
	t.Helper()
	ks := keyspace.New(1, 4)
	c := session.New(1, nil)
	return &Ctx{
		Client:   c,
		Keyspace: ks,
		Config:   NewRuntimeConfig(map[string]string{"maxmemory": "0"}),
	}
}

// flushed drains a client's writer and concatenates every chunk into one
// string for assertion against a raw RESP reply.
func flushed(c *session.Client) string {
	var sb strings.Builder
	for _, chunk := range c.Out.Flush() {
		sb.Write(chunk)
	}
	c.Out.Reset()
	return sb.String()
}

func argv(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
