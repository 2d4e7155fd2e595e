package session

import "testing"

func TestFlagsSetClearHas(t *testing.T) {
	c := New(1, nil)
	if c.HasFlag(FlagMulti) {
		t.Fatal("expected no flags set initially")
	}
	c.SetFlag(FlagMulti | FlagDirtyCAS)
	if !c.HasFlag(FlagMulti) || !c.HasFlag(FlagDirtyCAS) {
		t.Fatal("expected both flags set")
	}
	c.ClearFlag(FlagDirtyCAS)
	if c.HasFlag(FlagDirtyCAS) {
		t.Fatal("expected FlagDirtyCAS cleared")
	}
	if !c.HasFlag(FlagMulti) {
		t.Fatal("expected FlagMulti to remain set")
	}
}

func TestMultiQueueAndEnd(t *testing.T) {
	c := New(1, nil)
	c.BeginMulti()
	c.QueueCommand([][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	c.QueueCommand([][]byte{[]byte("GET"), []byte("k")})
	queue := c.EndMulti()
	if len(queue) != 2 {
		t.Fatalf("expected 2 queued commands, got %d", len(queue))
	}
	if c.Multi.Active {
		t.Fatal("expected multi state cleared after EndMulti")
	}
}

func TestWatchAndUnwatch(t *testing.T) {
	c := New(1, nil)
	c.Watch(0, "k1")
	c.Watch(0, "k2")
	if len(c.WatchedKeys) != 2 {
		t.Fatalf("expected 2 watched keys, got %d", len(c.WatchedKeys))
	}
	c.Unwatch()
	if len(c.WatchedKeys) != 0 {
		t.Fatal("expected watched keys cleared")
	}
}

func TestJumpLifecycle(t *testing.T) {
	c := New(1, nil)
	cont := &Continuation{Kind: ContinuationClientList}
	c.StartJump(cont)
	if !c.HasFlag(FlagJumping) || c.Continuation == nil {
		t.Fatal("expected jumping flag and continuation set")
	}
	c.EndJump()
	if c.HasFlag(FlagJumping) || c.Continuation != nil {
		t.Fatal("expected jump state cleared")
	}
}
