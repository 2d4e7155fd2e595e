package resp

import (
	"bytes"
	"testing"

	"github.com/vipshop/vire/internal/buf"
)

func drain(t *testing.T, p *Parser) ([][]byte, bool) {
	t.Helper()
	status, argv, perr := p.Next()
	if perr != nil {
		t.Fatalf("unexpected protocol error: %v", perr)
	}
	if status == NeedMore {
		return nil, false
	}
	return argv, true
}

func TestMultibulkWholeRequestAtOnce(t *testing.T) {
	in := buf.New(64)
	in.AppendString("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	p := NewParser(in)
	argv, ok := drain(t, p)
	if !ok {
		t.Fatal("expected request to be ready")
	}
	if len(argv) != 2 || string(argv[0]) != "GET" || string(argv[1]) != "foo" {
		t.Fatalf("unexpected argv: %v", argv)
	}
}

func TestMultibulkFedByteByByte(t *testing.T) {
	full := []byte("*1\r\n$4\r\nPING\r\n")
	in := buf.New(8)
	p := NewParser(in)
	var argv [][]byte
	var ok bool
	for i := 0; i < len(full); i++ {
		in.AppendByte(full[i])
		argv, ok = drain(t, p)
		if ok {
			break
		}
	}
	if !ok {
		t.Fatal("expected request to eventually be ready")
	}
	if len(argv) != 1 || string(argv[0]) != "PING" {
		t.Fatalf("unexpected argv: %v", argv)
	}
}

func TestInlineRequest(t *testing.T) {
	in := buf.New(32)
	in.AppendString("PING\r\n")
	p := NewParser(in)
	argv, ok := drain(t, p)
	if !ok || len(argv) != 1 || string(argv[0]) != "PING" {
		t.Fatalf("unexpected result: %v ok=%v", argv, ok)
	}
}

func TestInlineRequestWithQuotedArgs(t *testing.T) {
	in := buf.New(32)
	in.AppendString(`SET key "hello world"` + "\r\n")
	p := NewParser(in)
	argv, ok := drain(t, p)
	if !ok {
		t.Fatal("expected ready")
	}
	want := []string{"SET", "key", "hello world"}
	if len(argv) != len(want) {
		t.Fatalf("argv=%v", argv)
	}
	for i, w := range want {
		if string(argv[i]) != w {
			t.Fatalf("index %d: got %q want %q", i, argv[i], w)
		}
	}
}

func TestUnbalancedQuotesIsProtocolError(t *testing.T) {
	in := buf.New(32)
	in.AppendString(`SET key "unterminated` + "\r\n")
	p := NewParser(in)
	status, _, perr := p.Next()
	if status != ProtocolError || perr == nil {
		t.Fatalf("expected protocol error, got status=%v perr=%v", status, perr)
	}
}

func TestInvalidMultibulkCountIsProtocolError(t *testing.T) {
	in := buf.New(32)
	in.AppendString("*abc\r\n")
	p := NewParser(in)
	status, _, perr := p.Next()
	if status != ProtocolError || perr == nil {
		t.Fatal("expected protocol error for non-numeric multibulk count")
	}
}

func TestMultibulkExceedsMaxCountIsProtocolError(t *testing.T) {
	in := buf.New(32)
	in.AppendString("*99999999\r\n")
	p := NewParser(in)
	status, _, perr := p.Next()
	if status != ProtocolError || perr == nil {
		t.Fatal("expected protocol error for oversized multibulk count")
	}
}

func TestTwoRequestsPipelinedInOneFeed(t *testing.T) {
	in := buf.New(64)
	in.AppendString("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")
	p := NewParser(in)
	argv1, ok1 := drain(t, p)
	argv2, ok2 := drain(t, p)
	if !ok1 || !ok2 {
		t.Fatal("expected both requests ready")
	}
	if !bytes.Equal(argv1[0], []byte("PING")) || !bytes.Equal(argv2[0], []byte("PING")) {
		t.Fatalf("unexpected argvs: %v %v", argv1, argv2)
	}
	if in.Len() != 0 {
		t.Fatalf("expected input buffer fully consumed, got %d bytes left", in.Len())
	}
}

func TestBigBulkTriggersRebase(t *testing.T) {
	big := bytes.Repeat([]byte("x"), bigBulkRebase+10)
	in := buf.New(64)
	in.AppendString("*2\r\n$3\r\nSET\r\n")
	in.AppendString("$")
	in.AppendString(itoaTest(len(big)))
	in.AppendString("\r\n")
	in.Append(big)
	in.AppendString("\r\n")
	p := NewParser(in)
	argv, ok := drain(t, p)
	if !ok {
		t.Fatal("expected ready")
	}
	if len(argv) != 2 || !bytes.Equal(argv[1], big) {
		t.Fatalf("big bulk mismatch, len=%d", len(argv[1]))
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func TestEmptyMultibulkIsConsumed(t *testing.T) {
	in := buf.New(8)
	in.AppendString("*0\r\n")
	p := NewParser(in)
	status, argv, perr := p.Next()
	if perr != nil || status != Ready || len(argv) != 0 {
		t.Fatalf("expected empty request ready, got status=%v argv=%v perr=%v", status, argv, perr)
	}
	if in.Len() != 0 {
		t.Fatalf("expected buffer fully consumed, got %d bytes left", in.Len())
	}
}
