package resp

import (
	"strconv"

	"github.com/vipshop/vire/internal/buf"
)

// inlineReplyCap is the size of a client's fixed inline reply buffer before
// writes spill into the overflow list (spec §4.1: "inline fixed buffer (16
// KiB per client)").
const inlineReplyCap = 16 * 1024

// mergeThreshold bounds how large two adjacent overflow nodes may be
// combined into one before the merge is skipped (spec §4.1: "Adjacent
// raw-string list tail nodes of cumulative length <= 16 KiB are merged").
const mergeThreshold = 16 * 1024

// Writer accumulates a client's outgoing replies: a small inline buffer
// tried first, and an overflow list of raw chunks used once the inline
// buffer is full. Shared constant replies (OK, nil, small integers, ...)
// are copied from pre-built byte slices, so the hottest reply paths never
// reformat them.
type Writer struct {
	inline   *buf.Buffer
	overflow [][]byte
	spilled  bool // once true, every further write goes to overflow, preserving order
}

// NewWriter returns an empty Writer with its inline buffer pre-sized.
func NewWriter() *Writer {
	return &Writer{inline: buf.New(inlineReplyCap)}
}

// Len returns the total number of bytes currently queued across the inline
// buffer and the overflow list.
func (w *Writer) Len() int {
	n := w.inline.Len()
	for _, c := range w.overflow {
		n += len(c)
	}
	return n
}

// Reset clears all queued reply bytes.
func (w *Writer) Reset() {
	w.inline.Reset()
	w.overflow = w.overflow[:0]
	w.spilled = false
}

// Flush returns the chunks to write to the socket, in order, without
// clearing the writer; the caller clears via Reset once the write
// succeeds.
func (w *Writer) Flush() [][]byte {
	if w.inline.Len() == 0 {
		return w.overflow
	}
	return append([][]byte{w.inline.Bytes()}, w.overflow...)
}

func (w *Writer) write(p []byte) {
	if !w.spilled && w.inline.Len()+len(p) <= inlineReplyCap {
		w.inline.Append(p)
		return
	}
	w.spilled = true
	if n := len(w.overflow); n > 0 {
		last := w.overflow[n-1]
		if len(last)+len(p) <= mergeThreshold {
			w.overflow[n-1] = append(last, p...)
			return
		}
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	w.overflow = append(w.overflow, cp)
}

// SimpleString writes a "+<s>\r\n" reply.
func (w *Writer) SimpleString(s string) {
	w.write([]byte{'+'})
	w.write([]byte(s))
	w.write(crlf)
}

// Error writes a "-<msg>\r\n" reply. msg should already start with the
// space-separated error token (ERR, WRONGTYPE, ...).
func (w *Writer) Error(msg string) {
	w.write([]byte{'-'})
	w.write([]byte(msg))
	w.write(crlf)
}

// Integer writes a ":<n>\r\n" reply, served from the shared small-integer
// table when n is in range so the hottest reply payloads (INCR, LLEN,
// EXISTS, ...) never reformat.
func (w *Writer) Integer(n int64) {
	if shared := SharedInteger(n); shared != nil {
		w.write(shared)
		return
	}
	w.write([]byte{':'})
	w.write([]byte(strconv.FormatInt(n, 10)))
	w.write(crlf)
}

// Bulk writes a "$<len>\r\n<data>\r\n" reply.
func (w *Writer) Bulk(data []byte) {
	w.write([]byte{'$'})
	w.write([]byte(strconv.Itoa(len(data))))
	w.write(crlf)
	w.write(data)
	w.write(crlf)
}

// NilBulk writes the "$-1\r\n" null bulk reply.
func (w *Writer) NilBulk() { w.write(nilBulk) }

// ArrayHeader writes a "*<n>\r\n" array header; the caller writes n
// elements with subsequent calls.
func (w *Writer) ArrayHeader(n int) {
	if n == 0 {
		w.write(ReplyEmptyArray)
		return
	}
	w.write([]byte{'*'})
	w.write([]byte(strconv.Itoa(n)))
	w.write(crlf)
}

// NilArray writes the "*-1\r\n" null array reply.
func (w *Writer) NilArray() { w.write(nilArray) }

var crlf = []byte("\r\n")

// Shared constant replies, pre-built so the same tokens are not
// reformatted on every call (spec §4.1: "a set of pre-allocated shared
// constant bulks for common tokens").
var (
	ReplyOK         = []byte("+OK\r\n")
	nilBulk         = []byte("$-1\r\n")
	nilArray        = []byte("*-1\r\n")
	ReplyPong       = []byte("+PONG\r\n")
	ReplyEmptyArray = []byte("*0\r\n")
)

// WriteShared appends a pre-built shared constant reply verbatim.
func (w *Writer) WriteShared(reply []byte) { w.write(reply) }

// OK writes the shared +OK reply.
func (w *Writer) OK() { w.write(ReplyOK) }

// Pong writes the shared +PONG reply.
func (w *Writer) Pong() { w.write(ReplyPong) }

// sharedInteger holds pre-rendered ":<n>\r\n" tokens for small integers, the
// most common reply payload (INCR, LLEN, EXISTS, ...).
var sharedInteger [10000][]byte

func init() {
	for i := range sharedInteger {
		sharedInteger[i] = []byte(":" + strconv.Itoa(i) + "\r\n")
	}
}

// SharedInteger returns a pre-rendered small-integer reply if n is in
// range, or nil if the caller should fall back to Integer.
func SharedInteger(n int64) []byte {
	if n >= 0 && n < int64(len(sharedInteger)) {
		return sharedInteger[n]
	}
	return nil
}
