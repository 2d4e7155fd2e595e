// Package object implements Object, the single universal value type stored
// under every key (spec §3 Object). An Object carries a kind, an encoding
// variant, an access-time used for LRU eviction sampling, and a version
// counter the persistence engine uses to know whether this Object (or, for
// the "big" collection encodings, one of its elements) has already been
// written out in the current snapshot pass (spec §4.5 write barriers).
package object

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/vipshop/vire/internal/buf"
	"github.com/vipshop/vire/internal/structs/intset"
	"github.com/vipshop/vire/internal/structs/quicklist"
	"github.com/vipshop/vire/internal/structs/skiplist"
)

// Kind is the Redis-visible type of a value.
type Kind uint8

const (
	KindString Kind = iota
	KindList
	KindSet
	KindHash
	KindZSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindZSet:
		return "zset"
	default:
		return "unknown"
	}
}

// Encoding is the in-memory representation backing a Kind.
type Encoding uint8

const (
	EncInt Encoding = iota
	EncRaw
	EncIntset
	EncHashtable
	EncPackedList // quicklist for List
	EncSkiplist   // skiplist+dict for ZSet
)

// Object is the tagged, versioned value stored in a Shard's dict.
//
// A freshly created Object is never "shared"; an Object flagged with
// MarkShared is read-only and must be cloned before any mutation — see
// CloneForWrite.
type Object struct {
	Kind     Kind
	Encoding Encoding
	Version  uint64 // bumped when this Object has been fully dumped for the current snapshot

	shared bool  // true for constant, shared objects: never mutated, never freed early
	access int64 // unix ms of last access, atomic

	Int    int64                  // valid when Encoding == EncInt
	Str    *buf.Buffer            // valid when Kind == KindString, Encoding == EncRaw
	List   *quicklist.List        // valid when Kind == KindList
	IntSet *intset.Set            // valid when Kind == KindSet, Encoding == EncIntset
	Set    map[string]struct{}    // valid when Kind == KindSet, Encoding == EncHashtable
	Hash   map[string]*buf.Buffer // valid when Kind == KindHash
	ZSet   *skiplist.ZSet         // valid when Kind == KindZSet

	// FieldVersions tracks per-element versions for the "big" hashtable and
	// skiplist encodings, enabling the persistence engine's write barrier to
	// dump a single field/member instead of the whole collection (spec
	// §4.5: "Field-level version tracking allows a per-element write
	// barrier").
	FieldVersions map[string]uint64
}

func now() int64 { return time.Now().UnixMilli() }

// NewInt returns a string Object encoded as an integer.
func NewInt(v int64) *Object {
	return &Object{Kind: KindString, Encoding: EncInt, Int: v, access: now()}
}

// NewRawString returns a string Object holding arbitrary bytes.
func NewRawString(b []byte) *Object {
	return &Object{Kind: KindString, Encoding: EncRaw, Str: buf.FromBytes(append([]byte(nil), b...)), access: now()}
}

// NewList returns an empty List Object.
func NewList() *Object {
	return &Object{Kind: KindList, Encoding: EncPackedList, List: quicklist.New(), access: now()}
}

// NewIntSet returns an empty Set Object using the intset encoding.
func NewIntSet() *Object {
	return &Object{Kind: KindSet, Encoding: EncIntset, IntSet: intset.New(), access: now()}
}

// NewHashtableSet returns an empty Set Object using the hashtable encoding.
func NewHashtableSet() *Object {
	return &Object{Kind: KindSet, Encoding: EncHashtable, Set: make(map[string]struct{}), FieldVersions: make(map[string]uint64), access: now()}
}

// NewHash returns an empty Hash Object.
func NewHash() *Object {
	return &Object{Kind: KindHash, Encoding: EncHashtable, Hash: make(map[string]*buf.Buffer), FieldVersions: make(map[string]uint64), access: now()}
}

// NewZSet returns an empty ZSet Object.
func NewZSet() *Object {
	return &Object{Kind: KindZSet, Encoding: EncSkiplist, ZSet: skiplist.New(), FieldVersions: make(map[string]uint64), access: now()}
}

// MarkShared flags o as a constant, read-only object. Shared objects are
// handed out by value-identity (e.g. the small-integer cache) and must
// never be mutated in place.
func (o *Object) MarkShared() *Object {
	o.shared = true
	return o
}

// IsShared reports whether o is a constant object that must be cloned
// before any in-place mutation.
func (o *Object) IsShared() bool { return o.shared }

// Touch records the current time as the object's last access, used by the
// LRU eviction sampler.
func (o *Object) Touch() { atomic.StoreInt64(&o.access, now()) }

// IdleMillis returns how long it has been since Touch was last called.
func (o *Object) IdleMillis() int64 { return now() - atomic.LoadInt64(&o.access) }

// CloneForWrite returns o unchanged if it is not shared, or a deep,
// non-shared copy if it is — the copy-on-write half of the design notes'
// replacement for reference-counted constant objects.
func (o *Object) CloneForWrite() *Object {
	if !o.shared {
		return o
	}
	clone := *o
	clone.shared = false
	if o.Str != nil {
		clone.Str = o.Str.Clone()
	}
	return &clone
}

// StringBytes returns the string Object's value as bytes regardless of its
// integer/raw encoding, used by read commands (GET, GETRANGE, STRLEN, ...).
func (o *Object) StringBytes() []byte {
	if o.Encoding == EncInt {
		return []byte(itoa(o.Int))
	}
	return o.Str.Bytes()
}

func itoa(v int64) string {
	// avoid importing strconv at the call site repeatedly; kept trivial on
	// purpose since this is on the hot GET path.
	if v == 0 {
		return "0"
	}
	if v == math.MinInt64 {
		return "-9223372036854775808"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
