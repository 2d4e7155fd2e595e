package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/vipshop/vire/internal/object"
	"github.com/zhuyie/golzf"
)

// lzfMinLen is the shortest raw-string payload worth running through LZF;
// below this the extra original-length varint usually costs more than it saves
// (mirrors the rdb_string.go decoder's implicit assumption that LZF blobs
// carry a real payload).
const lzfMinLen = 32

// recordWriter serializes Objects into a shard's snapshot stream using a
// small TLV encoding: kind byte, key, then a kind-specific body. Callers
// dump exactly one Object per call, mirroring the write barrier's
// per-Object (or per-element, for the size this implementation targets)
// granularity (spec §4.5 "serialize the Object... to the temp file
// buffer").
type recordWriter struct {
	w *bufio.Writer
}

func newRecordWriter(w io.Writer) *recordWriter {
	return &recordWriter{w: bufio.NewWriter(w)}
}

func (rw *recordWriter) flush() error { return rw.w.Flush() }

func (rw *recordWriter) writeUvarint(n uint64) {
	var buf [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(buf[:], n)
	rw.w.Write(buf[:l])
}

func (rw *recordWriter) writeBytes(b []byte) {
	rw.writeUvarint(uint64(len(b)))
	rw.w.Write(b)
}

// writeString writes b as either a raw length-prefixed blob or, when it
// compresses usefully, an LZF-compressed blob (flag byte 1): original
// length, then compressed length and payload. The RDB_ENC_LZF layout
// `rdb_string.go.readLZFString` decodes carries the same fields with the
// compressed length first.
func (rw *recordWriter) writeString(b []byte) {
	if len(b) < lzfMinLen {
		rw.w.WriteByte(0)
		rw.writeBytes(b)
		return
	}
	dst := make([]byte, len(b))
	n, err := lzf.Compress(b, dst)
	if err != nil || n == 0 || n >= len(b) {
		rw.w.WriteByte(0)
		rw.writeBytes(b)
		return
	}
	rw.w.WriteByte(1)
	rw.writeUvarint(uint64(len(b)))
	rw.writeBytes(dst[:n])
}

// writeObject serializes one key/Object pair plus its absolute-ms expiry
// (0 = none).
func (rw *recordWriter) writeObject(key string, o *object.Object, expiresAt int64) {
	rw.w.WriteByte(byte(o.Kind))
	rw.writeBytes([]byte(key))
	rw.writeUvarint(uint64(expiresAt))
	switch o.Kind {
	case object.KindString:
		rw.writeString(o.StringBytes())
	case object.KindList:
		elems := o.List.Range(0, -1)
		rw.writeUvarint(uint64(len(elems)))
		for _, e := range elems {
			rw.writeString(e)
		}
	case object.KindSet:
		if o.IntSet != nil {
			members := o.IntSet.Members()
			rw.writeUvarint(uint64(len(members)))
			for _, m := range members {
				rw.writeString([]byte(strconv.FormatInt(m, 10)))
			}
		} else {
			rw.writeUvarint(uint64(len(o.Set)))
			for m := range o.Set {
				rw.writeString([]byte(m))
			}
		}
	case object.KindHash:
		rw.writeUvarint(uint64(len(o.Hash)))
		for f, v := range o.Hash {
			rw.writeString([]byte(f))
			rw.writeString(v.Bytes())
		}
	case object.KindZSet:
		entries := o.ZSet.Range(0, -1)
		rw.writeUvarint(uint64(len(entries)))
		for _, e := range entries {
			rw.writeString([]byte(e.Member))
			var sb [8]byte
			binary.BigEndian.PutUint64(sb[:], floatBits(e.Score))
			rw.w.Write(sb[:])
		}
	}
}

// recordReader is the writeObject inverse, used by Load.
type recordReader struct {
	r *bufio.Reader
}

func newRecordReader(r io.Reader) *recordReader {
	return &recordReader{r: bufio.NewReader(r)}
}

func (rr *recordReader) readUvarint() (uint64, error) {
	return binary.ReadUvarint(rr.r)
}

func (rr *recordReader) readBytes() ([]byte, error) {
	n, err := rr.readUvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rr.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (rr *recordReader) readString() ([]byte, error) {
	flag, err := rr.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == 0 {
		return rr.readBytes()
	}
	origLen, err := rr.readUvarint()
	if err != nil {
		return nil, err
	}
	compressed, err := rr.readBytes()
	if err != nil {
		return nil, err
	}
	dst := make([]byte, origLen)
	n, err := lzf.Decompress(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("persistence: LZF decompress: %w", err)
	}
	if uint64(n) != origLen {
		return nil, fmt.Errorf("persistence: LZF decompressed length mismatch: want %d got %d", origLen, n)
	}
	return dst, nil
}

// decodedRecord is one key's worth of decoded snapshot state, handed to
// the loader to install into a Shard.
type decodedRecord struct {
	key       string
	kind      object.Kind
	expiresAt int64
	obj       *object.Object
}

func (rr *recordReader) readObject() (*decodedRecord, error) {
	kindByte, err := rr.r.ReadByte()
	if err != nil {
		return nil, err
	}
	keyB, err := rr.readBytes()
	if err != nil {
		return nil, err
	}
	expiresAt, err := rr.readUvarint()
	if err != nil {
		return nil, err
	}
	rec := &decodedRecord{key: string(keyB), kind: object.Kind(kindByte), expiresAt: int64(expiresAt)}
	switch rec.kind {
	case object.KindString:
		v, err := rr.readString()
		if err != nil {
			return nil, err
		}
		rec.obj = object.NewRawString(v)
	case object.KindList:
		n, err := rr.readUvarint()
		if err != nil {
			return nil, err
		}
		o := object.NewList()
		for i := uint64(0); i < n; i++ {
			v, err := rr.readString()
			if err != nil {
				return nil, err
			}
			o.List.PushBack(v)
		}
		rec.obj = o
	case object.KindSet:
		n, err := rr.readUvarint()
		if err != nil {
			return nil, err
		}
		o := object.NewHashtableSet()
		for i := uint64(0); i < n; i++ {
			v, err := rr.readString()
			if err != nil {
				return nil, err
			}
			o.Set[string(v)] = struct{}{}
		}
		rec.obj = o
	case object.KindHash:
		n, err := rr.readUvarint()
		if err != nil {
			return nil, err
		}
		o := object.NewHash()
		for i := uint64(0); i < n; i++ {
			f, err := rr.readString()
			if err != nil {
				return nil, err
			}
			v, err := rr.readString()
			if err != nil {
				return nil, err
			}
			o.Hash[string(f)] = bufFromBytes(v)
		}
		rec.obj = o
	case object.KindZSet:
		n, err := rr.readUvarint()
		if err != nil {
			return nil, err
		}
		o := object.NewZSet()
		for i := uint64(0); i < n; i++ {
			m, err := rr.readString()
			if err != nil {
				return nil, err
			}
			var sb [8]byte
			if _, err := io.ReadFull(rr.r, sb[:]); err != nil {
				return nil, err
			}
			o.ZSet.Insert(string(m), bitsFloat(binary.BigEndian.Uint64(sb[:])))
		}
		rec.obj = o
	default:
		return nil, fmt.Errorf("persistence: unknown object kind %d", kindByte)
	}
	return rec, nil
}
