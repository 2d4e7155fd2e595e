package command

import (
	"strconv"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

// setMembers returns every member of a Set object regardless of its
// encoding (intset vs hashtable), matching the dual representation
// object.NewIntSet/NewHashtableSet establish.
func setMembers(o *object.Object) []string {
	if o.Encoding == object.EncIntset {
		ints := o.IntSet.Members()
		out := make([]string, len(ints))
		for i, v := range ints {
			out[i] = strconv.FormatInt(v, 10)
		}
		return out
	}
	out := make([]string, 0, len(o.Set))
	for m := range o.Set {
		out = append(out, m)
	}
	return out
}

func setContains(o *object.Object, member string) bool {
	if o.Encoding == object.EncIntset {
		v, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return false
		}
		return o.IntSet.Contains(v)
	}
	_, ok := o.Set[member]
	return ok
}

// convertToHashtable upgrades an intset-encoded Set to the hashtable
// encoding, used once a non-integer member is added.
func convertToHashtable(o *object.Object) {
	if o.Encoding != object.EncIntset {
		return
	}
	s := make(map[string]struct{}, o.IntSet.Len())
	for _, v := range o.IntSet.Members() {
		s[strconv.FormatInt(v, 10)] = struct{}{}
	}
	o.Set = s
	o.Encoding = object.EncHashtable
	o.IntSet = nil
}

func setAdd(o *object.Object, member string) bool {
	if o.Encoding == object.EncIntset {
		if v, err := strconv.ParseInt(member, 10, 64); err == nil {
			return o.IntSet.Add(v)
		}
		convertToHashtable(o)
	}
	if _, exists := o.Set[member]; exists {
		return false
	}
	o.Set[member] = struct{}{}
	return true
}

func setRemove(o *object.Object, member string) bool {
	if o.Encoding == object.EncIntset {
		v, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return false
		}
		return o.IntSet.Remove(v)
	}
	if _, exists := o.Set[member]; !exists {
		return false
	}
	delete(o.Set, member)
	return true
}

func setLen(o *object.Object) int {
	if o.Encoding == object.EncIntset {
		return o.IntSet.Len()
	}
	return len(o.Set)
}

func setAt(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found := sh.LookupRead(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindSet {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func setAtWrite(sh *keyspace.Shard, key string) (*object.Object, bool, error) {
	o, found, _ := sh.LookupWrite(key)
	if !found {
		return nil, false, nil
	}
	if o.Kind != object.KindSet {
		return nil, false, errWrongType()
	}
	return o, true, nil
}

func cmdSAdd(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := setAtWrite(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		o = object.NewIntSet()
		sh.Set(key, o)
	} else {
		ctx.writeBarrier(sh, key, o)
	}
	var added int64
	for _, m := range argv[2:] {
		if setAdd(o, string(m)) {
			added++
		}
	}
	sh.TouchWatchers(key)
	ctx.Client.Out.Integer(added)
	return OutcomeReplied
}

func cmdSRem(ctx *Ctx, argv [][]byte) Outcome {
	key := string(argv[1])
	sh := ctx.shardFor(argv[1])
	sh.Lock()
	defer sh.Unlock()
	o, found, err := setAtWrite(sh, key)
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.writeBarrier(sh, key, o)
	var removed int64
	for _, m := range argv[2:] {
		if setRemove(o, string(m)) {
			removed++
		}
	}
	if setLen(o) == 0 {
		sh.Delete(key)
	} else if removed > 0 {
		sh.TouchWatchers(key)
	}
	ctx.Client.Out.Integer(removed)
	return OutcomeReplied
}

func cmdSMembers(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := setAt(sh, string(argv[1]))
	var members []string
	if err == nil && found {
		members = setMembers(o)
	}
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	ctx.Client.Out.ArrayHeader(len(members))
	for _, m := range members {
		ctx.Client.Out.Bulk([]byte(m))
	}
	return OutcomeReplied
}

func cmdSIsMember(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := setAt(sh, string(argv[1]))
	var is bool
	if err == nil && found {
		is = setContains(o, string(argv[2]))
	}
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if is {
		ctx.Client.Out.Integer(1)
	} else {
		ctx.Client.Out.Integer(0)
	}
	return OutcomeReplied
}

func cmdSCard(ctx *Ctx, argv [][]byte) Outcome {
	sh := ctx.shardFor(argv[1])
	sh.RLock()
	o, found, err := setAt(sh, string(argv[1]))
	sh.RUnlock()
	if err != nil {
		return ctx.replyErr(err)
	}
	if !found {
		ctx.Client.Out.Integer(0)
		return OutcomeReplied
	}
	ctx.Client.Out.Integer(int64(setLen(o)))
	return OutcomeReplied
}

// storeOp computes a set algebra result over argv[2:] and materializes it
// into argv[1], locking every source and destination shard in ascending
// order up front (spec §5 deadlock avoidance) so the whole operation runs
// under a single consistent lock set.
func storeOp(combine func(sets []map[string]struct{}) map[string]struct{}) HandlerFunc {
	return func(ctx *Ctx, argv [][]byte) Outcome {
		destKey := argv[1]
		srcKeys := argv[2:]
		all := append([][]byte{destKey}, srcKeys...)
		_, unlock := ctx.lockShards(all, true)
		defer unlock()

		sets := make([]map[string]struct{}, len(srcKeys))
		for i, k := range srcKeys {
			sh := ctx.shardFor(k)
			o, found, err := setAt(sh, string(k))
			if err != nil {
				return ctx.replyErr(err)
			}
			m := make(map[string]struct{})
			if found {
				for _, mem := range setMembers(o) {
					m[mem] = struct{}{}
				}
			}
			sets[i] = m
		}
		result := combine(sets)

		destSh := ctx.shardFor(destKey)
		if old, exists, _ := destSh.LookupWrite(string(destKey)); exists {
			ctx.writeBarrier(destSh, string(destKey), old)
		}
		if len(result) == 0 {
			destSh.Delete(string(destKey))
			ctx.Client.Out.Integer(0)
			return OutcomeReplied
		}
		dest := object.NewHashtableSet()
		dest.Set = result
		destSh.Set(string(destKey), dest)
		ctx.Client.Out.Integer(int64(len(result)))
		return OutcomeReplied
	}
}

func unionSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for m := range s {
			out[m] = struct{}{}
		}
	}
	return out
}

func intersectSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sets) == 0 {
		return out
	}
	for m := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[m]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[m] = struct{}{}
		}
	}
	return out
}

func diffSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sets) == 0 {
		return out
	}
	for m := range sets[0] {
		out[m] = struct{}{}
	}
	for _, s := range sets[1:] {
		for m := range s {
			delete(out, m)
		}
	}
	return out
}

var cmdSUnionStore = storeOp(unionSets)
var cmdSInterStore = storeOp(intersectSets)
var cmdSDiffStore = storeOp(diffSets)
