// Package classinit implements the ClassInitCounter may-analysis: for every
// method in a program, it finds every instance of a tracked class hierarchy
// constructed within that method and records, flow-sensitively, how that instance is
// subsequently used (field reads/writes, method calls, escapes) up to a
// fixpoint over the method's control-flow graph.
package classinit

import (
	"fmt"
	"sort"

	"github.com/chaozhouzhang/redex/ir"
)

// FlowStatus records whether some fact holds on every path to the
// observation point (AllPaths) or only some of them (Conditional).
type FlowStatus int

const (
	AllPaths FlowStatus = iota
	Conditional
)

func (f FlowStatus) String() string {
	if f == AllPaths {
		return "all-paths"
	}
	return "conditional"
}

func joinFlow(a, b FlowStatus) FlowStatus {
	if a == Conditional || b == Conditional {
		return Conditional
	}
	return AllPaths
}

// SourceStatus classifies how many distinct source registers have fed a
// field write observed on a tracked value.
type SourceStatus int

const (
	OneReg SourceStatus = iota
	MultipleReg
	Unclear
)

// TrackedValue is the tagged-sum lattice element described by the data
// model: either a single construction site (ObjectUses) or a promoted set
// of construction sites (MergedUses). The implicit bottom element is the
// nil *TrackedValue; there is no materialized top.
type TrackedValue struct {
	merged bool

	// Set when !merged.
	inst ir.Instruction
	typ  *ir.Class

	// Set when merged.
	insts    map[ir.Instruction]struct{}
	types    map[*ir.Class]struct{}
	nullable bool

	flow FlowStatus

	// Usage is the usage record this value accumulates as the block
	// analyzer walks instructions that touch it. Shared by reference: a
	// promotion into a MergedUses absorbs both operands' usage records
	// rather than starting fresh.
	Usage *UsageRecord
}

// NewObjectUses allocates a fresh tracked value for a single construction
// instruction. Freshly constructed values hold on every path by
// construction (the instruction that makes them is what runs them).
func NewObjectUses(inst ir.Instruction, typ *ir.Class) *TrackedValue {
	return &TrackedValue{inst: inst, typ: typ, flow: AllPaths, Usage: NewUsageRecord()}
}

// IsMergedUses reports whether v represents a promoted, multi-site value.
func (v *TrackedValue) IsMergedUses() bool { return v != nil && v.merged }

// IsObjectUses reports whether v represents a single construction site.
func (v *TrackedValue) IsObjectUses() bool { return v != nil && !v.merged }

// Instruction returns the single construction instruction of an ObjectUses
// value. Panics if v is not an ObjectUses; callers must check IsObjectUses.
func (v *TrackedValue) Instruction() ir.Instruction {
	if v.merged {
		panic("classinit: Instruction called on a MergedUses value")
	}
	return v.inst
}

// Instructions returns the construction-instruction set of a MergedUses
// value. Panics if v is not a MergedUses.
func (v *TrackedValue) Instructions() map[ir.Instruction]struct{} {
	if !v.merged {
		panic("classinit: Instructions called on an ObjectUses value")
	}
	return v.insts
}

// Types returns the set of constructed types backing a MergedUses value.
func (v *TrackedValue) Types() map[*ir.Class]struct{} {
	if !v.merged {
		panic("classinit: Types called on an ObjectUses value")
	}
	return v.types
}

// Nullable reports whether null has been observed alongside this value.
// Only meaningful for MergedUses; an ObjectUses is never nullable.
func (v *TrackedValue) Nullable() bool { return v != nil && v.merged && v.nullable }

// Flow reports the created-flow status of v: whether the construction(s)
// backing it run on every path to this point, or only conditionally.
func (v *TrackedValue) Flow() FlowStatus { return v.flow }

// WithUsage returns a clone of v whose usage record has been cloned and
// passed to record for in-place updates. v itself, and whichever register
// file or block-exit snapshot still points to it, is left untouched — this
// is what lets the same construction's TrackedValue be threaded through a
// loop's repeated visits without corrupting the previous iteration's
// snapshot that the fixpoint test compares against.
func (v *TrackedValue) WithUsage(record func(u *UsageRecord)) *TrackedValue {
	c := v.clone()
	c.Usage = v.Usage.clone()
	record(c.Usage)
	return c
}

func (v *TrackedValue) clone() *TrackedValue {
	if v == nil {
		return nil
	}
	c := *v
	if v.merged {
		c.insts = make(map[ir.Instruction]struct{}, len(v.insts))
		for i := range v.insts {
			c.insts[i] = struct{}{}
		}
		c.types = make(map[*ir.Class]struct{}, len(v.types))
		for t := range v.types {
			c.types[t] = struct{}{}
		}
	}
	return &c
}

// Store interns MergedUses values by their construction-instruction set so
// that two independent promotions of the same set converge on the same
// shared record. A Store is scoped to a single method analysis; nothing
// about it is safe for concurrent use across methods (nor does it need to
// be, since the program driver partitions work one method per task).
type Store struct {
	byKey map[string]*TrackedValue
}

// NewStore returns an empty interning store for one method's analysis.
func NewStore() *Store {
	return &Store{byKey: make(map[string]*TrackedValue)}
}

// All returns every MergedUses value interned so far, in no particular
// order. Used by the program driver to populate the promoted-merged store.
func (s *Store) All() []*TrackedValue {
	out := make([]*TrackedValue, 0, len(s.byKey))
	for _, v := range s.byKey {
		out = append(out, v)
	}
	return out
}

func instSetKey(insts map[ir.Instruction]struct{}) string {
	ptrs := make([]string, 0, len(insts))
	for i := range insts {
		ptrs = append(ptrs, fmt.Sprintf("%p", i))
	}
	sort.Strings(ptrs)
	key := ""
	for _, p := range ptrs {
		key += p + ";"
	}
	return key
}

// intern returns the canonical MergedUses for the given instruction set,
// creating it on first use. An existing entry's flow and nullable flags are
// widened (never narrowed) to reflect the new observation.
func (s *Store) intern(insts map[ir.Instruction]struct{}, types map[*ir.Class]struct{}, nullable bool, flow FlowStatus) *TrackedValue {
	if len(insts) < 2 {
		panic("classinit: attempted to intern a MergedUses with fewer than two construction sites")
	}
	key := instSetKey(insts)
	if existing, ok := s.byKey[key]; ok {
		if flow == Conditional {
			existing.flow = Conditional
		}
		if nullable {
			existing.nullable = true
		}
		return existing
	}
	tv := &TrackedValue{merged: true, insts: insts, types: types, nullable: nullable, flow: flow, Usage: NewUsageRecord()}
	s.byKey[key] = tv
	return tv
}

func unionInstSets(a, b map[ir.Instruction]struct{}) map[ir.Instruction]struct{} {
	out := make(map[ir.Instruction]struct{}, len(a)+len(b))
	for i := range a {
		out[i] = struct{}{}
	}
	for i := range b {
		out[i] = struct{}{}
	}
	return out
}

func unionTypeSets(a, b map[*ir.Class]struct{}) map[*ir.Class]struct{} {
	out := make(map[*ir.Class]struct{}, len(a)+len(b))
	for t := range a {
		out[t] = struct{}{}
	}
	for t := range b {
		out[t] = struct{}{}
	}
	return out
}

func sameInstSet(a, b map[ir.Instruction]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if _, ok := b[i]; !ok {
			return false
		}
	}
	return true
}

// unify implements the structural part of combine_paths and merge that is
// shared between the two: given two non-bottom operands, decide whether
// they describe the same construction site, extend a MergedUses with a new
// site, or promote two distinct ObjectUses into a freshly interned
// MergedUses. flow is the already-resolved created-flow for the result.
//
// When a and b denote the same logical value (same single instruction, or
// an already-equal interned instruction set), their usage records are
// combined with the same discipline governing flow (combine_paths across
// sibling branches, merge across sequential composition) rather than
// picking one side arbitrarily — the same construction can pick up
// different field/method/escape facts along different paths before they
// reconverge. When a and b denote genuinely distinct constructions being
// grouped into one bucket for the first time, their histories are
// unrelated and are simply unioned via Absorb.
func unify(a, b *TrackedValue, store *Store, flow FlowStatus, seq bool) *TrackedValue {
	var result *TrackedValue
	switch {
	case !a.merged && !b.merged:
		if a.inst == b.inst {
			result = a.clone()
			result.flow = flow
			result.Usage = combineUsage(a.Usage, b.Usage, seq)
			return result
		}
		insts := map[ir.Instruction]struct{}{a.inst: {}, b.inst: {}}
		types := map[*ir.Class]struct{}{a.typ: {}, b.typ: {}}
		result = store.intern(insts, types, false, flow)
	case a.merged && !b.merged:
		if _, ok := a.insts[b.inst]; ok {
			result = a.clone()
			result.flow = flow
			result.Usage = combineUsage(a.Usage, b.Usage, seq)
			return result
		}
		insts := unionInstSets(a.insts, map[ir.Instruction]struct{}{b.inst: {}})
		types := unionTypeSets(a.types, map[*ir.Class]struct{}{b.typ: {}})
		result = store.intern(insts, types, a.nullable, flow)
	case !a.merged && b.merged:
		return unify(b, a, store, flow, seq)
	default: // both merged
		if sameInstSet(a.insts, b.insts) {
			result = a.clone()
			result.flow = flow
			result.nullable = a.nullable || b.nullable
			result.Usage = combineUsage(a.Usage, b.Usage, seq)
			return result
		}
		insts := unionInstSets(a.insts, b.insts)
		types := unionTypeSets(a.types, b.types)
		result = store.intern(insts, types, a.nullable || b.nullable, flow)
	}
	result.Usage.Absorb(a.Usage)
	result.Usage.Absorb(b.Usage)
	return result
}

func combineUsage(a, b *UsageRecord, seq bool) *UsageRecord {
	if seq {
		return a.Merge(b)
	}
	return a.CombinePaths(b)
}

// CombinePaths is the meet across sibling successors of the same
// predecessor (branch divergence): a predecessor that contributes bottom on
// one arm always Conditional-izes the result, since the value did not
// provably arise on that arm.
func CombinePaths(a, b *TrackedValue, store *Store) *TrackedValue {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		c := b.clone()
		c.flow = Conditional
		if c.merged {
			c.nullable = true
		}
		return c
	case b == nil:
		c := a.clone()
		c.flow = Conditional
		if c.merged {
			c.nullable = true
		}
		return c
	}
	return unify(a, b, store, joinFlow(a.flow, b.flow), false)
}

// Merge is sequential composition: the value flowing into a block merged
// with the value flowing out of it. Unlike CombinePaths, a bottom "this"
// side does not Conditional-ize a value freshly produced within the block
// (construction always runs when control reaches its instruction); bottom
// only forces Conditional when it is the "other" (outgoing) side, meaning
// the block's own processing lost track of the value.
func Merge(this, other *TrackedValue, store *Store) *TrackedValue {
	switch {
	case this == nil && other == nil:
		return nil
	case this == nil:
		return other.clone()
	case other == nil:
		c := this.clone()
		c.flow = Conditional
		if c.merged {
			c.nullable = true
		}
		return c
	}
	return unify(this, other, store, joinFlow(this.flow, other.flow), true)
}

// ConsistentWith reports whether other already captures everything this
// says, so that observing this would not widen the answer recorded in other
// — the fixpoint convergence test, called with the fresh value as this and
// the previously recorded one as other. Bottom is consistent_with anything;
// nothing but bottom is consistent_with bottom.
// It is reflexive but not symmetric: an ObjectUses is consistent_with
// any MergedUses that contains its construction site, but a MergedUses is
// never consistent_with a narrower ObjectUses, even one drawn from its own
// instruction set, because accepting that direction would let the driver
// stop before the wider answer had actually been produced.
func ConsistentWith(this, other *TrackedValue) bool {
	switch {
	case this == nil && other == nil:
		return true
	case this == nil:
		return true
	case other == nil:
		return false
	case !this.merged && !other.merged:
		return this.inst == other.inst
	case !this.merged && other.merged:
		_, ok := other.insts[this.inst]
		return ok
	case this.merged && !other.merged:
		return false
	default:
		return sameInstSet(this.insts, other.insts)
	}
}
