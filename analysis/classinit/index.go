package classinit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chaozhouzhang/redex/internal/funcutil"
	"github.com/chaozhouzhang/redex/ir"
)

type instKey struct {
	class  *ir.Class
	method *ir.Method
	inst   ir.Instruction
}

// InitIndex is the four-level class/method/instruction/records map
// (component F): it records, per construction instruction, every final
// ObjectUses observed for it, plus a count of how many times the block
// analyzer actually processed that instruction (a construction inside a
// loop body is counted once per visit, even though only the final
// ObjectUses for it is retained).
type InitIndex struct {
	counts map[instKey]int
	table  map[*ir.Class]map[*ir.Method]map[ir.Instruction][]*TrackedValue
}

// NewInitIndex returns an empty init index.
func NewInitIndex() *InitIndex {
	return &InitIndex{
		counts: map[instKey]int{},
		table:  map[*ir.Class]map[*ir.Method]map[ir.Instruction][]*TrackedValue{},
	}
}

// AddInit records that the block analyzer processed construction
// instruction inst once more, in the given class/method. Called on every
// visit to the instruction's block, including repeat visits while the
// fixpoint driver converges.
func (idx *InitIndex) AddInit(class *ir.Class, method *ir.Method, inst ir.Instruction) {
	idx.counts[instKey{class, method, inst}]++
}

// UpdateObject stores the final usage record for one ObjectUses value,
// keyed by its own construction instruction. Called once per surviving
// ObjectUses after a method's analysis reaches fixpoint. Panics if tv is a
// MergedUses: the init index holds only single-site records, per the
// invariant that every stored record's construction instruction equals its
// key.
func (idx *InitIndex) UpdateObject(class *ir.Class, method *ir.Method, tv *TrackedValue) {
	if tv.IsMergedUses() {
		panic("classinit: UpdateObject called with a MergedUses value")
	}
	byMethod, ok := idx.table[class]
	if !ok {
		byMethod = map[*ir.Method]map[ir.Instruction][]*TrackedValue{}
		idx.table[class] = byMethod
	}
	byInst, ok := byMethod[method]
	if !ok {
		byInst = map[ir.Instruction][]*TrackedValue{}
		byMethod[method] = byInst
	}
	inst := tv.Instruction()
	byInst[inst] = append(byInst[inst], tv)
}

// Count returns how many times inst was processed within class/method.
func (idx *InitIndex) Count(class *ir.Class, method *ir.Method, inst ir.Instruction) int {
	return idx.counts[instKey{class, method, inst}]
}

// ForMethod returns every ObjectUses recorded for class/method, across all
// of its construction instructions.
func (idx *InitIndex) ForMethod(class *ir.Class, method *ir.Method) []*TrackedValue {
	byMethod, ok := idx.table[class]
	if !ok {
		return nil
	}
	byInst, ok := byMethod[method]
	if !ok {
		return nil
	}
	var out []*TrackedValue
	for _, records := range byInst {
		out = append(out, records...)
	}
	return out
}

// ForType returns the full method table recorded for class.
func (idx *InitIndex) ForType(class *ir.Class) map[*ir.Method]map[ir.Instruction][]*TrackedValue {
	return idx.table[class]
}

// Table returns the full class/method/instruction table (spec's
// type_to_inits query).
func (idx *InitIndex) Table() map[*ir.Class]map[*ir.Method]map[ir.Instruction][]*TrackedValue {
	return idx.table
}

// merge folds other into idx in place, for use as the work queue's
// reducer. The program driver partitions methods one-per-task, so distinct
// tasks never write the same (class, method) slot; merging is a structural
// union rather than a conflict resolution.
func (idx *InitIndex) merge(other *InitIndex) {
	for k, c := range other.counts {
		idx.counts[k] += c
	}
	for class, byMethod := range other.table {
		for method, byInst := range byMethod {
			for _, records := range byInst {
				for _, tv := range records {
					idx.UpdateObject(class, method, tv)
				}
			}
		}
	}
}

// MergedStore holds every promoted MergedUses value, grouped by the
// class/method whose analysis produced it (spec's "merged_uses()" query).
type MergedStore struct {
	perMethod map[*ir.Class]map[*ir.Method][]*TrackedValue
}

// NewMergedStore returns an empty merged-value store.
func NewMergedStore() *MergedStore {
	return &MergedStore{perMethod: map[*ir.Class]map[*ir.Method][]*TrackedValue{}}
}

// Add records every MergedUses value interned while analyzing class/method.
func (s *MergedStore) Add(class *ir.Class, method *ir.Method, values []*TrackedValue) {
	if len(values) == 0 {
		return
	}
	byMethod, ok := s.perMethod[class]
	if !ok {
		byMethod = map[*ir.Method][]*TrackedValue{}
		s.perMethod[class] = byMethod
	}
	byMethod[method] = append(byMethod[method], values...)
}

// For returns the MergedUses values promoted while analyzing class/method.
func (s *MergedStore) For(class *ir.Class, method *ir.Method) []*TrackedValue {
	byMethod, ok := s.perMethod[class]
	if !ok {
		return nil
	}
	return byMethod[method]
}

// All returns the full per-class/per-method merged-value table.
func (s *MergedStore) All() map[*ir.Class]map[*ir.Method][]*TrackedValue {
	return s.perMethod
}

func (s *MergedStore) merge(other *MergedStore) {
	for class, byMethod := range other.perMethod {
		for method, values := range byMethod {
			s.Add(class, method, values)
		}
	}
}

// ProgramIndex bundles the init index and the merged-value store: together
// they are the accumulated output of the program driver (component H),
// threaded through the work queue's map/reduce as its Output type.
type ProgramIndex struct {
	Index  *InitIndex
	Merged *MergedStore
}

// NewProgramIndex returns an empty accumulator, suitable as the seed value
// passed to the work queue's RunAll.
func NewProgramIndex() *ProgramIndex {
	return &ProgramIndex{Index: NewInitIndex(), Merged: NewMergedStore()}
}

// Reduce associatively combines two ProgramIndex accumulators into a fresh
// one, leaving both arguments unchanged; it is the reducer the work queue
// applies both per-worker and at the final join.
func Reduce(a, b *ProgramIndex) *ProgramIndex {
	out := NewProgramIndex()
	out.Index.merge(a.Index)
	out.Index.merge(b.Index)
	out.Merged.merge(a.Merged)
	out.Merged.merge(b.Merged)
	return out
}

// TypeToInits returns the init index's full class/method/instruction table.
func (p *ProgramIndex) TypeToInits() map[*ir.Class]map[*ir.Method]map[ir.Instruction][]*TrackedValue {
	return p.Index.Table()
}

// MergedUses returns every MergedUses value promoted during analysis,
// keyed by the class/method that produced it.
func (p *ProgramIndex) MergedUses() map[*ir.Class]map[*ir.Method][]*TrackedValue {
	return p.Merged.All()
}

// AllUsesFrom returns every tracked value observed in class/method, both
// the ObjectUses retained in the init index and the MergedUses promoted
// during its analysis.
func (p *ProgramIndex) AllUsesFrom(class *ir.Class, method *ir.Method) []*TrackedValue {
	out := append([]*TrackedValue{}, p.Index.ForMethod(class, method)...)
	out = append(out, p.Merged.For(class, method)...)
	return out
}

// DebugShowTable renders a human-readable dump of the accumulated index,
// sorted by class then method name, and by description within a method, so
// output is stable across runs despite the non-deterministic scheduling
// order of the work queue.
func (p *ProgramIndex) DebugShowTable() string {
	var b strings.Builder
	classes := funcutil.Keys(p.Index.table)
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })

	for _, class := range classes {
		fmt.Fprintf(&b, "%s\n", class.Name)
		methods := funcutil.Keys(p.Index.table[class])
		sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

		for _, method := range methods {
			uses := p.AllUsesFrom(class, method)
			fmt.Fprintf(&b, "  %s: %d tracked value(s)\n", method.Name, len(uses))
			descs := make([]string, 0, len(uses))
			for _, tv := range uses {
				descs = append(descs, describeTrackedValue(tv))
			}
			sort.Strings(descs)
			for _, d := range descs {
				fmt.Fprintf(&b, "    %s\n", d)
			}
		}
	}
	return b.String()
}

// Finding is one class/method entry of the JSON report, grounded on the
// same flat sorted-slice shape other analyses in this module use for their
// -json output.
type Finding struct {
	Class        string
	Method       string
	TrackedCount int
	Descriptions []string
}

// Findings renders the accumulated index as a sorted, JSON-friendly slice.
func (p *ProgramIndex) Findings() []Finding {
	var out []Finding
	classes := funcutil.Keys(p.Index.table)
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })

	for _, class := range classes {
		methods := funcutil.Keys(p.Index.table[class])
		sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

		for _, method := range methods {
			uses := p.AllUsesFrom(class, method)
			descs := make([]string, 0, len(uses))
			for _, tv := range uses {
				descs = append(descs, describeTrackedValue(tv))
			}
			out = append(out, Finding{
				Class:        class.Name,
				Method:       method.Name,
				TrackedCount: len(uses),
				Descriptions: descs,
			})
		}
	}
	return out
}

func describeTrackedValue(tv *TrackedValue) string {
	if tv.IsMergedUses() {
		return fmt.Sprintf("merged(%d sites, %d types, nullable=%v, flow=%s)", len(tv.Instructions()), len(tv.Types()), tv.Nullable(), tv.Flow())
	}
	return fmt.Sprintf("object(flow=%s, fields_set=%d, fields_read=%d, calls=%d, escapes=%d)",
		tv.Flow(), len(tv.Usage.FieldWrites), len(tv.Usage.FieldReads), len(tv.Usage.MethodCalls), escapeCount(tv.Usage.Escapes))
}

func escapeCount(e EscapeSet) int {
	return len(e.ViaReturn) + len(e.ViaArrayWrite) + len(e.ViaFieldStore) + len(e.ViaVirtualCall) + len(e.ViaStaticCall)
}
