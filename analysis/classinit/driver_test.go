package classinit

import (
	"testing"

	"github.com/chaozhouzhang/redex/ir"
)

// buildDiamond builds entry -> {left, right} -> join, a minimal diverging
// CFG for exercising CombinePaths across a join point.
func buildDiamond(t *testing.T) *ir.Method {
	t.Helper()
	owner := &ir.Class{Name: "Caller"}
	m := ir.NewMethod(owner, "run")
	entry := m.AddBlock()
	left := m.AddBlock()
	right := m.AddBlock()
	join := m.AddBlock()

	entry.Link(left)
	entry.Link(right)
	left.Link(join)
	right.Link(join)
	return m
}

// TestRunMethodConditionalConstruction is spec scenario 2: a construction on
// only one arm of a branch must read Conditional at the join point.
func TestRunMethodConditionalConstruction(t *testing.T) {
	m := buildDiamond(t)
	typ := &ir.Class{Name: "Foo"}
	construct := newConstructInstr(typ)
	m.Blocks()[1].Instrs = []ir.Instruction{construct} // left arm only

	analyzer := &BlockAnalyzer{Store: NewStore(), IsTracked: isTrackedAll}
	result := RunMethod(m, analyzer, 1000, nil)

	join := m.Blocks()[3]
	final := result.Final[join]
	if final == nil {
		t.Fatalf("expected a final register file at the join block")
	}
	v := final.Get(0)
	if v == nil {
		t.Fatalf("expected the construction to still be tracked at the join")
	}
	if v.Flow() != Conditional {
		t.Errorf("a construction on only one arm must read Conditional at the join, got %v", v.Flow())
	}
}

// TestRunMethodMergeAtJoin is spec scenario 3: the same construction site
// reached via both arms of a branch stays AllPaths at the join.
func TestRunMethodMergeAtJoin(t *testing.T) {
	m := buildDiamond(t)
	typ := &ir.Class{Name: "Foo"}
	construct := newConstructInstr(typ)
	m.Entry.Instrs = []ir.Instruction{construct} // constructed before the branch

	analyzer := &BlockAnalyzer{Store: NewStore(), IsTracked: isTrackedAll}
	result := RunMethod(m, analyzer, 1000, nil)

	join := m.Blocks()[3]
	v := result.Final[join].Get(0)
	if v == nil {
		t.Fatalf("expected the construction to survive to the join")
	}
	if v.Flow() != AllPaths {
		t.Errorf("a construction made before the branch should read AllPaths at the join, got %v", v.Flow())
	}
}

func TestRunMethodNoCodeIsSkipped(t *testing.T) {
	owner := &ir.Class{Name: "Abstract"}
	m := &ir.Method{Name: "noop", Owner: owner}

	analyzer := &BlockAnalyzer{Store: NewStore(), IsTracked: isTrackedAll}
	result := RunMethod(m, analyzer, 1000, nil)
	if len(result.Final) != 0 || result.Stalled {
		t.Errorf("a method with no code should produce an empty, non-stalled result")
	}
}

// TestRunMethodLoopBackEdgeUsageGrowthForcesRecheck guards against a skip
// condition that only compares construction-instruction identity: entry
// constructs r, header has two predecessors (entry and the loop body) and
// two successors (the body and exit), body calls r.foo() and loops back to
// header. On header's second visit the recombined input still resolves to
// the same construction (so the identity check alone would call it
// converged), but its usage record has grown a Conditional foo() call
// picked up from the body. That growth must still propagate to exit.
func TestRunMethodLoopBackEdgeUsageGrowthForcesRecheck(t *testing.T) {
	owner := &ir.Class{Name: "Caller"}
	m := ir.NewMethod(owner, "run")
	entry := m.AddBlock()
	header := m.AddBlock()
	body := m.AddBlock()
	exit := m.AddBlock()

	entry.Link(header)
	header.Link(body)
	header.Link(exit)
	body.Link(header)

	typ := &ir.Class{Name: "Foo"}
	construct := newConstructInstr(typ)
	entry.Instrs = []ir.Instruction{construct}

	method := &ir.MethodRef{Name: "foo", Owner: typ}
	call := &ir.Instr{Cat: ir.InvokeVirtual, SrcRs: []ir.Register{0}, Mth: method}
	body.Instrs = []ir.Instruction{call}

	analyzer := &BlockAnalyzer{Store: NewStore(), IsTracked: isTrackedAll}
	result := RunMethod(m, analyzer, 1000, nil)

	final := result.Final[exit]
	if final == nil {
		t.Fatalf("expected a final register file at exit")
	}
	v := final.Get(0)
	if v == nil {
		t.Fatalf("expected the construction to survive to exit")
	}
	if _, ok := v.Usage.MethodCalls[method]; !ok {
		t.Errorf("expected the loop body's foo() call to propagate to exit, got %+v", v.Usage.MethodCalls)
	}
}

func TestCfgIsCyclicDetectsLoop(t *testing.T) {
	owner := &ir.Class{Name: "Looper"}
	m := ir.NewMethod(owner, "loop")
	entry := m.AddBlock()
	body := m.AddBlock()
	entry.Link(body)
	body.Link(body)

	if !cfgIsCyclic(m) {
		t.Errorf("expected a self-looping block to be detected as cyclic")
	}
}

func TestCfgIsCyclicAcyclic(t *testing.T) {
	owner := &ir.Class{Name: "Straight"}
	m := ir.NewMethod(owner, "straight")
	entry := m.AddBlock()
	next := m.AddBlock()
	entry.Link(next)

	if cfgIsCyclic(m) {
		t.Errorf("a straight-line CFG should not be reported as cyclic")
	}
}
