package classinit

import (
	"testing"

	"github.com/chaozhouzhang/redex/ir"
)

func newConstructInstr(t *ir.Class) *ir.Instr {
	return &ir.Instr{Cat: ir.Construct, DestOk: true, DestR: 0, CType: t}
}

func TestNewObjectUses(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	inst := newConstructInstr(typ)
	v := NewObjectUses(inst, typ)

	if !v.IsObjectUses() || v.IsMergedUses() {
		t.Fatalf("NewObjectUses should be an ObjectUses, got merged=%v", v.IsMergedUses())
	}
	if v.Flow() != AllPaths {
		t.Errorf("freshly constructed value should have AllPaths flow, got %v", v.Flow())
	}
	if v.Instruction() != inst {
		t.Errorf("Instruction() = %v, want %v", v.Instruction(), inst)
	}
}

func TestCombinePathsSameConstruction(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	inst := newConstructInstr(typ)
	a := NewObjectUses(inst, typ)
	b := NewObjectUses(inst, typ)
	store := NewStore()

	result := CombinePaths(a, b, store)
	if !result.IsObjectUses() {
		t.Fatalf("combining the same construction site should stay an ObjectUses")
	}
	if result.Flow() != AllPaths {
		t.Errorf("combining the same AllPaths site on both arms should stay AllPaths, got %v", result.Flow())
	}
}

func TestCombinePathsDistinctConstructionsPromote(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	instA := newConstructInstr(typ)
	instB := newConstructInstr(typ)
	a := NewObjectUses(instA, typ)
	b := NewObjectUses(instB, typ)
	store := NewStore()

	result := CombinePaths(a, b, store)
	if !result.IsMergedUses() {
		t.Fatalf("combining two distinct construction sites should promote to MergedUses")
	}
	if len(result.Instructions()) != 2 {
		t.Errorf("expected 2 construction sites, got %d", len(result.Instructions()))
	}
	if result.Flow() != AllPaths {
		t.Errorf("both arms AllPaths should stay AllPaths, got %v", result.Flow())
	}
}

func TestCombinePathsBottomConditionalizes(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	inst := newConstructInstr(typ)
	a := NewObjectUses(inst, typ)
	store := NewStore()

	result := CombinePaths(a, nil, store)
	if result.Flow() != Conditional {
		t.Errorf("a value missing from one sibling arm must be Conditional, got %v", result.Flow())
	}
}

// TestMergeBottomInputDoesNotConditionalize covers spec scenario 1: a value
// freshly constructed within a block must come out AllPaths even though the
// block's input side held ⊥ for that register.
func TestMergeBottomInputDoesNotConditionalize(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	inst := newConstructInstr(typ)
	fresh := NewObjectUses(inst, typ)
	store := NewStore()

	result := Merge(nil, fresh, store)
	if result.Flow() != AllPaths {
		t.Errorf("a fresh AllPaths construction merged from a bottom input should stay AllPaths, got %v", result.Flow())
	}
}

func TestMergeBottomOutputConditionalizes(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	inst := newConstructInstr(typ)
	in := NewObjectUses(inst, typ)
	store := NewStore()

	result := Merge(in, nil, store)
	if result.Flow() != Conditional {
		t.Errorf("losing track of a value by block exit should Conditional-ize it, got %v", result.Flow())
	}
}

func TestStoreInterningConverges(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	instA := newConstructInstr(typ)
	instB := newConstructInstr(typ)
	store := NewStore()

	a1 := NewObjectUses(instA, typ)
	b1 := NewObjectUses(instB, typ)
	m1 := CombinePaths(a1, b1, store)

	a2 := NewObjectUses(instA, typ)
	b2 := NewObjectUses(instB, typ)
	m2 := CombinePaths(a2, b2, store)

	if !m1.IsMergedUses() || !m2.IsMergedUses() {
		t.Fatalf("expected both promotions to produce MergedUses")
	}
	if len(store.All()) != 1 {
		t.Errorf("two promotions of the same construction-instruction set should intern to one record, got %d", len(store.All()))
	}
}

// TestConsistentWithMergedNeverNarrows is the resolution of the apparent
// spec ambiguity documented in DESIGN.md: a MergedUses is never
// consistent_with a narrower ObjectUses drawn from its own site set.
func TestConsistentWithMergedNeverNarrows(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	instA := newConstructInstr(typ)
	instB := newConstructInstr(typ)
	a := NewObjectUses(instA, typ)
	b := NewObjectUses(instB, typ)
	store := NewStore()
	merged := CombinePaths(a, b, store)

	if ConsistentWith(merged, a) {
		t.Errorf("a MergedUses must never be ConsistentWith a narrower ObjectUses")
	}
	if !ConsistentWith(a, merged) {
		t.Errorf("an ObjectUses whose site is in a MergedUses should be ConsistentWith it")
	}
}

func TestConsistentWithBottom(t *testing.T) {
	typ := &ir.Class{Name: "Foo"}
	inst := newConstructInstr(typ)
	v := NewObjectUses(inst, typ)

	if !ConsistentWith(nil, nil) {
		t.Errorf("bottom should be ConsistentWith bottom")
	}
	if ConsistentWith(nil, v) {
		t.Errorf("bottom should not be ConsistentWith a real value")
	}
	if !ConsistentWith(v, nil) {
		t.Errorf("any value should be ConsistentWith bottom (bottom can't widen anything)")
	}
}
