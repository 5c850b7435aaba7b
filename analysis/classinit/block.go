package classinit

import (
	"github.com/chaozhouzhang/redex/analysis/config"
	"github.com/chaozhouzhang/redex/ir"
)

// Register conventions the block analyzer relies on, by instruction
// category (a contract between an IR loader and this package, since the
// opaque IR model carries no structure beyond category/dest/srcs/field/
// method):
//
//	Construct:      Dest = new register; ConstructedType = allocated type.
//	Move:            Dest = destination; Srcs = [source].
//	FieldWrite:      Srcs = [receiver, storedValue]; Field = written field.
//	FieldRead:       Dest = loaded-into register; Srcs = [receiver]; Field.
//	InvokeVirtual:   Srcs = [receiver, arg1, arg2, ...]; Method.
//	InvokeStatic:    Srcs = [arg1, arg2, ...]; Method.
//	Return:          Srcs = [returnedValue] (empty for a void return).
//	ArrayStore:      Srcs = [array, storedValue].
//
// Branch and Other carry no register-level meaning the analysis interprets.

// BlockAnalyzer runs the single-basic-block transfer function (component
// D): given the register file at block entry, it produces the register
// file at block exit with every tracked value's usage record updated to
// reflect the instructions the block executed. Run never mutates the
// tracked values reachable from its input register file; every update
// produces a fresh TrackedValue via WithUsage, so a caller holding onto the
// input file (e.g. for a later fixpoint comparison) is unaffected.
type BlockAnalyzer struct {
	Store *Store

	// IsTracked decides whether a constructed type belongs to the hierarchy
	// under analysis; nil means "track every construction".
	IsTracked func(t *ir.Class) bool

	// SafeEscapes routes an argument escape to safe_escapes instead of
	// escapes when the callee matches. Nil means nothing is safe.
	SafeEscapes *config.SafeEscapeSet

	// OnConstruct is invoked once per construction instruction processed,
	// with the freshly allocated ObjectUses. Used by the program driver to
	// populate the init index.
	OnConstruct func(inst ir.Instruction, tv *TrackedValue)
}

// Run executes the transfer function over block starting from in and
// returns the resulting register file. in is not mutated.
func (a *BlockAnalyzer) Run(block *ir.Block, in *RegisterFile) *RegisterFile {
	regs := in.clone()
	for _, inst := range block.Instrs {
		a.step(regs, inst)
	}
	return regs
}

func (a *BlockAnalyzer) step(regs *RegisterFile, inst ir.Instruction) {
	switch inst.Category() {
	case ir.Construct:
		a.stepConstruct(regs, inst)
	case ir.Move:
		a.stepMove(regs, inst)
	case ir.FieldWrite:
		a.stepFieldWrite(regs, inst)
	case ir.FieldRead:
		a.stepFieldRead(regs, inst)
	case ir.InvokeVirtual:
		a.stepInvoke(regs, inst, true)
	case ir.InvokeStatic:
		a.stepInvoke(regs, inst, false)
	case ir.Return:
		a.stepReturn(regs, inst)
	case ir.ArrayStore:
		a.stepArrayStore(regs, inst)
	default: // Branch, Other: opaque.
		if dest, ok := inst.Dest(); ok {
			regs.Clear(dest)
		}
	}
}

func (a *BlockAnalyzer) stepConstruct(regs *RegisterFile, inst ir.Instruction) {
	dest, ok := inst.Dest()
	if !ok {
		return
	}
	// Clear before installing the new value: a redefinition must not retain
	// the old value's usage record under the new identity, only in all-seen.
	regs.Clear(dest)

	typ := inst.ConstructedType()
	if typ == nil || (a.IsTracked != nil && !a.IsTracked(typ)) {
		return
	}
	tv := NewObjectUses(inst, typ)
	regs.Set(dest, tv)
	if a.OnConstruct != nil {
		a.OnConstruct(inst, tv)
	}
}

func (a *BlockAnalyzer) stepMove(regs *RegisterFile, inst ir.Instruction) {
	dest, ok := inst.Dest()
	if !ok {
		return
	}
	regs.Clear(dest)
	srcs := inst.Srcs()
	if len(srcs) == 0 {
		return
	}
	if v := regs.Get(srcs[0]); v != nil {
		regs.Set(dest, v)
	}
}

func (a *BlockAnalyzer) stepFieldWrite(regs *RegisterFile, inst ir.Instruction) {
	srcs := inst.Srcs()
	if len(srcs) < 2 {
		return
	}
	receiverReg, valueReg := srcs[0], srcs[1]
	field := inst.Field()

	if value := regs.Get(valueReg); value != nil {
		updated := value.WithUsage(func(u *UsageRecord) {
			u.RecordFieldWrite(field, valueReg, true, AllPaths)
			u.RecordEscapeFieldStore(inst, field)
		})
		replaceValue(regs, value, updated)
	} else if receiver := regs.Get(receiverReg); receiver != nil {
		updated := receiver.WithUsage(func(u *UsageRecord) {
			u.RecordFieldWrite(field, valueReg, true, AllPaths)
		})
		replaceValue(regs, receiver, updated)
	}
}

func (a *BlockAnalyzer) stepFieldRead(regs *RegisterFile, inst ir.Instruction) {
	if dest, ok := inst.Dest(); ok {
		// Field loads are not constructions, even when the loaded field's
		// declared type is in the tracked hierarchy.
		regs.Clear(dest)
	}
	srcs := inst.Srcs()
	if len(srcs) == 0 {
		return
	}
	receiver := regs.Get(srcs[0])
	if receiver == nil {
		return
	}
	updated := receiver.WithUsage(func(u *UsageRecord) {
		u.RecordFieldRead(inst.Field(), AllPaths)
	})
	replaceValue(regs, receiver, updated)
}

func (a *BlockAnalyzer) stepInvoke(regs *RegisterFile, inst ir.Instruction, virtual bool) {
	if dest, ok := inst.Dest(); ok {
		regs.Clear(dest)
	}
	srcs := inst.Srcs()
	method := inst.Method()
	start := 0
	if virtual && len(srcs) > 0 {
		receiverReg := srcs[0]
		if receiver := regs.Get(receiverReg); receiver != nil {
			updated := receiver.WithUsage(func(u *UsageRecord) {
				u.RecordMethodCall(method, CallSite{Instr: inst, Receiver: receiverReg}, AllPaths)
			})
			replaceValue(regs, receiver, updated)
		}
		start = 1
	}

	safe := a.SafeEscapes.IsSafe(methodOwnerName(method), methodName(method))
	for _, r := range srcs[start:] {
		arg := regs.Get(r)
		if arg == nil {
			continue
		}
		updated := arg.WithUsage(func(u *UsageRecord) {
			u.RecordEscapeCall(inst, method, virtual, safe)
		})
		replaceValue(regs, arg, updated)
	}
}

func (a *BlockAnalyzer) stepReturn(regs *RegisterFile, inst ir.Instruction) {
	srcs := inst.Srcs()
	if len(srcs) == 0 {
		return
	}
	v := regs.Get(srcs[0])
	if v == nil {
		return
	}
	updated := v.WithUsage(func(u *UsageRecord) {
		u.RecordEscapeReturn(inst)
	})
	replaceValue(regs, v, updated)
}

func (a *BlockAnalyzer) stepArrayStore(regs *RegisterFile, inst ir.Instruction) {
	srcs := inst.Srcs()
	if len(srcs) < 2 {
		return
	}
	v := regs.Get(srcs[1])
	if v == nil {
		return
	}
	updated := v.WithUsage(func(u *UsageRecord) {
		u.RecordEscapeArrayWrite(inst)
	})
	replaceValue(regs, v, updated)
}

// replaceValue swaps every register currently holding old for updated. A
// tracked value can legitimately sit in more than one register (aliasing
// via Move), and a usage fact recorded through any one of them belongs to
// the shared value, not just the register the instruction named.
func replaceValue(regs *RegisterFile, old, updated *TrackedValue) {
	for r, v := range regs.regs {
		if v == old {
			regs.regs[r] = updated
		}
	}
	regs.allSeen[updated] = struct{}{}
}

func methodOwnerName(m *ir.MethodRef) string {
	if m == nil || m.Owner == nil {
		return ""
	}
	return m.Owner.Name
}

func methodName(m *ir.MethodRef) string {
	if m == nil {
		return ""
	}
	return m.Name
}
