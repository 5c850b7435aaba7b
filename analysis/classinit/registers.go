package classinit

import "github.com/chaozhouzhang/redex/ir"

// RegisterFile is the per-program-point state threaded through the block
// analyzer and CFG driver: which tracked value (if any) each register
// currently holds, plus every tracked value ever inserted into this
// register file over the course of the analysis — so overwriting a
// register does not lose the usage record accumulated under its old
// value.
type RegisterFile struct {
	regs    map[ir.Register]*TrackedValue
	allSeen map[*TrackedValue]struct{}
}

// NewRegisterFile returns an empty register file.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{regs: map[ir.Register]*TrackedValue{}, allSeen: map[*TrackedValue]struct{}{}}
}

// Get returns the tracked value held by r, or nil if r holds something
// else (⊥).
func (f *RegisterFile) Get(r ir.Register) *TrackedValue {
	return f.regs[r]
}

// Set installs v as the value held by r. v is also added to the all-seen
// set; passing nil clears the register without otherwise affecting
// all-seen.
func (f *RegisterFile) Set(r ir.Register, v *TrackedValue) {
	if v == nil {
		delete(f.regs, r)
		return
	}
	f.regs[r] = v
	f.allSeen[v] = struct{}{}
}

// Clear resets r to ⊥. The tracked value it held, if any, remains in the
// all-seen set.
func (f *RegisterFile) Clear(r ir.Register) {
	delete(f.regs, r)
}

// AllSeen returns every tracked value ever inserted into this register
// file, including ones since overwritten or cleared.
func (f *RegisterFile) AllSeen() []*TrackedValue {
	out := make([]*TrackedValue, 0, len(f.allSeen))
	for v := range f.allSeen {
		out = append(out, v)
	}
	return out
}

func (f *RegisterFile) clone() *RegisterFile {
	c := NewRegisterFile()
	for r, v := range f.regs {
		c.regs[r] = v
	}
	for v := range f.allSeen {
		c.allSeen[v] = struct{}{}
	}
	return c
}

func unionRegisterKeys(a, b *RegisterFile) map[ir.Register]struct{} {
	out := make(map[ir.Register]struct{}, len(a.regs)+len(b.regs))
	for r := range a.regs {
		out[r] = struct{}{}
	}
	for r := range b.regs {
		out[r] = struct{}{}
	}
	return out
}

func combineFiles(a, b *RegisterFile, store *Store, seq bool) *RegisterFile {
	out := NewRegisterFile()
	for r := range unionRegisterKeys(a, b) {
		var combined *TrackedValue
		if seq {
			combined = Merge(a.regs[r], b.regs[r], store)
		} else {
			combined = CombinePaths(a.regs[r], b.regs[r], store)
		}
		if combined != nil {
			out.regs[r] = combined
		}
	}
	for v := range a.allSeen {
		out.allSeen[v] = struct{}{}
	}
	for v := range b.allSeen {
		out.allSeen[v] = struct{}{}
	}
	for _, v := range out.regs {
		out.allSeen[v] = struct{}{}
	}
	return out
}

// CombinePaths joins two register files observed along sibling branches of
// the same predecessor.
func (f *RegisterFile) CombinePaths(other *RegisterFile, store *Store) *RegisterFile {
	return combineFiles(f, other, store, false)
}

// Merge composes two register files sequentially: f is the file flowing
// into a block, other is the file produced by running the block's transfer
// function starting from f.
func (f *RegisterFile) Merge(other *RegisterFile, store *Store) *RegisterFile {
	return combineFiles(f, other, store, true)
}

// ConsistentWith reports whether f's per-register state is already
// subsumed by other's, for every register either side has touched, AND that
// no tracked value held by both sides has picked up usage-record facts (field
// writes/reads, method calls, escapes) beyond what other already recorded.
// f is understood to be the freshly recombined input and other the
// previous visit's snapshot; a tracked value can keep the same construction
// identity across two visits (so the identity check alone passes) while
// still absorbing new facts folded in from a loop back-edge, which must
// still count as growth for this fixpoint test to be sound.
func (f *RegisterFile) ConsistentWith(other *RegisterFile) bool {
	for r := range unionRegisterKeys(f, other) {
		fv, ov := f.regs[r], other.regs[r]
		if !ConsistentWith(fv, ov) {
			return false
		}
		if fv != nil && ov != nil && !ov.Usage.ConsistentWith(fv.Usage) {
			return false
		}
	}
	return true
}
