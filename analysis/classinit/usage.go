package classinit

import "github.com/chaozhouzhang/redex/ir"

// FieldWriteEntry is the fact recorded for one field written through a
// tracked value: which register(s) supplied the stored value, and whether
// the write holds on every path or only conditionally.
type FieldWriteEntry struct {
	Sources map[ir.Register]struct{}
	Flow    FlowStatus
	Source  SourceStatus
}

func newFieldWriteEntry(src ir.Register, hasSrc bool, flow FlowStatus) *FieldWriteEntry {
	e := &FieldWriteEntry{Sources: map[ir.Register]struct{}{}, Flow: flow}
	if hasSrc {
		e.Sources[src] = struct{}{}
	}
	e.Source = sourceStatusOf(e.Sources)
	return e
}

func sourceStatusOf(sources map[ir.Register]struct{}) SourceStatus {
	switch len(sources) {
	case 0:
		return Unclear
	case 1:
		return OneReg
	default:
		return MultipleReg
	}
}

func (e *FieldWriteEntry) clone() *FieldWriteEntry {
	c := &FieldWriteEntry{Sources: make(map[ir.Register]struct{}, len(e.Sources)), Flow: e.Flow, Source: e.Source}
	for r := range e.Sources {
		c.Sources[r] = struct{}{}
	}
	return c
}

func unionFieldWriteEntries(a, b *FieldWriteEntry, flow FlowStatus) *FieldWriteEntry {
	sources := make(map[ir.Register]struct{}, len(a.Sources)+len(b.Sources))
	for r := range a.Sources {
		sources[r] = struct{}{}
	}
	for r := range b.Sources {
		sources[r] = struct{}{}
	}
	return &FieldWriteEntry{Sources: sources, Flow: flow, Source: sourceStatusOf(sources)}
}

// CallSite pairs the invoking instruction with the register that held the
// receiver at the time of the call.
type CallSite struct {
	Instr    ir.Instruction
	Receiver ir.Register
}

// MethodCallEntry is the fact recorded for one method called on a tracked
// receiver.
type MethodCallEntry struct {
	Flow  FlowStatus
	Calls map[CallSite]struct{}
}

func newMethodCallEntry(site CallSite, flow FlowStatus) *MethodCallEntry {
	return &MethodCallEntry{Flow: flow, Calls: map[CallSite]struct{}{site: {}}}
}

func (e *MethodCallEntry) clone() *MethodCallEntry {
	c := &MethodCallEntry{Flow: e.Flow, Calls: make(map[CallSite]struct{}, len(e.Calls))}
	for s := range e.Calls {
		c.Calls[s] = struct{}{}
	}
	return c
}

func unionMethodCallEntries(a, b *MethodCallEntry, flow FlowStatus) *MethodCallEntry {
	calls := make(map[CallSite]struct{}, len(a.Calls)+len(b.Calls))
	for s := range a.Calls {
		calls[s] = struct{}{}
	}
	for s := range b.Calls {
		calls[s] = struct{}{}
	}
	return &MethodCallEntry{Flow: flow, Calls: calls}
}

// EscapeSet is the four escape channels a tracked value can flow through.
// UsageRecord carries two of these: Escapes for real escapes and
// SafeEscapes for escapes into configured safe methods; an instruction
// appears in at most one of the two, on at most one channel.
type EscapeSet struct {
	ViaReturn      map[ir.Instruction]struct{}
	ViaArrayWrite  map[ir.Instruction]struct{}
	ViaFieldStore  map[ir.Instruction]*ir.FieldRef
	ViaVirtualCall map[ir.Instruction]*ir.MethodRef
	ViaStaticCall  map[ir.Instruction]*ir.MethodRef
}

func newEscapeSet() EscapeSet {
	return EscapeSet{
		ViaReturn:      map[ir.Instruction]struct{}{},
		ViaArrayWrite:  map[ir.Instruction]struct{}{},
		ViaFieldStore:  map[ir.Instruction]*ir.FieldRef{},
		ViaVirtualCall: map[ir.Instruction]*ir.MethodRef{},
		ViaStaticCall:  map[ir.Instruction]*ir.MethodRef{},
	}
}

func (e EscapeSet) clone() EscapeSet {
	c := newEscapeSet()
	for i := range e.ViaReturn {
		c.ViaReturn[i] = struct{}{}
	}
	for i := range e.ViaArrayWrite {
		c.ViaArrayWrite[i] = struct{}{}
	}
	for i, f := range e.ViaFieldStore {
		c.ViaFieldStore[i] = f
	}
	for i, m := range e.ViaVirtualCall {
		c.ViaVirtualCall[i] = m
	}
	for i, m := range e.ViaStaticCall {
		c.ViaStaticCall[i] = m
	}
	return c
}

func unionEscapeSets(a, b EscapeSet) EscapeSet {
	c := a.clone()
	for i := range b.ViaReturn {
		c.ViaReturn[i] = struct{}{}
	}
	for i := range b.ViaArrayWrite {
		c.ViaArrayWrite[i] = struct{}{}
	}
	for i, f := range b.ViaFieldStore {
		c.ViaFieldStore[i] = f
	}
	for i, m := range b.ViaVirtualCall {
		c.ViaVirtualCall[i] = m
	}
	for i, m := range b.ViaStaticCall {
		c.ViaStaticCall[i] = m
	}
	return c
}

// UsageRecord is the full set of facts accumulated about one tracked value:
// fields it has been stored into, fields read from it, methods called on
// it, and the escape channels it has flowed through.
type UsageRecord struct {
	FieldWrites map[*ir.FieldRef]*FieldWriteEntry
	FieldReads  map[*ir.FieldRef]FlowStatus
	MethodCalls map[*ir.MethodRef]*MethodCallEntry
	Escapes     EscapeSet
	SafeEscapes EscapeSet
}

// NewUsageRecord returns an empty usage record.
func NewUsageRecord() *UsageRecord {
	return &UsageRecord{
		FieldWrites: map[*ir.FieldRef]*FieldWriteEntry{},
		FieldReads:  map[*ir.FieldRef]FlowStatus{},
		MethodCalls: map[*ir.MethodRef]*MethodCallEntry{},
		Escapes:     newEscapeSet(),
		SafeEscapes: newEscapeSet(),
	}
}

// RecordFieldWrite notes a store into field through the register holding
// this value, src being the register that supplied the stored value. When
// hasSrc is false the write is recorded with no source register and its
// source status reads Unclear.
func (u *UsageRecord) RecordFieldWrite(field *ir.FieldRef, src ir.Register, hasSrc bool, flow FlowStatus) {
	if existing, ok := u.FieldWrites[field]; ok {
		u.FieldWrites[field] = unionFieldWriteEntries(existing, newFieldWriteEntry(src, hasSrc, flow), joinFlow(existing.Flow, flow))
		return
	}
	u.FieldWrites[field] = newFieldWriteEntry(src, hasSrc, flow)
}

// RecordFieldRead notes a load of field from the register holding this
// value.
func (u *UsageRecord) RecordFieldRead(field *ir.FieldRef, flow FlowStatus) {
	if existing, ok := u.FieldReads[field]; ok {
		u.FieldReads[field] = joinFlow(existing, flow)
		return
	}
	u.FieldReads[field] = flow
}

// RecordMethodCall notes a call to m with this value as the receiver.
func (u *UsageRecord) RecordMethodCall(m *ir.MethodRef, site CallSite, flow FlowStatus) {
	if existing, ok := u.MethodCalls[m]; ok {
		u.MethodCalls[m] = unionMethodCallEntries(existing, newMethodCallEntry(site, flow), joinFlow(existing.Flow, flow))
		return
	}
	u.MethodCalls[m] = newMethodCallEntry(site, flow)
}

// recordInto notes inst in the channel of set selected by kind: one of the
// plain escape channels (return, array write), the field-store-into-other
// channel (recording field), or one of the two call channels (recording m).
// field and m are only read for the kinds that use them; callers use the
// small wrapper methods below instead of calling this directly.
func (u *UsageRecord) recordInto(set *EscapeSet, kind escapeKind, inst ir.Instruction, field *ir.FieldRef, m *ir.MethodRef) {
	switch kind {
	case escapeReturn:
		set.ViaReturn[inst] = struct{}{}
	case escapeArrayWrite:
		set.ViaArrayWrite[inst] = struct{}{}
	case escapeFieldStore:
		set.ViaFieldStore[inst] = field
	case escapeVirtualCall:
		set.ViaVirtualCall[inst] = m
	case escapeStaticCall:
		set.ViaStaticCall[inst] = m
	}
}

type escapeKind int

const (
	escapeReturn escapeKind = iota
	escapeArrayWrite
	escapeFieldStore
	escapeVirtualCall
	escapeStaticCall
)

// RecordEscapeReturn notes that this value is returned by inst.
func (u *UsageRecord) RecordEscapeReturn(inst ir.Instruction) {
	u.recordInto(&u.Escapes, escapeReturn, inst, nil, nil)
}

// RecordEscapeArrayWrite notes that this value is stored into an array by inst.
func (u *UsageRecord) RecordEscapeArrayWrite(inst ir.Instruction) {
	u.recordInto(&u.Escapes, escapeArrayWrite, inst, nil, nil)
}

// RecordEscapeFieldStore notes that this value is stored into field of some
// other object by inst.
func (u *UsageRecord) RecordEscapeFieldStore(inst ir.Instruction, field *ir.FieldRef) {
	u.recordInto(&u.Escapes, escapeFieldStore, inst, field, nil)
}

// RecordEscapeCall notes that this value is passed as an argument to m by
// inst, virtual distinguishing an InvokeVirtual from an InvokeStatic call,
// and safe routing the fact to SafeEscapes instead of Escapes.
func (u *UsageRecord) RecordEscapeCall(inst ir.Instruction, m *ir.MethodRef, virtual, safe bool) {
	set := &u.Escapes
	if safe {
		set = &u.SafeEscapes
	}
	if virtual {
		u.recordInto(set, escapeVirtualCall, inst, nil, m)
	} else {
		u.recordInto(set, escapeStaticCall, inst, nil, m)
	}
}

// clone deep-copies u. Used whenever a tracked value needs an updated usage
// record without mutating the one still referenced by an older register
// file snapshot (e.g. the previous iteration's in(B), kept around for the
// fixpoint comparison).
func (u *UsageRecord) clone() *UsageRecord {
	c := NewUsageRecord()
	for f, e := range u.FieldWrites {
		c.FieldWrites[f] = e.clone()
	}
	for f, flow := range u.FieldReads {
		c.FieldReads[f] = flow
	}
	for m, e := range u.MethodCalls {
		c.MethodCalls[m] = e.clone()
	}
	c.Escapes = u.Escapes.clone()
	c.SafeEscapes = u.SafeEscapes.clone()
	return c
}

// Absorb unions every fact of other into u. Used when two distinct
// construction sites are promoted into one MergedUses: the two histories
// are distinct constructions being grouped under one bucket, not two
// divergent views of the same construction, so a plain union is correct —
// there is no "the write didn't happen on this path" case to Conditional-ize.
func (u *UsageRecord) Absorb(other *UsageRecord) {
	for f, e := range other.FieldWrites {
		if existing, ok := u.FieldWrites[f]; ok {
			u.FieldWrites[f] = unionFieldWriteEntries(existing, e, joinFlow(existing.Flow, e.Flow))
		} else {
			u.FieldWrites[f] = e.clone()
		}
	}
	for f, flow := range other.FieldReads {
		if existing, ok := u.FieldReads[f]; ok {
			u.FieldReads[f] = joinFlow(existing, flow)
		} else {
			u.FieldReads[f] = flow
		}
	}
	for m, e := range other.MethodCalls {
		if existing, ok := u.MethodCalls[m]; ok {
			u.MethodCalls[m] = unionMethodCallEntries(existing, e, joinFlow(existing.Flow, e.Flow))
		} else {
			u.MethodCalls[m] = e.clone()
		}
	}
	u.Escapes = unionEscapeSets(u.Escapes, other.Escapes)
	u.SafeEscapes = unionEscapeSets(u.SafeEscapes, other.SafeEscapes)
}

// CombinePaths merges two usage records observed along sibling branches of
// the same predecessor: a fact present on only one side is Conditional-ized,
// since it did not hold on every arm.
func (u *UsageRecord) CombinePaths(other *UsageRecord) *UsageRecord {
	return combineRecords(u, other, true)
}

// Merge composes two usage records sequentially: a fact carried over from
// the input side survives unchanged if the output side added nothing new
// about it, and vice versa; only a fact that genuinely conflicts (present
// with a different flow on each side) degrades to Conditional.
func (u *UsageRecord) Merge(other *UsageRecord) *UsageRecord {
	return combineRecords(u, other, false)
}

func combineRecords(a, b *UsageRecord, lonelyIsConditional bool) *UsageRecord {
	out := NewUsageRecord()
	for f := range unionFieldWriteKeys(a, b) {
		ea, oka := a.FieldWrites[f]
		eb, okb := b.FieldWrites[f]
		switch {
		case oka && okb:
			out.FieldWrites[f] = unionFieldWriteEntries(ea, eb, joinFlow(ea.Flow, eb.Flow))
		case oka:
			out.FieldWrites[f] = lonelyEntry(ea, lonelyIsConditional)
		case okb:
			out.FieldWrites[f] = lonelyEntry(eb, lonelyIsConditional)
		}
	}
	for f := range unionFieldReadKeys(a, b) {
		fa, oka := a.FieldReads[f]
		fb, okb := b.FieldReads[f]
		switch {
		case oka && okb:
			out.FieldReads[f] = joinFlow(fa, fb)
		case oka:
			out.FieldReads[f] = lonelyFlow(fa, lonelyIsConditional)
		case okb:
			out.FieldReads[f] = lonelyFlow(fb, lonelyIsConditional)
		}
	}
	for m := range unionMethodCallKeys(a, b) {
		ea, oka := a.MethodCalls[m]
		eb, okb := b.MethodCalls[m]
		switch {
		case oka && okb:
			out.MethodCalls[m] = unionMethodCallEntries(ea, eb, joinFlow(ea.Flow, eb.Flow))
		case oka:
			out.MethodCalls[m] = &MethodCallEntry{Flow: lonelyFlow(ea.Flow, lonelyIsConditional), Calls: ea.clone().Calls}
		case okb:
			out.MethodCalls[m] = &MethodCallEntry{Flow: lonelyFlow(eb.Flow, lonelyIsConditional), Calls: eb.clone().Calls}
		}
	}
	out.Escapes = unionEscapeSets(a.Escapes, b.Escapes)
	out.SafeEscapes = unionEscapeSets(a.SafeEscapes, b.SafeEscapes)
	return out
}

func lonelyEntry(e *FieldWriteEntry, conditional bool) *FieldWriteEntry {
	c := e.clone()
	if conditional {
		c.Flow = Conditional
	}
	return c
}

func lonelyFlow(f FlowStatus, conditional bool) FlowStatus {
	if conditional {
		return Conditional
	}
	return f
}

func unionFieldWriteKeys(a, b *UsageRecord) map[*ir.FieldRef]struct{} {
	out := make(map[*ir.FieldRef]struct{}, len(a.FieldWrites)+len(b.FieldWrites))
	for f := range a.FieldWrites {
		out[f] = struct{}{}
	}
	for f := range b.FieldWrites {
		out[f] = struct{}{}
	}
	return out
}

func unionFieldReadKeys(a, b *UsageRecord) map[*ir.FieldRef]struct{} {
	out := make(map[*ir.FieldRef]struct{}, len(a.FieldReads)+len(b.FieldReads))
	for f := range a.FieldReads {
		out[f] = struct{}{}
	}
	for f := range b.FieldReads {
		out[f] = struct{}{}
	}
	return out
}

func unionMethodCallKeys(a, b *UsageRecord) map[*ir.MethodRef]struct{} {
	out := make(map[*ir.MethodRef]struct{}, len(a.MethodCalls)+len(b.MethodCalls))
	for m := range a.MethodCalls {
		out[m] = struct{}{}
	}
	for m := range b.MethodCalls {
		out[m] = struct{}{}
	}
	return out
}

// ConsistentWith reports whether other's facts are already represented by
// u: every field-write/read/call key of other is present in u, with u's
// flow status no more specific than other's, and other has no escape
// instruction u lacks. Used by the CFG driver as part
// of its fixpoint test.
func (u *UsageRecord) ConsistentWith(other *UsageRecord) bool {
	for f, eb := range other.FieldWrites {
		ea, ok := u.FieldWrites[f]
		if !ok || (ea.Flow == AllPaths && eb.Flow == Conditional) {
			return false
		}
	}
	for f, fb := range other.FieldReads {
		fa, ok := u.FieldReads[f]
		if !ok || (fa == AllPaths && fb == Conditional) {
			return false
		}
	}
	for m, eb := range other.MethodCalls {
		ea, ok := u.MethodCalls[m]
		if !ok || (ea.Flow == AllPaths && eb.Flow == Conditional) {
			return false
		}
	}
	return isEscapeSubset(other.Escapes, u.Escapes) && isEscapeSubset(other.SafeEscapes, u.SafeEscapes)
}

func isEscapeSubset(sub, super EscapeSet) bool {
	for i := range sub.ViaReturn {
		if _, ok := super.ViaReturn[i]; !ok {
			return false
		}
	}
	for i := range sub.ViaArrayWrite {
		if _, ok := super.ViaArrayWrite[i]; !ok {
			return false
		}
	}
	for i := range sub.ViaFieldStore {
		if _, ok := super.ViaFieldStore[i]; !ok {
			return false
		}
	}
	for i := range sub.ViaVirtualCall {
		if _, ok := super.ViaVirtualCall[i]; !ok {
			return false
		}
	}
	for i := range sub.ViaStaticCall {
		if _, ok := super.ViaStaticCall[i]; !ok {
			return false
		}
	}
	return true
}
