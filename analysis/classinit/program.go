package classinit

import (
	"fmt"

	"github.com/chaozhouzhang/redex/analysis/classhierarchy"
	"github.com/chaozhouzhang/redex/analysis/config"
	"github.com/chaozhouzhang/redex/ir"
	"github.com/chaozhouzhang/redex/workqueue"
)

// Program is the top-level driver (component H): it discovers the
// descendants of the configured common-parent class, schedules every
// method in the program through the work queue, and accumulates the
// results into one ProgramIndex.
type Program struct {
	Config *config.Config
	logger *config.LogGroup
}

// NewProgram returns a Program driver configured by cfg.
func NewProgram(cfg *config.Config) *Program {
	return &Program{Config: cfg, logger: cfg.Logger()}
}

type unit struct {
	class  *ir.Class
	method *ir.Method
}

// Run analyzes every eligible method of every class in the program and
// returns the accumulated index. classes is the full set of classes in the
// program, not just descendants of the common-parent type: a construction
// of a tracked type can happen in any method anywhere in the program.
func (p *Program) Run(classes []*ir.Class) (*ProgramIndex, error) {
	root := findClass(classes, p.Config.CommonParent)
	if root == nil {
		return nil, fmt.Errorf("classinit: common-parent class %q not found in program", p.Config.CommonParent)
	}

	tracked := map[*ir.Class]struct{}{root: {}}
	for _, d := range classhierarchy.Descendants(root, classes) {
		tracked[d] = struct{}{}
	}
	isTracked := func(t *ir.Class) bool {
		_, ok := tracked[t]
		return ok
	}
	safeSet := p.Config.SafeEscapeSet()

	mr, err := workqueue.NewMapReduce(p.Config.NumWorkers, func(u unit) *ProgramIndex {
		return p.analyzeMethod(u.class, u.method, isTracked, safeSet)
	}, Reduce)
	if err != nil {
		return nil, err
	}

	scheduled := 0
	for _, class := range classes {
		for _, method := range class.Methods() {
			if p.Config.RestrictToMethod != "" && method.Name != p.Config.RestrictToMethod {
				continue
			}
			if !method.HasCode() {
				// Missing CFG: skip the method, no error.
				continue
			}
			mr.AddItem(unit{class: class, method: method})
			scheduled++
		}
	}
	if p.logger != nil {
		p.logger.Infof("classinit: %d descendant class(es) of %s, %d method(s) scheduled", len(tracked)-1, p.Config.CommonParent, scheduled)
	}
	if scheduled == 0 {
		return NewProgramIndex(), nil
	}
	return mr.RunAll(NewProgramIndex()), nil
}

// analyzeMethod is the unit of work submitted to the work queue: it runs
// the CFG fixpoint driver over one method and folds the result into a
// fresh, method-local ProgramIndex that the reducer later combines with
// every other method's.
func (p *Program) analyzeMethod(class *ir.Class, method *ir.Method, isTracked func(*ir.Class) bool, safe *config.SafeEscapeSet) *ProgramIndex {
	idx := NewProgramIndex()
	store := NewStore()
	analyzer := &BlockAnalyzer{
		Store:       store,
		IsTracked:   isTracked,
		SafeEscapes: safe,
		OnConstruct: func(inst ir.Instruction, _ *TrackedValue) {
			idx.Index.AddInit(class, method, inst)
		},
	}

	if p.logger != nil && p.logger.LogsDebug() {
		p.logger.Debugf("classinit: analyzing %s.%s", class.Name, method.Name)
	}

	result := RunMethod(method, analyzer, p.Config.WorklistSafetyCap, p.logger)

	// Every usage update produces a new TrackedValue version, so all-seen
	// holds several versions per construction; fold them into one final
	// record per construction instruction.
	seen := map[*TrackedValue]struct{}{}
	final := map[ir.Instruction]*TrackedValue{}
	for _, rf := range result.Final {
		for _, tv := range rf.AllSeen() {
			if _, dup := seen[tv]; dup || !tv.IsObjectUses() {
				continue
			}
			seen[tv] = struct{}{}
			final[tv.Instruction()] = Merge(final[tv.Instruction()], tv, store)
		}
	}
	for _, tv := range final {
		idx.Index.UpdateObject(class, method, tv)
	}
	idx.Merged.Add(class, method, store.All())
	return idx
}

func findClass(classes []*ir.Class, name string) *ir.Class {
	for _, c := range classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}
