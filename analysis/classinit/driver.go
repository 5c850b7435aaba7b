package classinit

import (
	"github.com/chaozhouzhang/redex/analysis/config"
	"github.com/chaozhouzhang/redex/ir"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// MethodResult is the outcome of running the CFG fixpoint driver over one
// method: the final register file at each block's exit (the "final_result"
// the component design folds across predecessors), and whether the driver
// gave up on convergence within the configured safety cap.
type MethodResult struct {
	Final   map[*ir.Block]*RegisterFile
	Stalled bool
}

// RunMethod runs the CFG driver (component E) over method using analyzer,
// iterating block-at-a-time to a fixpoint gated on ConsistentWith. A method
// with no code is skipped - per the error-handling design that is not a
// failure, just nothing to analyze.
//
// Because the block transfer function is a pure function of its input
// register file and the block's own (static) instructions, a block whose
// newly folded input is ConsistentWith the input from its last visit
// cannot produce a wider output than last time either; the driver only
// re-runs a visited block when its input has actually grown.
func RunMethod(method *ir.Method, analyzer *BlockAnalyzer, safetyCap int, logger *config.LogGroup) *MethodResult {
	result := &MethodResult{Final: map[*ir.Block]*RegisterFile{}}
	if !method.HasCode() {
		return result
	}

	prevIn := map[*ir.Block]*RegisterFile{}
	visited := map[*ir.Block]bool{}
	visits := map[*ir.Block]int{}

	worklist := []*ir.Block{method.Entry}
	queued := map[*ir.Block]bool{method.Entry: true}

	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		queued[b] = false

		visits[b]++
		if visits[b] > safetyCap {
			result.Stalled = true
			logStall(method, b, safetyCap, logger)
			return result
		}

		in := combinedIn(b, result.Final, analyzer.Store)
		if visited[b] && in.ConsistentWith(prevIn[b]) {
			continue
		}
		visited[b] = true
		prevIn[b] = in

		out := analyzer.Run(b, in)
		result.Final[b] = in.Merge(out, analyzer.Store)

		for _, succ := range b.Succs {
			if !queued[succ] {
				worklist = append(worklist, succ)
				queued[succ] = true
			}
		}
	}
	return result
}

// combinedIn folds the final_result of every predecessor of b through
// CombinePaths. A predecessor not yet computed (or b having no predecessors
// at all) contributes an empty register file, which behaves as ⊥ for every
// register.
func combinedIn(b *ir.Block, final map[*ir.Block]*RegisterFile, store *Store) *RegisterFile {
	if len(b.Preds) == 0 {
		return NewRegisterFile()
	}
	var acc *RegisterFile
	for _, p := range b.Preds {
		pf, ok := final[p]
		if !ok {
			pf = NewRegisterFile()
		}
		if acc == nil {
			acc = pf
			continue
		}
		acc = acc.CombinePaths(pf, store)
	}
	return acc
}

func logStall(method *ir.Method, b *ir.Block, cap int, logger *config.LogGroup) {
	if logger == nil {
		return
	}
	logger.Warnf("classinit: %s.%s block %d exceeded the worklist safety cap (%d); giving up on this method", ownerName(method), method.Name, b.Index, cap)
	if logger.LogsDebug() {
		if cfgIsCyclic(method) {
			logger.Debugf("classinit: %s.%s has a cyclic control-flow graph; the stall is expected for a pathological loop nest", ownerName(method), method.Name)
		} else {
			logger.Debugf("classinit: %s.%s has an acyclic control-flow graph; a stall here points at a fixpoint bug rather than a true cycle", ownerName(method), method.Name)
		}
	}
}

func ownerName(m *ir.Method) string {
	if m == nil || m.Owner == nil {
		return ""
	}
	return m.Owner.Name
}

// cfgIsCyclic reports whether method's control-flow graph contains a cycle,
// using a topological sort: any stall that survives on an acyclic graph is
// a fixpoint bug, not an artifact of loop structure.
func cfgIsCyclic(method *ir.Method) bool {
	g := simple.NewDirectedGraph()
	ids := make(map[*ir.Block]int64, len(method.Blocks()))
	for i, b := range method.Blocks() {
		id := int64(i)
		ids[b] = id
		g.AddNode(simple.Node(id))
	}
	for _, b := range method.Blocks() {
		for _, s := range b.Succs {
			if s == b {
				return true
			}
			g.SetEdge(simple.Edge{F: simple.Node(ids[b]), T: simple.Node(ids[s])})
		}
	}
	_, err := topo.Sort(g)
	return err != nil
}
