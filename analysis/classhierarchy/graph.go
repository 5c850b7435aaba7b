// Package classhierarchy discovers, for a configured common-parent class,
// the set of classes that descend from it. This is the first step of the
// program driver (spec.md component H): before any method can be scheduled
// for analysis, the driver needs to know which classes' constructions are
// worth tracking.
package classhierarchy

import (
	"github.com/chaozhouzhang/redex/ir"
	"github.com/yourbasic/graph"
)

// Descendants walks the subclass relation starting at root and returns every
// class reachable from it (root itself is not included). classes is the
// full set of classes known to the program; only classes whose supertype
// chain passes through root are visited, so the traversal is linear in the
// number of classes regardless of hierarchy depth.
func Descendants(root *ir.Class, classes []*ir.Class) []*ir.Class {
	g := buildChildGraph(classes)
	ids, ok := g.index[root]
	if !ok {
		return directScan(root, classes)
	}

	visited := map[int]bool{ids: true}
	queue := []int{ids}
	var out []*ir.Class
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		g.mutable.Visit(v, func(w int, _ int64) bool {
			if !visited[w] {
				visited[w] = true
				queue = append(queue, w)
				out = append(out, g.classes[w])
			}
			return false
		})
	}
	return out
}

// directScan is the fallback used when root is not itself part of the
// provided class set (e.g. a library supertype known only by name): it
// simply checks, for every class, whether root appears in its supertype
// chain.
func directScan(root *ir.Class, classes []*ir.Class) []*ir.Class {
	var out []*ir.Class
	for _, c := range classes {
		if c == root {
			continue
		}
		for s := c.Super; s != nil; s = s.Super {
			if s == root {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

type childGraph struct {
	mutable *graph.Mutable
	index   map[*ir.Class]int
	classes []*ir.Class
}

// buildChildGraph builds a directed graph with one edge per class pointing
// from its direct supertype to itself, so that a breadth-first walk from a
// node visits exactly its descendants.
func buildChildGraph(classes []*ir.Class) *childGraph {
	index := make(map[*ir.Class]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	g := graph.New(len(classes))
	for _, c := range classes {
		if c.Super == nil {
			continue
		}
		if superIdx, ok := index[c.Super]; ok {
			g.AddCost(superIdx, index[c], 1)
		}
	}
	return &childGraph{mutable: g, index: index, classes: classes}
}
