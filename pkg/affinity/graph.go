/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package affinity builds the workload-to-workload affinity dependency graph
// and classifies its cycles. The graph is an arena of integer node/edge ids
// (gonum's simple.DirectedGraph) rather than an owning-pointer structure, so
// cyclic affinity relationships are represented without cyclic ownership.
package affinity

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// Edge is a single workload-to-workload affinity dependency.
type Edge struct {
	From string
	To   string
	Kind ipr.ClauseKind
}

// CycleKind classifies a detected cycle.
type CycleKind int

const (
	// AffinityOnly cycles are trivially satisfiable: co-locate the whole
	// cycle in one topology domain.
	AffinityOnly CycleKind = iota
	// AntiAffinity cycles contain at least one PodAntiAffinity edge and may
	// be structurally unsatisfiable depending on fleet size.
	AntiAffinity
)

// Cycle is a strongly-connected component of size > 1, or a self-loop.
type Cycle struct {
	Members []string
	Edges   []Edge
	Kind    CycleKind
}

// Graph is the built affinity dependency graph: nodes are workloads, a
// directed edge W -> W' exists whenever some clause of W has a selector that
// can match W''s label set (a syntactic over-approximation using only
// workload label sets, never node context).
type Graph struct {
	names  []string // workload names in deterministic (lexicographic) order
	id     map[string]int64
	g      *simple.DirectedGraph
	edges  []Edge
}

// Build constructs the affinity graph for r. Construction is pure and reads
// only workload label sets, so it can run before node-aware solving.
func Build(r *ipr.IPR) *Graph {
	names := r.WorkloadNames() // already sorted, deterministic merge order
	id := make(map[string]int64, len(names))
	g := simple.NewDirectedGraph()
	for i, name := range names {
		id[name] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}

	ag := &Graph{names: names, id: id, g: g}

	for _, name := range names {
		w, _ := r.Workload(name)
		for _, c := range w.Clauses {
			if c.Kind != ipr.PodAffinityKind && c.Kind != ipr.PodAntiAffinityKind {
				continue
			}
			for _, otherName := range names {
				other, _ := r.Workload(otherName)
				if !c.PodSelector.Matches(other.Labels) {
					continue
				}
				e := Edge{From: name, To: otherName, Kind: c.Kind}
				ag.edges = append(ag.edges, e)
				from, to := id[name], id[otherName]
				if from != to && !g.HasEdgeFromTo(from, to) {
					g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
				}
			}
		}
	}
	return ag
}

// BuildParallel computes the same edge set as Build, but discovers each
// workload's outgoing edges concurrently with golang.org/x/sync/errgroup
// (§5) before assembling the graph sequentially — edge discovery per
// workload is independent (it only reads label sets), so sharding it
// across goroutines never changes the result, only the wall-clock on large
// fleets.
func BuildParallel(ctx context.Context, r *ipr.IPR) (*Graph, error) {
	names := r.WorkloadNames()
	perWorkload := make([][]Edge, len(names))

	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			w, _ := r.Workload(name)
			var edges []Edge
			for _, c := range w.Clauses {
				if c.Kind != ipr.PodAffinityKind && c.Kind != ipr.PodAntiAffinityKind {
					continue
				}
				for _, otherName := range names {
					other, _ := r.Workload(otherName)
					if c.PodSelector.Matches(other.Labels) {
						edges = append(edges, Edge{From: name, To: otherName, Kind: c.Kind})
					}
				}
			}
			perWorkload[i] = edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	id := make(map[string]int64, len(names))
	gr := simple.NewDirectedGraph()
	for i, name := range names {
		id[name] = int64(i)
		gr.AddNode(simple.Node(int64(i)))
	}
	ag := &Graph{names: names, id: id, g: gr}
	for _, edges := range perWorkload {
		for _, e := range edges {
			ag.edges = append(ag.edges, e)
			from, to := id[e.From], id[e.To]
			if from != to && !gr.HasEdgeFromTo(from, to) {
				gr.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
			}
		}
	}
	return ag, nil
}

// Edges returns every affinity edge found during Build, including
// self-edges (W -> W), in discovery order.
func (ag *Graph) Edges() []Edge {
	return ag.edges
}

// Cycles runs Tarjan's SCC decomposition and classifies every non-trivial
// component (size > 1) or self-loop as an affinity-only or anti-affinity
// cycle.
func (ag *Graph) Cycles() []Cycle {
	sccs := topo.TarjanSCC(ag.g)
	var cycles []Cycle
	for _, scc := range sccs {
		if len(scc) < 2 {
			if len(scc) == 1 && ag.hasSelfLoop(scc[0]) {
				cycles = append(cycles, ag.classify(scc))
			}
			continue
		}
		cycles = append(cycles, ag.classify(scc))
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Members[0] < cycles[j].Members[0]
	})
	return cycles
}

// hasSelfLoop checks ag.edges directly rather than ag.g: Build never calls
// g.SetEdge for a self-edge (simple.DirectedGraph.SetEdge panics on one), so
// the gonum graph itself never carries self-loops to ask about.
func (ag *Graph) hasSelfLoop(n graph.Node) bool {
	name := ag.names[n.ID()]
	for _, e := range ag.edges {
		if e.From == name && e.To == name {
			return true
		}
	}
	return false
}

func (ag *Graph) classify(scc []graph.Node) Cycle {
	memberIDs := map[int64]struct{}{}
	for _, n := range scc {
		memberIDs[n.ID()] = struct{}{}
	}
	members := make([]string, 0, len(scc))
	for _, name := range ag.names {
		if _, ok := memberIDs[ag.id[name]]; ok {
			members = append(members, name)
		}
	}
	var memberEdges []Edge
	kind := AffinityOnly
	for _, e := range ag.edges {
		_, fromIn := memberIDs[ag.id[e.From]]
		_, toIn := memberIDs[ag.id[e.To]]
		if !fromIn || !toIn {
			continue
		}
		if len(scc) == 1 && e.From != e.To {
			continue // not part of this self-loop cycle
		}
		memberEdges = append(memberEdges, e)
		if e.Kind == ipr.PodAntiAffinityKind {
			kind = AntiAffinity
		}
	}
	return Cycle{Members: members, Edges: memberEdges, Kind: kind}
}
