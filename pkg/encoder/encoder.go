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

package encoder

import (
	"sort"

	"github.com/deployfix/deployfix/pkg/ipr"
	"github.com/deployfix/deployfix/pkg/labelindex"
)

// Dropped is the set of soft handles the repair engine has chosen to
// relax; Encode folds it directly into the variable domains and omits the
// corresponding assertions, rather than asserting and then retracting
// against a live solver context.
type Dropped map[SoftHandle]bool

// AllSoftHandles enumerates every relaxable clause instance in r: one handle
// per PodAffinity/PodAntiAffinity clause, and, for each NodeAffinity clause,
// one handle per term plus a whole-clause handle. Tolerations are never
// relaxable and are excluded, per §4.5 step 1.
func AllSoftHandles(r *ipr.IPR) []SoftHandle {
	var handles []SoftHandle
	for _, name := range r.WorkloadNames() {
		w, _ := r.Workload(name)
		for j, c := range w.Clauses {
			switch c.Kind {
			case ipr.PodAffinityKind, ipr.PodAntiAffinityKind:
				handles = append(handles, SoftHandle{Workload: name, ClauseIndex: j, TermIndex: -1, Kind: c.Kind, Weight: 1})
			case ipr.NodeAffinityKind:
				for t := range c.NodeAffinityTerms {
					handles = append(handles, SoftHandle{Workload: name, ClauseIndex: j, TermIndex: t, Kind: ipr.NodeAffinityKind, Weight: 1})
				}
				handles = append(handles, SoftHandle{Workload: name, ClauseIndex: j, TermIndex: -1, Kind: ipr.NodeAffinityKind, Weight: 1})
			}
		}
	}
	return handles
}

// Encode lowers r into a Formula, treating every handle in dropped as
// retracted.
func Encode(r *ipr.IPR, dropped Dropped) (*Formula, error) {
	nodeNames := r.NodeNames()
	nodeIndex := make(map[string]int, len(nodeNames))
	for i, n := range nodeNames {
		nodeIndex[n] = i
	}

	workloadEntities := make([]labelindex.Entity, len(r.Workloads))
	for i, w := range r.Workloads {
		workloadEntities[i] = w
	}
	index := labelindex.New(workloadEntities)

	f := &Formula{NodeNames: nodeNames, VarIndex: map[string]int{}}

	for _, name := range r.WorkloadNames() {
		w, _ := r.Workload(name)
		eligibleNodes := eligibleNodeIndices(r, w, nodeIndex, dropped)
		for i := 0; i < w.Replicas; i++ {
			replica := ipr.ReplicaID(name, i)
			f.VarIndex[replica] = len(f.Vars)
			f.Vars = append(f.Vars, Var{
				Replica:  replica,
				Workload: name,
				Index:    i,
				Domain:   append([]int{}, eligibleNodes...),
			})
		}
		for j, c := range w.Clauses {
			switch c.Kind {
			case ipr.PodAffinityKind:
				handle := SoftHandle{Workload: name, ClauseIndex: j, TermIndex: -1, Kind: ipr.PodAffinityKind, Weight: 1}
				if dropped[handle] {
					continue
				}
				candidates := matchingReplicas(r, index, c.PodSelector)
				for i := 0; i < w.Replicas; i++ {
					replica := ipr.ReplicaID(name, i)
					f.Existential = append(f.Existential, Existential{
						Tag:         Tag{Workload: name, ClauseIndex: j, ReplicaIndex: i},
						Handle:      handle,
						Var:         replica,
						Candidates:  candidates,
						TopologyKey: c.TopologyKey,
					})
				}
			case ipr.PodAntiAffinityKind:
				handle := SoftHandle{Workload: name, ClauseIndex: j, TermIndex: -1, Kind: ipr.PodAntiAffinityKind, Weight: 1}
				if dropped[handle] {
					continue
				}
				candidates := matchingReplicas(r, index, c.PodSelector)
				for i := 0; i < w.Replicas; i++ {
					replica := ipr.ReplicaID(name, i)
					for _, other := range candidates {
						if other == replica {
							continue
						}
						f.Pairwise = append(f.Pairwise, Pairwise{
							Tag:         Tag{Workload: name, ClauseIndex: j, ReplicaIndex: i},
							Handle:      handle,
							Var:         replica,
							Other:       other,
							TopologyKey: c.TopologyKey,
						})
					}
				}
			}
		}
	}
	return f, nil
}

// matchingReplicas returns the replica ids of every workload whose labels
// satisfy selector, in deterministic (workload name, replica index) order.
// A self-referential clause naturally includes the owning workload's own
// replicas when its own labels satisfy the selector (§3: "legal, collapses
// to co-locate my own replicas").
func matchingReplicas(r *ipr.IPR, index *labelindex.Index, selector ipr.Selector) []string {
	matches := index.Match(selector)
	names := make([]string, 0, len(matches))
	for _, e := range matches {
		names = append(names, e.ID())
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		w, _ := r.Workload(name)
		out = append(out, w.ReplicaIDs()...)
	}
	return out
}

// eligibleNodeIndices computes Eligible(W) (§4.4 assertion 1) under the
// NodeAffinity clauses/terms that remain active given dropped, intersected
// across multiple NodeAffinity clauses and then with the (non-relaxable)
// taint/toleration constraint.
func eligibleNodeIndices(r *ipr.IPR, w ipr.Workload, nodeIndex map[string]int, dropped Dropped) []int {
	var eligible []int
	for _, n := range r.Nodes {
		if !nodeAffinityActive(w, n.Labels, dropped) {
			continue
		}
		if !ipr.TaintsTolerated(n.Taints, w.Tolerations) {
			continue
		}
		eligible = append(eligible, nodeIndex[n.Name])
	}
	sort.Ints(eligible)
	return eligible
}

func nodeAffinityActive(w ipr.Workload, labels map[string]string, dropped Dropped) bool {
	for j, c := range w.Clauses {
		if c.Kind != ipr.NodeAffinityKind {
			continue
		}
		wholeHandle := SoftHandle{Workload: w.Name, ClauseIndex: j, TermIndex: -1, Kind: ipr.NodeAffinityKind, Weight: 1}
		if dropped[wholeHandle] {
			continue // clause fully relaxed: no restriction
		}
		matched := len(c.NodeAffinityTerms) == 0
		anyTermActive := false
		for t, term := range c.NodeAffinityTerms {
			termHandle := SoftHandle{Workload: w.Name, ClauseIndex: j, TermIndex: t, Kind: ipr.NodeAffinityKind, Weight: 1}
			if dropped[termHandle] {
				continue
			}
			anyTermActive = true
			if term.Matches(labels) {
				matched = true
			}
		}
		if !anyTermActive && len(c.NodeAffinityTerms) > 0 {
			// Every term was individually relaxed: equivalent to dropping
			// the whole clause.
			continue
		}
		if !matched {
			return false
		}
	}
	return true
}
