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

package solver

import (
	"context"
	"sort"

	"github.com/deployfix/deployfix/pkg/encoder"
	"github.com/deployfix/deployfix/pkg/ipr"
)

// Relaxation is the set of soft handles a repair dropped to restore
// satisfiability, sorted by the §4.5 step 2 tie-break for deterministic
// reporting.
type Relaxation []encoder.SoftHandle

func sortedRelaxation(handles []encoder.SoftHandle) Relaxation {
	out := append(Relaxation{}, handles...)
	sort.Slice(out, func(i, j int) bool { return encoder.Less(out[i], out[j]) })
	return out
}

// searchRepair implements Phase B: it retracts the relaxable hard
// assertions and searches, in increasing total weight, for the
// lexicographically-preferred subset of soft handles whose removal restores
// satisfiability. Weights default to 1 everywhere AllSoftHandles assigns
// them, so "increasing total weight" is "increasing subset cardinality";
// the search is an iterative-deepening branch and bound over subset size,
// trying same-size candidates in the §4.5 step 2 tie-break order so the
// first satisfying subset found at a given size is already the preferred
// one — this stands in for the weighted MaxSAT facility §4.5 names, absent
// any real Go MaxSAT/SMT dependency in the corpus (see DESIGN.md).
func searchRepair(ctx context.Context, r *ipr.IPR) (Relaxation, Model, error) {
	handles := encoder.AllSoftHandles(r)
	sort.Slice(handles, func(i, j int) bool { return encoder.Less(handles[i], handles[j]) })

	for k := 1; k <= len(handles); k++ {
		combo, model, found, err := searchSubsetsOfSize(ctx, r, handles, k)
		if err != nil {
			return nil, nil, err
		}
		if found {
			return sortedRelaxation(combo), model, nil
		}
	}
	return nil, nil, RepairInternalError{Detail: "no subset of relaxable clauses restores satisfiability"}
}

func searchSubsetsOfSize(ctx context.Context, r *ipr.IPR, handles []encoder.SoftHandle, k int) ([]encoder.SoftHandle, Model, bool, error) {
	n := len(handles)
	combo := make([]int, k)
	for i := range combo {
		combo[i] = i
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, false, err
		}
		dropped := make(encoder.Dropped, k)
		chosen := make([]encoder.SoftHandle, k)
		for i, idx := range combo {
			dropped[handles[idx]] = true
			chosen[i] = handles[idx]
		}
		formula, err := encoder.Encode(r, dropped)
		if err != nil {
			return nil, nil, false, err
		}
		engine := NewEngine(formula, r)
		model, ok, err := engine.Solve(ctx)
		if err != nil {
			return nil, nil, false, err
		}
		if ok {
			return chosen, model, true, nil
		}
		if !nextCombination(combo, n) {
			return nil, nil, false, nil
		}
	}
}

// nextCombination advances combo (strictly increasing indices into
// [0,n)) to the next combination in lexicographic order; returns false once
// combinations are exhausted.
func nextCombination(combo []int, n int) bool {
	k := len(combo)
	i := k - 1
	for ; i >= 0; i-- {
		if combo[i] != i+n-k {
			break
		}
	}
	if i < 0 {
		return false
	}
	combo[i]++
	for j := i + 1; j < k; j++ {
		combo[j] = combo[j-1] + 1
	}
	return true
}

// Reconstruct builds a new IPR with every handle in relaxation removed from
// its workload: whole clauses for PodAffinity/PodAntiAffinity and
// whole-clause NodeAffinity handles, individual terms for NodeAffinity term
// handles (falling back to whole-clause removal if every term of a clause
// ended up relaxed). The input IPR is never mutated.
func Reconstruct(r *ipr.IPR, relaxation Relaxation) (*ipr.IPR, error) {
	dropClause := map[string]map[int]bool{}     // workload -> clause index -> drop whole clause
	dropTerm := map[string]map[int]map[int]bool{} // workload -> clause index -> term index -> drop

	for _, h := range relaxation {
		if dropClause[h.Workload] == nil {
			dropClause[h.Workload] = map[int]bool{}
		}
		if h.Kind != ipr.NodeAffinityKind || h.TermIndex < 0 {
			dropClause[h.Workload][h.ClauseIndex] = true
			continue
		}
		if dropTerm[h.Workload] == nil {
			dropTerm[h.Workload] = map[int]map[int]bool{}
		}
		if dropTerm[h.Workload][h.ClauseIndex] == nil {
			dropTerm[h.Workload][h.ClauseIndex] = map[int]bool{}
		}
		dropTerm[h.Workload][h.ClauseIndex][h.TermIndex] = true
	}

	newWorkloads := make([]ipr.Workload, len(r.Workloads))
	for wi, w := range r.Workloads {
		var kept []ipr.Clause
		for ci, c := range w.Clauses {
			if dropClause[w.Name][ci] {
				continue
			}
			terms := dropTerm[w.Name][ci]
			if c.Kind == ipr.NodeAffinityKind && len(terms) > 0 {
				var remaining ipr.NodeSelectorTerms
				for ti, term := range c.NodeAffinityTerms {
					if terms[ti] {
						continue
					}
					remaining = append(remaining, term)
				}
				if len(remaining) == 0 {
					continue // every term relaxed: same as whole-clause removal
				}
				c.NodeAffinityTerms = remaining
			}
			kept = append(kept, c)
		}
		newWorkloads[wi] = ipr.Workload{
			Name:        w.Name,
			Labels:      w.Labels,
			Replicas:    w.Replicas,
			Clauses:     kept,
			Tolerations: w.Tolerations,
		}
	}
	return ipr.NewIPR(newWorkloads, r.Nodes)
}
