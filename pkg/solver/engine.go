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

// Package solver drives satisfiability checking and, on UNSAT, the repair
// search described in spec §4.5. No Go SMT/MaxSAT binding is available
// anywhere in this codebase's dependency surface, so the decision procedure
// below is implemented directly: a backtracking CSP search with
// topology-aware pruning for Phase A, and a weighted branch-and-bound
// search over soft-handle subsets (repair.go) for Phase B. Engine is a
// concrete type that runs Phase A; the Phase B search calls it once per
// candidate subset. Neither phase goes through an interface.
package solver

import (
	"context"
	"sort"

	"github.com/deployfix/deployfix/pkg/encoder"
	"github.com/deployfix/deployfix/pkg/ipr"
)

// Model is a satisfying replica -> node-index assignment.
type Model map[string]int

// Assignment translates a Model into replica -> node-name, the form the
// report builder emits.
func (m Model) Assignment(f *encoder.Formula) map[string]string {
	out := make(map[string]string, len(m))
	for replica, idx := range m {
		out[replica] = f.NodeNames[idx]
	}
	return out
}

// Engine evaluates a single compiled Formula against a fixed IPR's topology
// domains.
type Engine struct {
	formula    *encoder.Formula
	domainOf   map[string][]int // topology key -> node index -> domain id
	existByVar map[string][]encoder.Existential
	pairByVar  map[string][]encoder.Pairwise
}

// NewEngine precomputes the topology-domain lookup tables and per-variable
// assertion indexes for formula against r.
func NewEngine(f *encoder.Formula, r *ipr.IPR) *Engine {
	e := &Engine{
		formula:    f,
		domainOf:   map[string][]int{},
		existByVar: map[string][]encoder.Existential{},
		pairByVar:  map[string][]encoder.Pairwise{},
	}
	keys := map[string]struct{}{}
	for _, a := range f.Existential {
		keys[a.TopologyKey] = struct{}{}
	}
	for _, a := range f.Pairwise {
		keys[a.TopologyKey] = struct{}{}
	}
	for key := range keys {
		domain := r.Domain(key)
		ids := make([]int, len(f.NodeNames))
		for i, name := range f.NodeNames {
			ids[i] = domain.Of(name)
		}
		e.domainOf[key] = ids
	}
	for _, a := range f.Existential {
		e.existByVar[a.Var] = append(e.existByVar[a.Var], a)
	}
	for _, a := range f.Pairwise {
		e.pairByVar[a.Var] = append(e.pairByVar[a.Var], a)
		e.pairByVar[a.Other] = append(e.pairByVar[a.Other], a)
	}
	return e
}

// Solve runs Phase A: a complete backtracking search in the Formula's
// (already-deterministic) variable order. Returns ok=false, no error, on a
// genuine UNSAT; returns a non-nil error (the context's error) only on
// context cancellation or deadline, which Run reports as SolverTimeout.
func (e *Engine) Solve(ctx context.Context) (Model, bool, error) {
	n := len(e.formula.Vars)
	assignment := make([]int, n)
	for i := range assignment {
		assignment[i] = -1
	}
	ok, err := e.backtrack(ctx, 0, assignment)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	model := make(Model, n)
	for i, v := range e.formula.Vars {
		model[v.Replica] = assignment[i]
	}
	return model, true, nil
}

func (e *Engine) backtrack(ctx context.Context, idx int, assignment []int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if idx == len(e.formula.Vars) {
		return e.checkExistential(assignment), nil
	}
	v := e.formula.Vars[idx]
	for _, node := range v.Domain {
		assignment[idx] = node
		if e.consistentPairwise(idx, assignment) {
			ok, err := e.backtrack(ctx, idx+1, assignment)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		assignment[idx] = -1
	}
	return false, nil
}

// consistentPairwise checks every Pairwise assertion touching the variable
// just assigned against any already-assigned peer, giving real pruning
// during search (unlike Existential, which needs the full assignment).
func (e *Engine) consistentPairwise(idx int, assignment []int) bool {
	v := e.formula.Vars[idx]
	for _, a := range e.pairByVar[v.Replica] {
		peer := a.Other
		if peer == v.Replica {
			peer = a.Var
		}
		peerIdx, ok := e.formula.VarIndex[peer]
		if !ok || peerIdx >= idx || assignment[peerIdx] < 0 {
			continue
		}
		domain := e.domainOf[a.TopologyKey]
		if domain[assignment[idx]] == domain[assignment[peerIdx]] {
			return false
		}
	}
	return true
}

func (e *Engine) checkExistential(assignment []int) bool {
	for _, a := range e.formula.Existential {
		varIdx, ok := e.formula.VarIndex[a.Var]
		if !ok {
			continue
		}
		domain := e.domainOf[a.TopologyKey]
		satisfied := false
		for _, cand := range a.Candidates {
			candIdx, ok := e.formula.VarIndex[cand]
			if !ok {
				continue
			}
			if domain[assignment[varIdx]] == domain[assignment[candIdx]] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// SortedNames is a small determinism helper: it copies and sorts a string
// slice without mutating the caller's slice.
func SortedNames(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}
