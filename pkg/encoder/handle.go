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

// Package encoder lowers an IPR into a first-order formula over integer
// placement variables. The formula is a small expression tree (variable
// domains plus existential/pairwise-inequality assertions) rather than a
// direct call into a solver API, so pkg/solver can consume it independent of
// which decision procedure backs it.
package encoder

import (
	"fmt"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// SoftHandle is a named, weighted assertion the repair engine may drop. Two
// handles with equal fields are the same handle (SoftHandle is a value
// type, safe to use as a map key).
type SoftHandle struct {
	Workload    string
	ClauseIndex int
	// TermIndex is the index of a NodeAffinity disjunction term when this
	// handle represents dropping a single term (partial relaxation); -1 for
	// PodAffinity/PodAntiAffinity handles and for the "drop whole clause"
	// NodeAffinity handle.
	TermIndex int
	Kind      ipr.ClauseKind
	Weight    int
}

// Tag identifies the (workload, clause-index, replica-index) triple a
// concrete assertion instance was compiled from, for diagnostics.
type Tag struct {
	Workload     string
	ClauseIndex  int
	ReplicaIndex int
}

func (t Tag) String() string {
	return fmt.Sprintf("%s[%d]/clause#%d", t.Workload, t.ReplicaIndex, t.ClauseIndex)
}

// String renders a handle for diagnostics and determinism-sensitive sorting.
func (h SoftHandle) String() string {
	if h.TermIndex >= 0 {
		return fmt.Sprintf("%s/clause#%d/term#%d", h.Workload, h.ClauseIndex, h.TermIndex)
	}
	return fmt.Sprintf("%s/clause#%d", h.Workload, h.ClauseIndex)
}

// Less implements the §4.5 step 2 tie-break: drop PodAntiAffinity before
// PodAffinity before a NodeAffinity term/clause, then by workload name, then
// by clause/term index.
func Less(a, b SoftHandle) bool {
	if pa, pb := a.Kind.RelaxPriority(), b.Kind.RelaxPriority(); pa != pb {
		return pa < pb
	}
	if a.Workload != b.Workload {
		return a.Workload < b.Workload
	}
	if a.ClauseIndex != b.ClauseIndex {
		return a.ClauseIndex < b.ClauseIndex
	}
	// Prefer partial (term-level, TermIndex >= 0) over whole-clause (-1)
	// relaxation, per the §9 open question.
	if (a.TermIndex < 0) != (b.TermIndex < 0) {
		return a.TermIndex >= 0
	}
	return a.TermIndex < b.TermIndex
}
