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
	"time"

	"github.com/deployfix/deployfix/pkg/encoder"
	"github.com/deployfix/deployfix/pkg/ipr"
)

// Timeouts bounds each phase of the §4.5 state machine independently.
// Cancellation is cooperative: the engine checks ctx between search nodes,
// never mid-assignment.
type Timeouts struct {
	Check time.Duration
	Relax time.Duration
}

// DefaultTimeouts is a generous budget suitable for interactive CLI use.
var DefaultTimeouts = Timeouts{Check: 30 * time.Second, Relax: 60 * time.Second}

// Outcome is the result of a full Run: either SAT (Relaxation is empty and
// RepairedIPR is nil) or a verified repair.
type Outcome struct {
	SAT         bool
	Model       Model
	Assignment  map[string]string
	Relaxation  Relaxation
	RepairedIPR *ipr.IPR
}

// Run executes the Start -> Encode -> Check -> {Done | Relax -> MaxSAT ->
// Reconstruct -> Verify -> Done} state machine from §4.5. With
// recommend=false, UNSAT is returned as Unsatisfiable rather than entering
// Relax, matching "without --recommend, this is the terminal outcome"
// (§7). recommend=true additionally verifies the repaired IPR by
// re-encoding and re-solving it, failing with RepairInternalError if that
// sanity check itself comes back UNSAT.
func Run(ctx context.Context, r *ipr.IPR, recommend bool, timeouts Timeouts) (*Outcome, error) {
	checkCtx, cancel := context.WithTimeout(ctx, timeouts.Check)
	defer cancel()

	formula, err := encoder.Encode(r, nil)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(formula, r)
	model, ok, err := engine.Solve(checkCtx)
	if err != nil {
		return nil, SolverTimeout{Phase: PhaseCheck}
	}
	if ok {
		return &Outcome{SAT: true, Model: model, Assignment: model.Assignment(formula)}, nil
	}
	if !recommend {
		return nil, Unsatisfiable{Witness: "no assignment of replicas to nodes satisfies every hard placement constraint"}
	}

	relaxCtx, cancel2 := context.WithTimeout(ctx, timeouts.Relax)
	defer cancel2()

	relaxation, _, err := searchRepair(relaxCtx, r)
	if err != nil {
		if _, internal := err.(RepairInternalError); internal {
			return nil, err
		}
		return nil, SolverTimeout{Phase: PhaseRelax}
	}

	repaired, err := Reconstruct(r, relaxation)
	if err != nil {
		return nil, RepairInternalError{Detail: err.Error()}
	}

	verifyFormula, err := encoder.Encode(repaired, nil)
	if err != nil {
		return nil, RepairInternalError{Detail: err.Error()}
	}
	verifyEngine := NewEngine(verifyFormula, repaired)
	verifyModel, verifyOK, err := verifyEngine.Solve(relaxCtx)
	if err != nil {
		return nil, SolverTimeout{Phase: PhaseRelax}
	}
	if !verifyOK {
		return nil, RepairInternalError{Detail: "reconstructed IPR did not re-solve as satisfiable"}
	}

	return &Outcome{
		SAT:         false,
		Model:       verifyModel,
		Assignment:  verifyModel.Assignment(verifyFormula),
		Relaxation:  relaxation,
		RepairedIPR: repaired,
	}, nil
}
