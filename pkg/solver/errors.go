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
	"fmt"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// Phase identifies where in the §4.5 state machine a timeout occurred.
type Phase string

const (
	PhaseCheck Phase = "check"
	PhaseRelax Phase = "relax"
)

// SolverTimeout is returned when a phase's time budget is exceeded; no
// repair is attempted or returned.
type SolverTimeout struct {
	Phase Phase
}

func (e SolverTimeout) Error() string {
	return fmt.Sprintf("solver timed out during phase %q", e.Phase)
}

// RepairInternalError means the repair search produced (or could not
// produce) an IPR that re-solves as SAT — a bug, per §4.5 step 4.
type RepairInternalError struct {
	Detail string
}

func (e RepairInternalError) Error() string {
	return fmt.Sprintf("repair internal error: %s", e.Detail)
}

// Unsatisfiable is the terminal outcome without --recommend.
type Unsatisfiable struct {
	Witness string
}

func (e Unsatisfiable) Error() string {
	return fmt.Sprintf("unsatisfiable: %s", e.Witness)
}

// RepairSuggested pairs a chosen relaxation with the repaired IPR it was
// verified against, as an error value. Run does not return it: a repair is
// reported through Outcome.Relaxation and Outcome.RepairedIPR.
type RepairSuggested struct {
	Relaxations Relaxation
	RepairedIPR *ipr.IPR
}

func (e RepairSuggested) Error() string {
	return fmt.Sprintf("unsatisfiable, %d relaxation(s) suggested", len(e.Relaxations))
}
