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

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/deployfix/deployfix/pkg/affinity"
	"github.com/deployfix/deployfix/pkg/ipr"
	k8sloader "github.com/deployfix/deployfix/pkg/loader/k8s"
	"github.com/deployfix/deployfix/pkg/report"
	"github.com/deployfix/deployfix/pkg/solver"
)

// newCheckCommand implements `check <PATH>`: §4.3/§4.4/§4.5-A only, run
// against a pre-built IPR dump. It never attempts a repair, matching §6's
// flag list (no --recommend here, unlike `k8s go`).
func newCheckCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <PATH>",
		Short: "check an IPR dump for satisfiability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := NewLogger().WithName("check")
			data, err := os.ReadFile(args[0])
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			doc, err := k8sloader.ReadDumpStrict(data)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			r, err := ipr.FromDocument(doc)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}

			graph := affinity.Build(r)
			cycles := graph.Cycles()
			if flags.cycleCheck {
				if bad := affinity.AntiAffinityCycles(cycles); len(bad) > 0 {
					log.Info("anti-affinity cycle detected", "members", bad[0].Members)
					return exitErr(ExitStructuralError, affinity.CycleDetected{Members: bad[0].Members})
				}
			}

			outcome, err := solver.Run(cmd.Context(), r, false, solver.DefaultTimeouts)
			rep := &report.Report{}
			exitCode := ExitSAT
			switch {
			case err == nil:
				rep = report.FromOutcome(outcome, cycles)
			case isUnsatisfiable(err):
				rep = report.FromOutcome(&solver.Outcome{SAT: false}, cycles)
				exitCode = ExitUnsatisfiableRepair
			default:
				return exitErr(ExitSolverError, err)
			}
			if flags.domain != "" {
				rep.DomainPartition = r.DomainPartition(flags.domain)
			}

			out, err := rep.Marshal(flags.format)
			if err != nil {
				return exitErr(ExitSolverError, err)
			}
			cmd.Println(string(out))
			if exitCode != ExitSAT {
				return exitErr(exitCode, solver.Unsatisfiable{Witness: "see report"})
			}
			return nil
		},
	}
	return cmd
}

func isUnsatisfiable(err error) bool {
	_, ok := err.(solver.Unsatisfiable)
	return ok
}
