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
	"bytes"
	"os"

	"github.com/spf13/cobra"

	"github.com/deployfix/deployfix/pkg/affinity"
	"github.com/deployfix/deployfix/pkg/envfile"
	"github.com/deployfix/deployfix/pkg/ipr"
	k8sloader "github.com/deployfix/deployfix/pkg/loader/k8s"
	"github.com/deployfix/deployfix/pkg/report"
	"github.com/deployfix/deployfix/pkg/solver"
)

// newK8sCommand groups the three Loader-backed subcommands named in §6.
func newK8sCommand(flags *globalFlags) *cobra.Command {
	k8sCmd := &cobra.Command{
		Use:   "k8s",
		Short: "convert, inject, and repair Deployment-shaped manifests",
	}
	k8sCmd.AddCommand(newImportCommand(flags))
	k8sCmd.AddCommand(newInjectCommand(flags))
	k8sCmd.AddCommand(newGoCommand(flags))
	return k8sCmd
}

func newImportCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <SRC> <OUT>",
		Short: "lower manifests into an IPR dump",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			r, _, err := k8sloader.Load(data, flags.defaultDomainKey)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			rendered, err := k8sloader.WriteDump(ipr.ToDocument(r), flags.format)
			if err != nil {
				return exitErr(ExitSolverError, err)
			}
			if err := os.WriteFile(args[1], rendered, 0o644); err != nil {
				return exitErr(ExitStructuralError, err)
			}
			return nil
		},
	}
}

func newInjectCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inject <SRC> <IR> <OUT>",
		Short: "merge an IPR dump's surviving clauses back into manifests",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcData, err := os.ReadFile(args[0])
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			docs, err := k8sloader.ParseDocuments(srcData)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			irData, err := os.ReadFile(args[1])
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			dumpDoc, err := k8sloader.ReadDumpStrict(irData)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			repaired, err := ipr.FromDocument(dumpDoc)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			merged, err := k8sloader.Inject(docs, repaired)
			if err != nil {
				return exitErr(ExitSolverError, err)
			}
			if err := os.WriteFile(args[2], merged, 0o644); err != nil {
				return exitErr(ExitStructuralError, err)
			}
			return nil
		},
	}
}

func newGoCommand(flags *globalFlags) *cobra.Command {
	var recommend, rejectUnknown bool
	var envFilePath string
	cmd := &cobra.Command{
		Use:   "go <SRC> <INJ> <OUT>",
		Short: "import, check/repair, and inject in one step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := NewLogger().WithName("k8s-go")
			data, err := os.ReadFile(args[0])
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}
			r, docs, err := k8sloader.Load(data, flags.defaultDomainKey)
			if err != nil {
				return exitErr(ExitStructuralError, err)
			}

			if envFilePath != "" {
				envData, err := os.ReadFile(envFilePath)
				if err != nil {
					return exitErr(ExitStructuralError, err)
				}
				overlay, err := envfile.Parse(bytes.NewReader(envData))
				if err != nil {
					return exitErr(ExitStructuralError, err)
				}
				r, err = r.WithOverlay(overlay)
				if err != nil {
					return exitErr(ExitStructuralError, err)
				}
			}

			// §9 open question: --env-file is applied before this
			// --reject-unknown pass, so validation sees post-override labels.
			if rejectUnknown {
				if err := r.ValidateUnknownReferences(); err != nil {
					return exitErr(ExitStructuralError, err)
				}
			}

			graph := affinity.Build(r)
			cycles := graph.Cycles()
			if flags.cycleCheck {
				if bad := affinity.AntiAffinityCycles(cycles); len(bad) > 0 {
					log.Info("anti-affinity cycle detected", "members", bad[0].Members)
					return exitErr(ExitStructuralError, affinity.CycleDetected{Members: bad[0].Members})
				}
			}

			outcome, err := solver.Run(cmd.Context(), r, recommend, solver.DefaultTimeouts)
			exitCode := ExitSAT
			var rep *report.Report
			finalIPR := r
			switch {
			case err == nil:
				rep = report.FromOutcome(outcome, cycles)
				if outcome.RepairedIPR != nil {
					finalIPR = outcome.RepairedIPR
					exitCode = ExitUnsatisfiableRepair
				}
			case isUnsatisfiable(err):
				rep = report.FromOutcome(&solver.Outcome{SAT: false}, cycles)
				exitCode = ExitUnsatisfiableRepair
			default:
				return exitErr(ExitSolverError, err)
			}
			if flags.domain != "" {
				rep.DomainPartition = finalIPR.DomainPartition(flags.domain)
			}

			merged, err := k8sloader.Inject(docs, finalIPR)
			if err != nil {
				return exitErr(ExitSolverError, err)
			}
			if err := os.WriteFile(args[1], merged, 0o644); err != nil {
				return exitErr(ExitStructuralError, err)
			}

			rendered, err := rep.Marshal(flags.format)
			if err != nil {
				return exitErr(ExitSolverError, err)
			}
			if err := os.WriteFile(args[2], rendered, 0o644); err != nil {
				return exitErr(ExitStructuralError, err)
			}

			if exitCode != ExitSAT {
				return exitErr(exitCode, solver.Unsatisfiable{Witness: "see report"})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&recommend, "recommend", false, "search for a minimal repair when unsatisfiable")
	cmd.Flags().BoolVar(&rejectUnknown, "reject-unknown", false, "fail if a selector references an unknown workload or node")
	cmd.Flags().StringVar(&envFilePath, "env-file", "", "node-label overlay file")
	return cmd
}
