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

// Package cli wires the §6 CLI surface on top of github.com/spf13/cobra and
// github.com/spf13/pflag, the same libraries the teacher's own
// tools/karpenter-convert subcommand is built on: convert.NewCmd there
// returns a *cobra.Command the way NewRootCommand does here.
package cli

import (
	"github.com/awslabs/operatorpkg/serrors"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// Exit codes from §6.
const (
	ExitSAT                = 0
	ExitUnsatisfiableRepair = 1
	ExitStructuralError     = 2
	ExitSolverError         = 3
)

// globalFlags holds the flags every subcommand shares.
type globalFlags struct {
	format           string
	domain           string
	defaultDomainKey string
	cycleCheck       bool
}

// ExitError pairs an error with the process exit code it should produce.
// main.go type-asserts for it and falls back to ExitSolverError for any
// other error, so every code path that can fail picks its exit code
// explicitly at the point the error is known.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// exitErr wraps err with the exit code it should produce, enriching it with
// serrors.Wrap the way pkg/batcher and pkg/apis/v1/ec2nodeclass_status.go
// enrich their own error returns with key/value context.
func exitErr(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: serrors.Wrap(err, "exitCode", code)}
}

// NewLogger builds the structured logger every subcommand uses, the same
// go-logr-over-zap construction pkg/operator wires for the teacher's own
// controllers.
func NewLogger() logr.Logger {
	zapLog, err := zap.NewProduction()
	if err != nil {
		zapLog = zap.NewNop()
	}
	return zapr.NewLogger(zapLog)
}

// NewRootCommand builds the deployfix root command.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "deployfix",
		Short:         "check and repair container-orchestrator placement manifests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.format, "format", "yaml", "output format: yaml or json")
	root.PersistentFlags().StringVar(&flags.domain, "domain", "", "report the node partition under this topology key")
	root.PersistentFlags().StringVar(&flags.defaultDomainKey, "default-domain-key", ipr.HostnameTopologyKey, "topology key applied when a pod (anti-)affinity clause omits one")
	root.PersistentFlags().BoolVar(&flags.cycleCheck, "cycle-check", false, "fail with a structural error on anti-affinity cycles")

	root.AddCommand(newCheckCommand(flags))
	root.AddCommand(newK8sCommand(flags))
	return root
}
