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

package main

import (
	"fmt"
	"os"

	"github.com/deployfix/deployfix/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		exitErr, ok := err.(*cli.ExitError)
		if !ok {
			fmt.Fprintln(os.Stderr, "deployfix:", err)
			os.Exit(cli.ExitSolverError)
		}
		if exitErr.Code != cli.ExitSAT {
			fmt.Fprintln(os.Stderr, "deployfix:", exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
}
