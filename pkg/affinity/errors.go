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

package affinity

import (
	"fmt"
	"strings"
)

// CycleDetected is fatal under --cycle-check when an anti-affinity cycle
// exists (§4.3, §7).
type CycleDetected struct {
	Members []string
}

func (e CycleDetected) Error() string {
	return fmt.Sprintf("anti-affinity cycle detected: %s", strings.Join(e.Members, " -> "))
}

// AntiAffinityCycles filters cycles to those classified AntiAffinity, the
// ones --cycle-check treats as structural errors.
func AntiAffinityCycles(cycles []Cycle) []Cycle {
	var out []Cycle
	for _, c := range cycles {
		if c.Kind == AntiAffinity {
			out = append(out, c)
		}
	}
	return out
}
