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

package ipr

import "go.uber.org/multierr"

// ValidateUnknownReferences implements the --reject-unknown invariant: every
// selector key-value appearing in a Pod(Anti)Affinity clause must appear on
// at least one workload's label set, and every NodeAffinity selector must
// match at least one node. It must be called against the post-override IPR
// (§9 open question: env-file overrides apply before this check).
func (r *IPR) ValidateUnknownReferences() (errs error) {
	for _, w := range r.Workloads {
		for _, c := range w.Clauses {
			switch c.Kind {
			case PodAffinityKind, PodAntiAffinityKind:
				if !r.selectorMatchesAnyWorkloadLabel(c.PodSelector) {
					errs = multierr.Append(errs, UnknownEntity{Ref: w.Name + ": " + describeSelector(c.PodSelector)})
				}
			case NodeAffinityKind:
				for _, term := range c.NodeAffinityTerms {
					if !r.termMatchesAnyNode(term) {
						errs = multierr.Append(errs, UnknownEntity{Ref: w.Name + ": " + describeSelector(term)})
					}
				}
			}
		}
	}
	return errs
}

func (r *IPR) selectorMatchesAnyWorkloadLabel(s Selector) bool {
	for _, w := range r.Workloads {
		if s.Matches(w.Labels) {
			return true
		}
	}
	return false
}

func (r *IPR) termMatchesAnyNode(s Selector) bool {
	for _, n := range r.Nodes {
		if s.Matches(n.Labels) {
			return true
		}
	}
	return false
}

func describeSelector(s Selector) string {
	out := ""
	for i, e := range s.MatchExpressions {
		if i > 0 {
			out += ","
		}
		out += e.Key + string(e.Operator)
	}
	return out
}
