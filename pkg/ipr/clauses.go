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

// ClauseKind tags the variant of a PlacementClause. Clauses are a tagged
// union, not an inheritance hierarchy: every encoder pass is a pattern
// match over these three tags. Tolerations are not a clause kind; they are
// kept on Workload.Tolerations.
type ClauseKind int

const (
	NodeAffinityKind ClauseKind = iota
	PodAffinityKind
	PodAntiAffinityKind
)

func (k ClauseKind) String() string {
	switch k {
	case NodeAffinityKind:
		return "NodeAffinity"
	case PodAffinityKind:
		return "PodAffinity"
	case PodAntiAffinityKind:
		return "PodAntiAffinity"
	default:
		return "Unknown"
	}
}

// relaxPriority orders clause kinds for repair tie-breaking: drop
// PodAntiAffinity before PodAffinity before a NodeAffinity term.
func (k ClauseKind) relaxPriority() int {
	switch k {
	case PodAntiAffinityKind:
		return 0
	case PodAffinityKind:
		return 1
	case NodeAffinityKind:
		return 2
	default:
		return 3
	}
}

// RelaxPriority exposes relaxPriority for the repair engine's tie-break rule.
func (k ClauseKind) RelaxPriority() int { return k.relaxPriority() }

// Clause is a single placement clause attached to a workload, at a fixed
// position in A(W). ClauseIndex identifies it within its workload for
// tagging (workload, clause-index, replica-index) in the encoder.
type Clause struct {
	Kind ClauseKind

	// NodeAffinity: disjunction of node-selector terms.
	NodeAffinityTerms NodeSelectorTerms

	// PodAffinity / PodAntiAffinity.
	PodSelector Selector
	TopologyKey string
}

// NewNodeAffinity builds a NodeAffinity clause from a disjunction of terms.
func NewNodeAffinity(terms ...Selector) Clause {
	return Clause{Kind: NodeAffinityKind, NodeAffinityTerms: NodeSelectorTerms(terms)}
}

// NewPodAffinity builds a PodAffinity clause requiring co-location in the
// given topology domain with some replica matching selector.
func NewPodAffinity(selector Selector, topologyKey string) Clause {
	return Clause{Kind: PodAffinityKind, PodSelector: selector, TopologyKey: topologyKey}
}

// NewPodAntiAffinity builds a PodAntiAffinity clause forbidding co-location
// in the given topology domain with any replica matching selector.
func NewPodAntiAffinity(selector Selector, topologyKey string) Clause {
	return Clause{Kind: PodAntiAffinityKind, PodSelector: selector, TopologyKey: topologyKey}
}

// Validate checks the well-formedness invariants that apply regardless of
// clause kind.
func (c Clause) Validate() error {
	switch c.Kind {
	case NodeAffinityKind:
		for _, term := range c.NodeAffinityTerms {
			if err := term.Validate(); err != nil {
				return err
			}
		}
	case PodAffinityKind, PodAntiAffinityKind:
		if err := c.PodSelector.Validate(); err != nil {
			return err
		}
		if c.TopologyKey == "" {
			return InvalidIPR{Detail: "pod (anti-)affinity clause has an empty topology key"}
		}
	default:
		return InvalidIPR{Detail: "unknown clause kind"}
	}
	return nil
}
