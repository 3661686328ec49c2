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

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Document is the self-describing IPR dump format (§6): workloads, nodes,
// domains (the topology keys referenced by the clauses below, informational)
// and env (a node-label overlay that FromDocument applies on read; ToDocument
// leaves it empty, since an overlaid IPR's node labels already include the
// overlay). It is serialized with sigs.k8s.io/yaml so the same struct tree
// backs both --format yaml and --format json.
type Document struct {
	Workloads []WorkloadDoc                `json:"workloads"`
	Nodes     []NodeDoc                     `json:"nodes"`
	Domains   []string                      `json:"domains,omitempty"`
	Env       map[string]map[string]string  `json:"env,omitempty"`
}

// ClauseDoc is one placement clause. Kind selects which of the remaining
// fields is populated, mirroring the Clause tagged union in clauses.go.
type ClauseDoc struct {
	Kind        string                            `json:"kind"`
	Terms       [][]corev1.NodeSelectorRequirement `json:"terms,omitempty"`
	Selector    []corev1.NodeSelectorRequirement    `json:"selector,omitempty"`
	TopologyKey string                              `json:"topologyKey,omitempty"`
}

// WorkloadDoc is the document form of Workload.
type WorkloadDoc struct {
	Name        string               `json:"name"`
	Labels      map[string]string    `json:"labels,omitempty"`
	Replicas    int                  `json:"replicas"`
	Clauses     []ClauseDoc          `json:"clauses,omitempty"`
	Tolerations []corev1.Toleration  `json:"tolerations,omitempty"`
}

// NodeDoc is the document form of Node.
type NodeDoc struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Taints []corev1.Taint    `json:"taints,omitempty"`
}

// ToDocument renders r as the dump-format document.
func ToDocument(r *IPR) *Document {
	doc := &Document{}
	domains := sets.NewString()
	for _, name := range r.WorkloadNames() {
		w, _ := r.Workload(name)
		wd := WorkloadDoc{Name: w.Name, Labels: w.Labels, Replicas: w.Replicas, Tolerations: w.Tolerations}
		for _, c := range w.Clauses {
			switch c.Kind {
			case NodeAffinityKind:
				cd := ClauseDoc{Kind: NodeAffinityKind.String()}
				for _, term := range c.NodeAffinityTerms {
					cd.Terms = append(cd.Terms, term.MatchExpressions)
				}
				wd.Clauses = append(wd.Clauses, cd)
			case PodAffinityKind, PodAntiAffinityKind:
				domains.Insert(c.TopologyKey)
				wd.Clauses = append(wd.Clauses, ClauseDoc{
					Kind:        c.Kind.String(),
					Selector:    c.PodSelector.MatchExpressions,
					TopologyKey: c.TopologyKey,
				})
			}
		}
		doc.Workloads = append(doc.Workloads, wd)
	}
	for _, n := range r.Nodes {
		doc.Nodes = append(doc.Nodes, NodeDoc{Name: n.Name, Labels: n.Labels, Taints: n.Taints})
	}
	doc.Domains = domains.List()
	return doc
}

// FromDocument parses a dump-format document back into an IPR, validating
// §3's invariants along the way.
func FromDocument(doc *Document) (*IPR, error) {
	workloads := make([]Workload, 0, len(doc.Workloads))
	for _, wd := range doc.Workloads {
		var clauses []Clause
		for _, cd := range wd.Clauses {
			switch cd.Kind {
			case NodeAffinityKind.String():
				var terms NodeSelectorTerms
				for _, exprs := range cd.Terms {
					terms = append(terms, NewSelector(exprs...))
				}
				clauses = append(clauses, NewNodeAffinity(terms...))
			case PodAffinityKind.String():
				clauses = append(clauses, NewPodAffinity(NewSelector(cd.Selector...), cd.TopologyKey))
			case PodAntiAffinityKind.String():
				clauses = append(clauses, NewPodAntiAffinity(NewSelector(cd.Selector...), cd.TopologyKey))
			default:
				return nil, InvalidIPR{Detail: "unknown clause kind in document: " + cd.Kind}
			}
		}
		workloads = append(workloads, Workload{
			Name:        wd.Name,
			Labels:      wd.Labels,
			Replicas:    wd.Replicas,
			Clauses:     clauses,
			Tolerations: wd.Tolerations,
		})
	}
	nodes := make([]Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		nodes = append(nodes, Node{Name: nd.Name, Labels: nd.Labels, Taints: nd.Taints})
	}
	r, err := NewIPR(workloads, nodes)
	if err != nil {
		return nil, err
	}
	if len(doc.Env) > 0 {
		return r.WithOverlay(doc.Env)
	}
	return r, nil
}
