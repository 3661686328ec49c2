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

// Package ipr implements the intermediate placement representation: the
// language-neutral, in-memory model of workloads, replicas, nodes, labels
// and typed affinity predicates that the rest of the pipeline operates on.
// The package does no I/O; construction validates the data-model invariants
// and fails with InvalidIPR rather than producing a malformed value.
package ipr

import (
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
)

// HostnameTopologyKey is the canonical per-node topology domain.
const HostnameTopologyKey = "kubernetes.io/hostname"

// Node is a candidate scheduling target: a unique name, a label set, and the
// taints it bears.
type Node struct {
	Name   string
	Labels map[string]string
	Taints []corev1.Taint
}

// ID and LabelSet let a Node satisfy labelindex.Entity directly; ipr does
// not import labelindex.
func (n Node) ID() string                  { return n.Name }
func (n Node) LabelSet() map[string]string { return n.Labels }

// Workload is *W*: a unique name, a label set, a replica count, an ordered
// list of placement clauses, and tolerations.
type Workload struct {
	Name        string
	Labels      map[string]string
	Replicas    int
	Clauses     []Clause
	Tolerations []corev1.Toleration
}

func (w Workload) ID() string                  { return w.Name }
func (w Workload) LabelSet() map[string]string { return w.Labels }

// ReplicaID returns the stable identifier of the i-th replica of w, used as
// the tag component and as the encoder's variable name.
func ReplicaID(workload string, i int) string {
	return fmt.Sprintf("%s/%d", workload, i)
}

// ReplicaIDs names every w_i of w in index order.
func (w Workload) ReplicaIDs() []string {
	ids := make([]string, w.Replicas)
	for i := 0; i < w.Replicas; i++ {
		ids[i] = ReplicaID(w.Name, i)
	}
	return ids
}

// IPR is the intermediate placement representation: immutable after
// construction, shared by reference among read-only consumers.
type IPR struct {
	Workloads []Workload
	Nodes     []Node

	byWorkload map[string]*Workload
	byNode     map[string]*Node
}

// Workload looks up a workload by name.
func (r *IPR) Workload(name string) (Workload, bool) {
	w, ok := r.byWorkload[name]
	if !ok {
		return Workload{}, false
	}
	return *w, true
}

// Node looks up a node by name.
func (r *IPR) Node(name string) (Node, bool) {
	n, ok := r.byNode[name]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// NodeNames returns node names in the order passed to NewIPR (deterministic,
// not re-sorted, so caller-provided ordering controls the stable variable
// domain [0, |Nodes|) used by the encoder).
func (r *IPR) NodeNames() []string {
	names := make([]string, len(r.Nodes))
	for i, n := range r.Nodes {
		names[i] = n.Name
	}
	return names
}

// WorkloadNames returns workload names sorted lexicographically, the order
// used wherever the spec requires a deterministic merge (§5) or tie-break
// (§4.5 step 2).
func (r *IPR) WorkloadNames() []string {
	names := make([]string, 0, len(r.Workloads))
	for _, w := range r.Workloads {
		names = append(names, w.Name)
	}
	sort.Strings(names)
	return names
}

// NewIPR validates §3's invariants and constructs an immutable IPR.
func NewIPR(workloads []Workload, nodes []Node) (*IPR, error) {
	r := &IPR{
		Workloads:  append([]Workload{}, workloads...),
		Nodes:      append([]Node{}, nodes...),
		byWorkload: map[string]*Workload{},
		byNode:     map[string]*Node{},
	}
	for i := range r.Workloads {
		w := &r.Workloads[i]
		if w.Name == "" {
			return nil, InvalidIPR{Detail: "workload has an empty name"}
		}
		if _, dup := r.byWorkload[w.Name]; dup {
			return nil, InvalidIPR{Detail: "duplicate workload name " + w.Name}
		}
		if w.Replicas < 1 {
			return nil, InvalidIPR{Detail: "workload " + w.Name + " has replicas < 1"}
		}
		for key := range w.Labels {
			if key == "" {
				return nil, InvalidIPR{Detail: "workload " + w.Name + " has an empty label key"}
			}
		}
		for _, c := range w.Clauses {
			if err := c.Validate(); err != nil {
				return nil, err
			}
		}
		r.byWorkload[w.Name] = w
	}
	for i := range r.Nodes {
		n := &r.Nodes[i]
		if n.Name == "" {
			return nil, InvalidIPR{Detail: "node has an empty name"}
		}
		if _, dup := r.byNode[n.Name]; dup {
			return nil, InvalidIPR{Detail: "duplicate node name " + n.Name}
		}
		for key := range n.Labels {
			if key == "" {
				return nil, InvalidIPR{Detail: "node " + n.Name + " has an empty label key"}
			}
		}
		r.byNode[n.Name] = n
	}
	return r, nil
}

// WithOverlay returns a new IPR whose node label sets are merged with
// overlay (keyed by node name, applied as --env-file augmentation), leaving
// the receiver untouched. It is always called before any validation that
// must observe post-override labels (§9 open question).
func (r *IPR) WithOverlay(overlay map[string]map[string]string) (*IPR, error) {
	nodes := make([]Node, len(r.Nodes))
	for i, n := range r.Nodes {
		merged := make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			merged[k] = v
		}
		for k, v := range overlay[n.Name] {
			merged[k] = v
		}
		nodes[i] = Node{Name: n.Name, Labels: merged, Taints: n.Taints}
	}
	return NewIPR(r.Workloads, nodes)
}
