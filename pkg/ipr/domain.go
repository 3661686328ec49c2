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
	"sort"

	corev1 "k8s.io/api/core/v1"
)

// TopologyDomain is D_k: the partition of nodes into equivalence classes
// sharing the same value of L(N)[k]. Domain ids are assigned by sorting the
// distinct values lexicographically, so they are stable across runs for a
// fixed node set, independent of map iteration order.
type TopologyDomain struct {
	Key      string
	nodeToID map[string]int
}

// Of returns the domain id of node, or -1 if node isn't part of this IPR at
// all. Every node in the IPR gets a real id from Domain, even one missing
// the topology label entirely: it is placed in its own singleton domain
// rather than grouped with other label-less nodes, since nodes that don't
// carry a topology label share no actual topology.
func (d TopologyDomain) Of(node string) int {
	if id, ok := d.nodeToID[node]; ok {
		return id
	}
	return -1
}

// Domain computes the equivalence classes of the IPR's nodes under
// topology key. "kubernetes.io/hostname" is special-cased as the canonical
// per-node domain: a node missing the label still gets its own singleton
// domain, keyed by its own name, matching kubelet's auto-applied hostname
// label. For any other key, a node missing the label also gets its own
// singleton domain (rather than being grouped with other label-less nodes,
// which would falsely treat unrelated unlabeled nodes as co-located).
func (r *IPR) Domain(key string) TopologyDomain {
	values := map[string]string{} // node name -> value used for grouping
	var missing []string          // nodes with no value for key at all
	for _, n := range r.Nodes {
		if v, ok := n.Labels[key]; ok {
			values[n.Name] = v
		} else if key == HostnameTopologyKey {
			values[n.Name] = n.Name
		} else {
			missing = append(missing, n.Name)
		}
	}
	distinct := map[string]struct{}{}
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	sorted := make([]string, 0, len(distinct))
	for v := range distinct {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)
	idOf := make(map[string]int, len(sorted))
	for i, v := range sorted {
		idOf[v] = i
	}
	nodeToID := make(map[string]int, len(values)+len(missing))
	for node, v := range values {
		nodeToID[node] = idOf[v]
	}
	sort.Strings(missing)
	nextID := len(sorted)
	for _, node := range missing {
		nodeToID[node] = nextID
		nextID++
	}
	return TopologyDomain{Key: key, nodeToID: nodeToID}
}

// DomainPartition groups node names by their label value under key, for
// diagnostic display (the CLI's --domain flag). Unlike Domain, which assigns
// opaque integer ids for the encoder, this keeps the label value itself as
// the grouping key.
func (r *IPR) DomainPartition(key string) map[string][]string {
	out := map[string][]string{}
	for _, n := range r.Nodes {
		v, ok := n.Labels[key]
		if !ok {
			if key != HostnameTopologyKey {
				continue
			}
			v = n.Name
		}
		out[v] = append(out[v], n.Name)
	}
	for v := range out {
		sort.Strings(out[v])
	}
	return out
}

// Eligible returns the set of node names on which a replica of w is
// permitted to land under NodeAffinity and taint/toleration rules alone
// (§4.4 hard assertion 1), in the node order of the IPR.
func (r *IPR) Eligible(w Workload) []string {
	var eligible []string
	for _, n := range r.Nodes {
		if !nodeAffinitySatisfied(w, n) {
			continue
		}
		if !TaintsTolerated(n.Taints, w.Tolerations) {
			continue
		}
		eligible = append(eligible, n.Name)
	}
	return eligible
}

func nodeAffinitySatisfied(w Workload, n Node) bool {
	for _, c := range w.Clauses {
		if c.Kind != NodeAffinityKind {
			continue
		}
		if !c.NodeAffinityTerms.Matches(n.Labels) {
			return false
		}
	}
	return true
}

// TaintsTolerated reports whether every NoSchedule/NoExecute taint in taints
// is tolerated by some toleration in tolerations. PreferNoSchedule taints
// are soft and never block scheduling (§3 taint effects).
func TaintsTolerated(taints []corev1.Taint, tolerations []corev1.Toleration) bool {
	for i := range taints {
		t := taints[i]
		if t.Effect != corev1.TaintEffectNoSchedule && t.Effect != corev1.TaintEffectNoExecute {
			continue
		}
		tolerated := false
		for _, tol := range tolerations {
			if tol.ToleratesTaint(&t) {
				tolerated = true
				break
			}
		}
		if !tolerated {
			return false
		}
	}
	return true
}
