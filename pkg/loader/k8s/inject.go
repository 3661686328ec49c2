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

package k8s

import (
	"bytes"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// Inject walks the reverse direction of Load: it merges the surviving
// clauses of a repaired IPR back into the original manifest documents,
// preserving every field the Loader doesn't model by mutating each
// Document's Raw map rather than re-marshaling the typed struct.
func Inject(docs []Document, repaired *ipr.IPR) ([]byte, error) {
	var out [][]byte
	for _, d := range docs {
		if d.Deployment == nil {
			rendered, err := sigsyaml.Marshal(d.Raw)
			if err != nil {
				return nil, err
			}
			out = append(out, rendered)
			continue
		}
		w, ok := repaired.Workload(d.Deployment.Name)
		if !ok {
			// A Deployment with no workload in the repaired IPR is treated
			// as having no clauses: its affinity block is removed.
			w = ipr.Workload{Name: d.Deployment.Name}
		}
		if err := injectWorkload(d.Raw, w); err != nil {
			return nil, err
		}
		rendered, err := sigsyaml.Marshal(d.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return bytes.Join(out, []byte("---\n")), nil
}

func injectWorkload(raw map[string]interface{}, w ipr.Workload) error {
	spec, err := nestedMap(raw, "spec", "template", "spec")
	if err != nil {
		return err
	}
	affinity := clausesToAffinity(w.Clauses)
	if affinity == nil {
		delete(spec, "affinity")
		return nil
	}
	encoded, err := sigsyaml.Marshal(affinity)
	if err != nil {
		return err
	}
	var affinityMap map[string]interface{}
	if err := sigsyaml.Unmarshal(encoded, &affinityMap); err != nil {
		return err
	}
	spec["affinity"] = affinityMap
	return nil
}

func nestedMap(raw map[string]interface{}, path ...string) (map[string]interface{}, error) {
	cur := raw
	for _, p := range path {
		next, ok := cur[p]
		if !ok {
			m := map[string]interface{}{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]interface{})
		if !ok {
			return nil, ipr.InvalidIPR{Detail: fmt.Sprintf("manifest field %q is not an object", p)}
		}
		cur = m
	}
	return cur, nil
}

func clausesToAffinity(clauses []ipr.Clause) *corev1.Affinity {
	a := &corev1.Affinity{}
	any := false
	var nodeAffinityTermGroups []ipr.NodeSelectorTerms
	for _, c := range clauses {
		switch c.Kind {
		case ipr.NodeAffinityKind:
			nodeAffinityTermGroups = append(nodeAffinityTermGroups, c.NodeAffinityTerms)
			any = true
		case ipr.PodAffinityKind:
			if a.PodAffinity == nil {
				a.PodAffinity = &corev1.PodAffinity{}
			}
			a.PodAffinity.RequiredDuringSchedulingIgnoredDuringExecution = append(
				a.PodAffinity.RequiredDuringSchedulingIgnoredDuringExecution,
				corev1.PodAffinityTerm{
					LabelSelector: &metav1.LabelSelector{MatchExpressions: expressionsToLabelSelector(c.PodSelector)},
					TopologyKey:   c.TopologyKey,
				})
			any = true
		case ipr.PodAntiAffinityKind:
			if a.PodAntiAffinity == nil {
				a.PodAntiAffinity = &corev1.PodAntiAffinity{}
			}
			a.PodAntiAffinity.RequiredDuringSchedulingIgnoredDuringExecution = append(
				a.PodAntiAffinity.RequiredDuringSchedulingIgnoredDuringExecution,
				corev1.PodAffinityTerm{
					LabelSelector: &metav1.LabelSelector{MatchExpressions: expressionsToLabelSelector(c.PodSelector)},
					TopologyKey:   c.TopologyKey,
				})
			any = true
		}
	}
	if len(nodeAffinityTermGroups) > 0 {
		a.NodeAffinity = &corev1.NodeAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
				NodeSelectorTerms: mergeNodeAffinityTerms(nodeAffinityTermGroups),
			},
		}
	}
	if !any {
		return nil
	}
	return a
}

// mergeNodeAffinityTerms combines multiple AND'd NodeAffinity clauses (each
// itself a disjunction of terms) into the single nodeSelectorTerms list a
// manifest's one nodeAffinity field can express, by distributing the
// conjunction over the disjunctions: every combination of one term per
// clause becomes one emitted term, with MatchExpressions concatenated.
func mergeNodeAffinityTerms(groups []ipr.NodeSelectorTerms) []corev1.NodeSelectorTerm {
	combos := []corev1.NodeSelectorTerm{{}}
	for _, group := range groups {
		if len(group) == 0 {
			// A zero-term clause matches every node (ipr.NodeSelectorTerms.Matches),
			// so it contributes nothing to the conjunction.
			continue
		}
		var next []corev1.NodeSelectorTerm
		for _, combo := range combos {
			for _, term := range group {
				merged := corev1.NodeSelectorTerm{
					MatchExpressions: append(append([]corev1.NodeSelectorRequirement{}, combo.MatchExpressions...), term.MatchExpressions...),
				}
				next = append(next, merged)
			}
		}
		combos = next
	}
	return combos
}

func expressionsToLabelSelector(s ipr.Selector) []metav1.LabelSelectorRequirement {
	out := make([]metav1.LabelSelectorRequirement, 0, len(s.MatchExpressions))
	for _, e := range s.MatchExpressions {
		out = append(out, metav1.LabelSelectorRequirement{
			Key:      e.Key,
			Operator: metav1.LabelSelectorOperator(e.Operator),
			Values:   e.Values,
		})
	}
	return out
}
