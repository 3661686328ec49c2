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

// Package k8s is the reference Loader (§4.7): it reads Deployment-shaped
// manifests and a sibling Node list, and lowers
// .spec.template.spec.{affinity,tolerations} and
// .spec.template.metadata.labels into IPR clauses — the same field path
// pkg/apis/provisioning/v1alpha5/requirements.go's NewPodRequirements reads
// from a *corev1.Pod in the teacher.
package k8s

import (
	"bytes"
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// Document is one "---"-delimited YAML document from a manifest file, kept
// in both raw (map) and typed form so Inject can merge a repair back into
// the original document without losing fields the Loader doesn't model.
type Document struct {
	Raw  map[string]interface{}
	Kind string

	Deployment *appsv1.Deployment
	Node       *corev1.Node
}

// SplitDocuments splits a multi-document YAML file on "---" separators,
// skipping empty documents.
func SplitDocuments(data []byte) [][]byte {
	parts := bytes.Split(data, []byte("\n---"))
	var out [][]byte
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseDocuments decodes a multi-document manifest into Documents, typing
// each by its "kind" field.
func ParseDocuments(data []byte) ([]Document, error) {
	var docs []Document
	for _, chunk := range SplitDocuments(data) {
		var raw map[string]interface{}
		if err := sigsyaml.Unmarshal(chunk, &raw); err != nil {
			return nil, ipr.InvalidIPR{Detail: fmt.Sprintf("malformed manifest document: %v", err)}
		}
		if raw == nil {
			continue
		}
		kind, _ := raw["kind"].(string)
		doc := Document{Raw: raw, Kind: kind}
		switch kind {
		case "Deployment":
			dep := &appsv1.Deployment{}
			if err := sigsyaml.Unmarshal(chunk, dep); err != nil {
				return nil, ipr.InvalidIPR{Detail: fmt.Sprintf("malformed Deployment: %v", err)}
			}
			doc.Deployment = dep
		case "Node":
			n := &corev1.Node{}
			if err := sigsyaml.Unmarshal(chunk, n); err != nil {
				return nil, ipr.InvalidIPR{Detail: fmt.Sprintf("malformed Node: %v", err)}
			}
			doc.Node = n
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Load lowers a manifest into an IPR. defaultDomainKey fills the
// topologyKey of any PodAffinity/PodAntiAffinity term that omits one,
// matching the CLI's --default-domain-key flag (§6).
func Load(data []byte, defaultDomainKey string) (*ipr.IPR, []Document, error) {
	docs, err := ParseDocuments(data)
	if err != nil {
		return nil, nil, err
	}
	var workloads []ipr.Workload
	var nodes []ipr.Node
	for _, d := range docs {
		switch {
		case d.Deployment != nil:
			w, err := workloadFromDeployment(d.Deployment, defaultDomainKey)
			if err != nil {
				return nil, nil, err
			}
			workloads = append(workloads, w)
		case d.Node != nil:
			nodes = append(nodes, nodeFromNode(d.Node))
		}
	}
	r, err := ipr.NewIPR(workloads, nodes)
	if err != nil {
		return nil, nil, err
	}
	return r, docs, nil
}

func workloadFromDeployment(dep *appsv1.Deployment, defaultDomainKey string) (ipr.Workload, error) {
	replicas := 1
	if dep.Spec.Replicas != nil {
		replicas = int(*dep.Spec.Replicas)
	}
	w := ipr.Workload{
		Name:        dep.Name,
		Labels:      dep.Spec.Template.Labels,
		Replicas:    replicas,
		Tolerations: dep.Spec.Template.Spec.Tolerations,
	}
	affinityClauses, err := clausesFromAffinity(dep.Spec.Template.Spec.Affinity, defaultDomainKey)
	if err != nil {
		return ipr.Workload{}, err
	}
	w.Clauses = affinityClauses
	return w, nil
}

func clausesFromAffinity(a *corev1.Affinity, defaultDomainKey string) ([]ipr.Clause, error) {
	if a == nil {
		return nil, nil
	}
	var clauses []ipr.Clause
	if a.NodeAffinity != nil && a.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution != nil {
		var terms ipr.NodeSelectorTerms
		for _, t := range a.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms {
			terms = append(terms, ipr.NewSelector(t.MatchExpressions...))
		}
		clauses = append(clauses, ipr.NewNodeAffinity(terms...))
	}
	if a.PodAffinity != nil {
		for _, t := range a.PodAffinity.RequiredDuringSchedulingIgnoredDuringExecution {
			exprs, err := labelSelectorToExpressions(t.LabelSelector)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, ipr.NewPodAffinity(ipr.NewSelector(exprs...), topologyKeyOrDefault(t.TopologyKey, defaultDomainKey)))
		}
	}
	if a.PodAntiAffinity != nil {
		for _, t := range a.PodAntiAffinity.RequiredDuringSchedulingIgnoredDuringExecution {
			exprs, err := labelSelectorToExpressions(t.LabelSelector)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, ipr.NewPodAntiAffinity(ipr.NewSelector(exprs...), topologyKeyOrDefault(t.TopologyKey, defaultDomainKey)))
		}
	}
	return clauses, nil
}

func topologyKeyOrDefault(topologyKey, defaultDomainKey string) string {
	if topologyKey != "" {
		return topologyKey
	}
	if defaultDomainKey != "" {
		return defaultDomainKey
	}
	return ipr.HostnameTopologyKey
}

// labelSelectorToExpressions lowers a metav1.LabelSelector (matchLabels +
// matchExpressions) into the single matchExpressions form pkg/ipr.Selector
// uses internally, the same normalization NewPodRequirements performs on a
// Pod's label selector in the teacher.
func labelSelectorToExpressions(ls *metav1.LabelSelector) ([]corev1.NodeSelectorRequirement, error) {
	if ls == nil {
		return nil, nil
	}
	exprs := make([]corev1.NodeSelectorRequirement, 0, len(ls.MatchLabels)+len(ls.MatchExpressions))
	keys := make([]string, 0, len(ls.MatchLabels))
	for k := range ls.MatchLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		exprs = append(exprs, corev1.NodeSelectorRequirement{
			Key: k, Operator: corev1.NodeSelectorOpIn, Values: []string{ls.MatchLabels[k]},
		})
	}
	for _, e := range ls.MatchExpressions {
		exprs = append(exprs, corev1.NodeSelectorRequirement{
			Key:      e.Key,
			Operator: corev1.NodeSelectorOperator(e.Operator),
			Values:   e.Values,
		})
	}
	return exprs, nil
}

func nodeFromNode(n *corev1.Node) ipr.Node {
	return ipr.Node{
		Name:   n.Name,
		Labels: n.Labels,
		Taints: n.Spec.Taints,
	}
}
