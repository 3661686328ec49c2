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

package ipr_test

import (
	corev1 "k8s.io/api/core/v1"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deployfix/deployfix/pkg/ipr"
)

var _ = Describe("Document round-trip", func() {
	It("reproduces an equivalent IPR after ToDocument then FromDocument", func() {
		r, err := ipr.NewIPR(
			[]ipr.Workload{
				{
					Name:     "web",
					Labels:   map[string]string{"app": "web"},
					Replicas: 2,
					Clauses: []ipr.Clause{
						ipr.NewNodeAffinity(ipr.NewSelector(
							corev1.NodeSelectorRequirement{Key: "zone", Operator: corev1.NodeSelectorOpIn, Values: []string{"a"}},
						)),
						ipr.NewPodAntiAffinity(ipr.NewSelector(
							corev1.NodeSelectorRequirement{Key: "app", Operator: corev1.NodeSelectorOpIn, Values: []string{"web"}},
						), "kubernetes.io/hostname"),
					},
					Tolerations: []corev1.Toleration{{Key: "dedicated", Operator: corev1.TolerationOpExists}},
				},
			},
			[]ipr.Node{
				{Name: "n1", Labels: map[string]string{"zone": "a"}},
				{Name: "n2", Labels: map[string]string{"zone": "b"}},
			},
		)
		Expect(err).NotTo(HaveOccurred())

		doc := ipr.ToDocument(r)
		Expect(doc.Workloads).To(HaveLen(1))
		Expect(doc.Nodes).To(HaveLen(2))
		Expect(doc.Domains).To(ContainElement("kubernetes.io/hostname"))

		rebuilt, err := ipr.FromDocument(doc)
		Expect(err).NotTo(HaveOccurred())

		w, ok := rebuilt.Workload("web")
		Expect(ok).To(BeTrue())
		Expect(w.Replicas).To(Equal(2))
		Expect(w.Clauses).To(HaveLen(2))
		Expect(w.Tolerations).To(HaveLen(1))

		n1, ok := rebuilt.Node("n1")
		Expect(ok).To(BeTrue())
		Expect(n1.Labels).To(Equal(map[string]string{"zone": "a"}))
	})

	It("applies an embedded env overlay on FromDocument", func() {
		doc := &ipr.Document{
			Nodes: []ipr.NodeDoc{{Name: "n1", Labels: map[string]string{"zone": "a"}}},
			Env:   map[string]map[string]string{"n1": {"zone": "b", "rack": "r1"}},
		}
		rebuilt, err := ipr.FromDocument(doc)
		Expect(err).NotTo(HaveOccurred())
		n1, ok := rebuilt.Node("n1")
		Expect(ok).To(BeTrue())
		Expect(n1.Labels).To(Equal(map[string]string{"zone": "b", "rack": "r1"}))
	})

	It("rejects an unknown clause kind", func() {
		doc := &ipr.Document{
			Workloads: []ipr.WorkloadDoc{{
				Name:     "w",
				Replicas: 1,
				Clauses:  []ipr.ClauseDoc{{Kind: "bogus"}},
			}},
		}
		_, err := ipr.FromDocument(doc)
		Expect(err).To(HaveOccurred())
	})
})
