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

var _ = Describe("IPR construction", func() {
	It("rejects an empty workload name", func() {
		_, err := ipr.NewIPR([]ipr.Workload{{Name: "", Replicas: 1}}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate workload name", func() {
		w := ipr.Workload{Name: "a", Replicas: 1}
		_, err := ipr.NewIPR([]ipr.Workload{w, w}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects replicas < 1", func() {
		_, err := ipr.NewIPR([]ipr.Workload{{Name: "a", Replicas: 0}}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate node name", func() {
		n := ipr.Node{Name: "n1"}
		_, err := ipr.NewIPR(nil, []ipr.Node{n, n})
		Expect(err).To(HaveOccurred())
	})

	It("builds replica ids as <workload>/<index>", func() {
		w := ipr.Workload{Name: "api", Replicas: 3}
		Expect(w.ReplicaIDs()).To(Equal([]string{"api/0", "api/1", "api/2"}))
	})

	It("returns workload names sorted lexicographically regardless of input order", func() {
		r, err := ipr.NewIPR([]ipr.Workload{
			{Name: "zeta", Replicas: 1},
			{Name: "alpha", Replicas: 1},
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.WorkloadNames()).To(Equal([]string{"alpha", "zeta"}))
	})
})

var _ = Describe("WithOverlay", func() {
	It("merges node labels without mutating the receiver", func() {
		r, err := ipr.NewIPR(nil, []ipr.Node{
			{Name: "n1", Labels: map[string]string{"zone": "a"}},
		})
		Expect(err).NotTo(HaveOccurred())

		overlaid, err := r.WithOverlay(map[string]map[string]string{
			"n1": {"zone": "b", "rack": "r1"},
		})
		Expect(err).NotTo(HaveOccurred())

		orig, _ := r.Node("n1")
		Expect(orig.Labels).To(Equal(map[string]string{"zone": "a"}))

		merged, _ := overlaid.Node("n1")
		Expect(merged.Labels).To(Equal(map[string]string{"zone": "b", "rack": "r1"}))
	})
})

var _ = Describe("TaintsTolerated", func() {
	It("blocks NoSchedule taints without a matching toleration", func() {
		taints := []corev1.Taint{{Key: "dedicated", Value: "gpu", Effect: corev1.TaintEffectNoSchedule}}
		Expect(ipr.TaintsTolerated(taints, nil)).To(BeFalse())
	})

	It("admits when a toleration covers the taint", func() {
		taints := []corev1.Taint{{Key: "dedicated", Value: "gpu", Effect: corev1.TaintEffectNoSchedule}}
		tolerations := []corev1.Toleration{{Key: "dedicated", Operator: corev1.TolerationOpEqual, Value: "gpu", Effect: corev1.TaintEffectNoSchedule}}
		Expect(ipr.TaintsTolerated(taints, tolerations)).To(BeTrue())
	})

	It("never blocks on PreferNoSchedule taints", func() {
		taints := []corev1.Taint{{Key: "soft", Effect: corev1.TaintEffectPreferNoSchedule}}
		Expect(ipr.TaintsTolerated(taints, nil)).To(BeTrue())
	})
})

var _ = Describe("Domain", func() {
	It("special-cases hostname as a per-node singleton domain even when unlabeled", func() {
		r, err := ipr.NewIPR(nil, []ipr.Node{{Name: "n1"}, {Name: "n2"}})
		Expect(err).NotTo(HaveOccurred())
		d := r.Domain(ipr.HostnameTopologyKey)
		Expect(d.Of("n1")).NotTo(Equal(d.Of("n2")))
	})

	It("groups nodes sharing a label value into the same domain", func() {
		r, err := ipr.NewIPR(nil, []ipr.Node{
			{Name: "n1", Labels: map[string]string{"zone": "a"}},
			{Name: "n2", Labels: map[string]string{"zone": "a"}},
			{Name: "n3", Labels: map[string]string{"zone": "b"}},
		})
		Expect(err).NotTo(HaveOccurred())
		d := r.Domain("zone")
		Expect(d.Of("n1")).To(Equal(d.Of("n2")))
		Expect(d.Of("n1")).NotTo(Equal(d.Of("n3")))
	})

	It("gives nodes missing a non-hostname label their own distinct domains", func() {
		r, err := ipr.NewIPR(nil, []ipr.Node{
			{Name: "n1"},
			{Name: "n2"},
			{Name: "n3", Labels: map[string]string{"zone": "a"}},
		})
		Expect(err).NotTo(HaveOccurred())
		d := r.Domain("zone")
		Expect(d.Of("n1")).NotTo(Equal(d.Of("n2")))
		Expect(d.Of("n1")).NotTo(Equal(d.Of("n3")))
		Expect(d.Of("n2")).NotTo(Equal(d.Of("n3")))
	})
})

var _ = Describe("Eligible", func() {
	It("excludes nodes that fail NodeAffinity and untolerated taints", func() {
		w := ipr.Workload{
			Name:     "w",
			Replicas: 1,
			Clauses: []ipr.Clause{
				ipr.NewNodeAffinity(ipr.NewSelector(
					corev1.NodeSelectorRequirement{Key: "zone", Operator: corev1.NodeSelectorOpIn, Values: []string{"a"}},
				)),
			},
		}
		r, err := ipr.NewIPR([]ipr.Workload{w}, []ipr.Node{
			{Name: "n1", Labels: map[string]string{"zone": "a"}},
			{Name: "n2", Labels: map[string]string{"zone": "b"}},
			{Name: "n3", Labels: map[string]string{"zone": "a"}, Taints: []corev1.Taint{
				{Key: "dedicated", Effect: corev1.TaintEffectNoSchedule},
			}},
		})
		Expect(err).NotTo(HaveOccurred())
		got, _ := r.Workload("w")
		Expect(r.Eligible(got)).To(Equal([]string{"n1"}))
	})
})
