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

package labelindex_test

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deployfix/deployfix/pkg/ipr"
	"github.com/deployfix/deployfix/pkg/labelindex"
)

type fakeEntity struct {
	name   string
	labels map[string]string
}

func (f fakeEntity) ID() string                  { return f.name }
func (f fakeEntity) LabelSet() map[string]string { return f.labels }

func entityNames(es []labelindex.Entity) []string {
	names := make([]string, len(es))
	for i, e := range es {
		names[i] = e.ID()
	}
	sort.Strings(names)
	return names
}

func manyEntities(n int) []labelindex.Entity {
	out := make([]labelindex.Entity, n)
	for i := 0; i < n; i++ {
		zone := "a"
		if i%2 == 0 {
			zone = "b"
		}
		out[i] = fakeEntity{name: fmt.Sprintf("n%d", i), labels: map[string]string{"zone": zone}}
	}
	return out
}

var _ = Describe("Index", func() {
	entities := []labelindex.Entity{
		fakeEntity{name: "n1", labels: map[string]string{"zone": "a", "tier": "web"}},
		fakeEntity{name: "n2", labels: map[string]string{"zone": "b"}},
		fakeEntity{name: "n3", labels: map[string]string{"zone": "a"}},
	}

	zoneA := ipr.NewSelector(corev1.NodeSelectorRequirement{Key: "zone", Operator: corev1.NodeSelectorOpIn, Values: []string{"a"}})
	hasTier := ipr.NewSelector(corev1.NodeSelectorRequirement{Key: "tier", Operator: corev1.NodeSelectorOpExists})
	noTier := ipr.NewSelector(corev1.NodeSelectorRequirement{Key: "tier", Operator: corev1.NodeSelectorOpDoesNotExist})

	It("MatchDirect and MatchIndexed agree on an In selector", func() {
		ix := labelindex.New(entities)
		Expect(entityNames(ix.MatchDirect(zoneA))).To(Equal(entityNames(ix.MatchIndexed(zoneA))))
		Expect(entityNames(ix.MatchDirect(zoneA))).To(Equal([]string{"n1", "n3"}))
	})

	It("MatchDirect and MatchIndexed agree on Exists", func() {
		ix := labelindex.New(entities)
		Expect(entityNames(ix.MatchDirect(hasTier))).To(Equal(entityNames(ix.MatchIndexed(hasTier))))
		Expect(entityNames(ix.MatchDirect(hasTier))).To(Equal([]string{"n1"}))
	})

	It("MatchDirect and MatchIndexed agree on DoesNotExist", func() {
		ix := labelindex.New(entities)
		Expect(entityNames(ix.MatchDirect(noTier))).To(Equal(entityNames(ix.MatchIndexed(noTier))))
		Expect(entityNames(ix.MatchDirect(noTier))).To(Equal([]string{"n2", "n3"}))
	})

	It("an empty selector matches every entity under both backends", func() {
		ix := labelindex.New(entities)
		empty := ipr.NewSelector()
		Expect(entityNames(ix.MatchDirect(empty))).To(Equal([]string{"n1", "n2", "n3"}))
		Expect(entityNames(ix.MatchIndexed(empty))).To(Equal([]string{"n1", "n2", "n3"}))
	})

	It("Match picks the indexed backend once the fleet crosses the threshold, observationally equivalent to direct scan", func() {
		big := manyEntities(200)
		ix := labelindex.New(big)
		zoneB := ipr.NewSelector(corev1.NodeSelectorRequirement{Key: "zone", Operator: corev1.NodeSelectorOpIn, Values: []string{"b"}})
		Expect(entityNames(ix.Match(zoneB))).To(Equal(entityNames(ix.MatchDirect(zoneB))))
	})

	It("NewParallel builds an index byte-for-byte equivalent to New", func() {
		big := manyEntities(137)
		seq := labelindex.New(big)
		par, err := labelindex.NewParallel(context.Background(), big)
		Expect(err).NotTo(HaveOccurred())

		zoneA200 := ipr.NewSelector(corev1.NodeSelectorRequirement{Key: "zone", Operator: corev1.NodeSelectorOpIn, Values: []string{"a"}})
		Expect(entityNames(par.MatchIndexed(zoneA200))).To(Equal(entityNames(seq.MatchIndexed(zoneA200))))
	})
})
