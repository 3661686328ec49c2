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

package cli_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deployfix/deployfix/internal/cli"
	"github.com/deployfix/deployfix/pkg/ipr"
	k8sloader "github.com/deployfix/deployfix/pkg/loader/k8s"
)

const selfAntiAffinityManifest = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 3
  template:
    metadata:
      labels:
        app: web
    spec:
      affinity:
        podAntiAffinity:
          requiredDuringSchedulingIgnoredDuringExecution:
          - labelSelector:
              matchLabels:
                app: web
            topologyKey: kubernetes.io/hostname
---
apiVersion: v1
kind: Node
metadata:
  name: n1
---
apiVersion: v1
kind: Node
metadata:
  name: n2
`

const unknownSelectorManifest = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 1
  template:
    metadata:
      labels:
        app: web
    spec:
      affinity:
        podAffinity:
          requiredDuringSchedulingIgnoredDuringExecution:
          - labelSelector:
              matchLabels:
                app: ghost
            topologyKey: kubernetes.io/hostname
---
apiVersion: v1
kind: Node
metadata:
  name: n1
`

func writeFile(name, content string) string {
	path := filepath.Join(GinkgoT().TempDir(), name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("k8s import", func() {
	It("lowers a manifest into an IPR dump", func() {
		src := writeFile("src.yaml", selfAntiAffinityManifest)
		out := filepath.Join(GinkgoT().TempDir(), "out.yaml")

		_, err := runCLI("k8s", "import", src, out)
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(out)
		Expect(err).NotTo(HaveOccurred())
		doc, err := k8sloader.ReadDumpStrict(data)
		Expect(err).NotTo(HaveOccurred())
		r, err := ipr.FromDocument(doc)
		Expect(err).NotTo(HaveOccurred())
		w, ok := r.Workload("web")
		Expect(ok).To(BeTrue())
		Expect(w.Replicas).To(Equal(3))
	})
})

var _ = Describe("k8s inject", func() {
	It("merges a repaired IPR dump back into the source manifest", func() {
		src := writeFile("src.yaml", selfAntiAffinityManifest)

		repaired, err := ipr.NewIPR([]ipr.Workload{{Name: "web", Replicas: 3}}, nil)
		Expect(err).NotTo(HaveOccurred())
		dumpPath := writeDump(repaired, "yaml")

		out := filepath.Join(GinkgoT().TempDir(), "out.yaml")
		_, err = runCLI("k8s", "inject", src, dumpPath, out)
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(out)
		Expect(err).NotTo(HaveOccurred())
		r, _, err := k8sloader.Load(data, ipr.HostnameTopologyKey)
		Expect(err).NotTo(HaveOccurred())
		w, ok := r.Workload("web")
		Expect(ok).To(BeTrue())
		Expect(w.Clauses).To(BeEmpty())
	})
})

var _ = Describe("k8s go", func() {
	It("S2: repairs a self anti-affinity conflict end to end with --recommend", func() {
		src := writeFile("src.yaml", selfAntiAffinityManifest)
		injOut := filepath.Join(GinkgoT().TempDir(), "injected.yaml")
		repOut := filepath.Join(GinkgoT().TempDir(), "report.yaml")

		_, err := runCLI("k8s", "go", "--recommend", src, injOut, repOut)
		Expect(err).To(HaveOccurred())
		exitErr, ok := err.(*cli.ExitError)
		Expect(ok).To(BeTrue())
		Expect(exitErr.Code).To(Equal(cli.ExitUnsatisfiableRepair))

		reportData, err := os.ReadFile(repOut)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reportData)).To(ContainSubstring("sat: false"))

		injData, err := os.ReadFile(injOut)
		Expect(err).NotTo(HaveOccurred())
		r, _, err := k8sloader.Load(injData, ipr.HostnameTopologyKey)
		Expect(err).NotTo(HaveOccurred())
		w, ok := r.Workload("web")
		Expect(ok).To(BeTrue())
		Expect(w.Clauses).To(BeEmpty())
	})

	It("S6: --reject-unknown fails structurally on a selector with no matching workload", func() {
		src := writeFile("src.yaml", unknownSelectorManifest)
		injOut := filepath.Join(GinkgoT().TempDir(), "injected.yaml")
		repOut := filepath.Join(GinkgoT().TempDir(), "report.yaml")

		_, err := runCLI("k8s", "go", "--reject-unknown", src, injOut, repOut)
		Expect(err).To(HaveOccurred())
		exitErr, ok := err.(*cli.ExitError)
		Expect(ok).To(BeTrue())
		Expect(exitErr.Code).To(Equal(cli.ExitStructuralError))
	})

	It("applies an --env-file overlay before --reject-unknown validation", func() {
		const manifest = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 1
  template:
    metadata:
      labels:
        app: web
    spec:
      affinity:
        nodeAffinity:
          requiredDuringSchedulingIgnoredDuringExecution:
            nodeSelectorTerms:
            - matchExpressions:
              - key: zone
                operator: In
                values: ["b"]
---
apiVersion: v1
kind: Node
metadata:
  name: n1
  labels:
    zone: a
`
		src := writeFile("src.yaml", manifest)
		env := writeFile("overlay.env", "n1 zone=b\n")
		injOut := filepath.Join(GinkgoT().TempDir(), "injected.yaml")
		repOut := filepath.Join(GinkgoT().TempDir(), "report.yaml")

		_, err := runCLI("k8s", "go", "--reject-unknown", "--env-file", env, src, injOut, repOut)
		Expect(err).NotTo(HaveOccurred())

		reportData, err := os.ReadFile(repOut)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reportData)).To(ContainSubstring("sat: true"))
	})

	It("a satisfiable instance produces ExitSAT and no report error", func() {
		const manifest = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 1
  template:
    metadata:
      labels:
        app: web
---
apiVersion: v1
kind: Node
metadata:
  name: n1
`
		src := writeFile("src.yaml", manifest)
		injOut := filepath.Join(GinkgoT().TempDir(), "injected.yaml")
		repOut := filepath.Join(GinkgoT().TempDir(), "report.yaml")

		_, err := runCLI("k8s", "go", src, injOut, repOut)
		Expect(err).NotTo(HaveOccurred())

		reportData, err := os.ReadFile(repOut)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reportData)).To(ContainSubstring("sat: true"))
	})
})
