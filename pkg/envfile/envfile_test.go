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

package envfile_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deployfix/deployfix/pkg/envfile"
)

var _ = Describe("Parse", func() {
	It("parses multiple nodes and multiple labels per node", func() {
		input := "n1 zone=a;rack=r1\nn2 zone=b\n"
		overlay, err := envfile.Parse(strings.NewReader(input))
		Expect(err).NotTo(HaveOccurred())
		Expect(overlay).To(Equal(map[string]map[string]string{
			"n1": {"zone": "a", "rack": "r1"},
			"n2": {"zone": "b"},
		}))
	})

	It("skips blank lines and comments", func() {
		input := "\n# a comment\nn1 zone=a\n"
		overlay, err := envfile.Parse(strings.NewReader(input))
		Expect(err).NotTo(HaveOccurred())
		Expect(overlay).To(Equal(map[string]map[string]string{"n1": {"zone": "a"}}))
	})

	It("merges repeated records for the same node", func() {
		input := "n1 zone=a\nn1 rack=r1\n"
		overlay, err := envfile.Parse(strings.NewReader(input))
		Expect(err).NotTo(HaveOccurred())
		Expect(overlay).To(Equal(map[string]map[string]string{"n1": {"zone": "a", "rack": "r1"}}))
	})

	It("rejects a line with no label pairs", func() {
		_, err := envfile.Parse(strings.NewReader("n1\n"))
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(envfile.ParseError{}))
	})

	It("rejects a malformed label pair missing '='", func() {
		_, err := envfile.Parse(strings.NewReader("n1 zone\n"))
		Expect(err).To(HaveOccurred())
	})

	It("reports the 1-indexed line number of the failure", func() {
		_, err := envfile.Parse(strings.NewReader("n1 zone=a\nn2\n"))
		Expect(err).To(HaveOccurred())
		pe, ok := err.(envfile.ParseError)
		Expect(ok).To(BeTrue())
		Expect(pe.Line).To(Equal(2))
	})
})
