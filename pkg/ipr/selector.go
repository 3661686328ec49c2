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
	"k8s.io/apimachinery/pkg/util/validation"
)

// Selector is a conjunction of match expressions, evaluated the same way a
// Kubernetes node-selector term or label selector is. The operator set is
// exactly corev1.NodeSelectorOperator's member set, so node-affinity terms
// and pod-(anti-)affinity selectors share one representation.
type Selector struct {
	MatchExpressions []corev1.NodeSelectorRequirement
}

// NewSelector builds a Selector from a copy of exprs. Same-key expressions
// are kept as separate entries, and Matches conjoins them.
func NewSelector(exprs ...corev1.NodeSelectorRequirement) Selector {
	return Selector{MatchExpressions: append([]corev1.NodeSelectorRequirement{}, exprs...)}
}

// Validate checks that every referenced key is well-formed. A zero-expression
// selector is valid and matches everything.
func (s Selector) Validate() error {
	for _, expr := range s.MatchExpressions {
		if expr.Key == "" {
			return InvalidIPR{Detail: "selector references an empty label key"}
		}
		if errs := validation.IsQualifiedName(expr.Key); len(errs) > 0 {
			return InvalidIPR{Detail: "selector key " + expr.Key + " is not well-formed: " + errs[0]}
		}
	}
	return nil
}

// Matches reports whether the given label set satisfies every expression in
// the conjunction.
func (s Selector) Matches(labels map[string]string) bool {
	for _, expr := range s.MatchExpressions {
		if !matchExpression(expr, labels) {
			return false
		}
	}
	return true
}

func matchExpression(expr corev1.NodeSelectorRequirement, labels map[string]string) bool {
	value, present := labels[expr.Key]
	switch expr.Operator {
	case corev1.NodeSelectorOpIn:
		return present && sets.NewString(expr.Values...).Has(value)
	case corev1.NodeSelectorOpNotIn:
		return !present || !sets.NewString(expr.Values...).Has(value)
	case corev1.NodeSelectorOpExists:
		return present
	case corev1.NodeSelectorOpDoesNotExist:
		return !present
	default:
		return false
	}
}

// Keys returns the set of label keys referenced by the selector.
func (s Selector) Keys() sets.String {
	keys := sets.NewString()
	for _, expr := range s.MatchExpressions {
		keys.Insert(expr.Key)
	}
	return keys
}

// NodeSelectorTerms is a disjunction of Selector conjunctions, as used by
// NodeAffinity clauses.
type NodeSelectorTerms []Selector

// Matches reports whether any term in the disjunction is satisfied.
func (t NodeSelectorTerms) Matches(labels map[string]string) bool {
	if len(t) == 0 {
		return true
	}
	for _, term := range t {
		if term.Matches(labels) {
			return true
		}
	}
	return false
}
