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

// Package labelindex evaluates label selectors against labeled entities
// (workloads or nodes). Two backends are provided — a direct scan for small
// fleets and an inverted (key,value) -> entity-id index for large ones — and
// they are required to be observationally equivalent; Index.Match picks
// between them by size, and both are exported so property tests can compare
// them directly.
package labelindex

import (
	"context"
	"runtime"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"golang.org/x/sync/errgroup"

	"github.com/deployfix/deployfix/pkg/ipr"
)

// Entity is anything a selector can be evaluated against: ipr.Workload and
// ipr.Node both satisfy it without this package importing concrete types
// back into ipr.
type Entity interface {
	ID() string
	LabelSet() map[string]string
}

// invertedThreshold is the entity count at or above which Match prefers the
// inverted-index backend. Below it the direct scan's lower constant factor
// wins; the crossover is not load-bearing for correctness, only for the
// backend chosen, since both are equivalent by contract.
const invertedThreshold = 64

// Index evaluates selectors against a fixed collection of entities.
type Index struct {
	entities []Entity
	byKey    map[string]map[string][]int // key -> value -> sorted entity indices
	keyPresent map[string][]int          // key -> sorted entity indices that have the key at all
}

// New builds an Index over entities. The slice order is preserved and used
// as the iteration/result order for determinism.
func New(entities []Entity) *Index {
	ix := &Index{
		entities:   entities,
		byKey:      map[string]map[string][]int{},
		keyPresent: map[string][]int{},
	}
	for i, e := range entities {
		for k, v := range e.LabelSet() {
			if ix.byKey[k] == nil {
				ix.byKey[k] = map[string][]int{}
			}
			ix.byKey[k][v] = append(ix.byKey[k][v], i)
			ix.keyPresent[k] = append(ix.keyPresent[k], i)
		}
	}
	return ix
}

// NewParallel builds an Index the same way New does, but shards entities
// across goroutines with golang.org/x/sync/errgroup (§5) and merges the
// resulting per-shard maps. Sharding never changes which entity index a
// label maps to, so the merged index is byte-for-byte the one New(entities)
// would have built; this only matters for wall-clock on large fleets.
func NewParallel(ctx context.Context, entities []Entity) (*Index, error) {
	shards := runtime.GOMAXPROCS(0)
	if shards < 1 {
		shards = 1
	}
	if shards > len(entities) {
		shards = 1
	}
	if shards <= 1 {
		return New(entities), nil
	}

	chunkSize := (len(entities) + shards - 1) / shards
	partials := make([]*Index, shards)
	g, _ := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		s := s
		start := s * chunkSize
		end := start + chunkSize
		if end > len(entities) {
			end = len(entities)
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			partials[s] = New(entities[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix := &Index{entities: entities, byKey: map[string]map[string][]int{}, keyPresent: map[string][]int{}}
	for s := 0; s < shards; s++ {
		p := partials[s]
		if p == nil {
			continue
		}
		offset := s * chunkSize
		for k, byValue := range p.byKey {
			if ix.byKey[k] == nil {
				ix.byKey[k] = map[string][]int{}
			}
			for v, idxs := range byValue {
				for _, i := range idxs {
					ix.byKey[k][v] = append(ix.byKey[k][v], i+offset)
				}
			}
		}
		for k, idxs := range p.keyPresent {
			for _, i := range idxs {
				ix.keyPresent[k] = append(ix.keyPresent[k], i+offset)
			}
		}
	}
	return ix, nil
}

// Match evaluates selector s against the indexed entities, using the
// inverted-index backend for large fleets and the direct scan otherwise.
func (ix *Index) Match(s ipr.Selector) []Entity {
	if len(ix.entities) >= invertedThreshold {
		return ix.MatchIndexed(s)
	}
	return ix.MatchDirect(s)
}

// MatchDirect evaluates s by scanning every entity, the reference semantics
// every other backend must agree with.
func (ix *Index) MatchDirect(s ipr.Selector) []Entity {
	var out []Entity
	for _, e := range ix.entities {
		if s.Matches(e.LabelSet()) {
			out = append(out, e)
		}
	}
	return out
}

// MatchIndexed evaluates s by intersecting per-expression candidate sets
// derived from the inverted index.
func (ix *Index) MatchIndexed(s ipr.Selector) []Entity {
	if len(s.MatchExpressions) == 0 {
		out := make([]Entity, len(ix.entities))
		copy(out, ix.entities)
		return out
	}
	var result sets.Int
	for i, expr := range s.MatchExpressions {
		candidates := ix.candidatesFor(expr)
		if i == 0 {
			result = candidates
			continue
		}
		result = result.Intersection(candidates)
	}
	idxs := result.List()
	out := make([]Entity, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, ix.entities[i])
	}
	return out
}

func (ix *Index) candidatesFor(expr corev1.NodeSelectorRequirement) sets.Int {
	switch expr.Operator {
	case corev1.NodeSelectorOpIn:
		s := sets.NewInt()
		for _, v := range expr.Values {
			s.Insert(ix.byKey[expr.Key][v]...)
		}
		return s
	case corev1.NodeSelectorOpNotIn:
		in := sets.NewInt()
		for _, v := range expr.Values {
			in.Insert(ix.byKey[expr.Key][v]...)
		}
		return ix.allIndices().Difference(in)
	case corev1.NodeSelectorOpExists:
		return sets.NewInt(ix.keyPresent[expr.Key]...)
	case corev1.NodeSelectorOpDoesNotExist:
		return ix.allIndices().Difference(sets.NewInt(ix.keyPresent[expr.Key]...))
	default:
		return sets.NewInt()
	}
}

func (ix *Index) allIndices() sets.Int {
	all := sets.NewInt()
	for i := range ix.entities {
		all.Insert(i)
	}
	return all
}
