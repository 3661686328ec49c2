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

// Package report renders a solver Outcome and the affinity cycle list into
// the stable document shape described by §6: field names and ordering never
// change between runs on the same input, so reports are diffable. Documents
// are marshaled with sigs.k8s.io/yaml, matching the teacher's own use of
// that module for CRD-adjacent documents.
package report

import (
	"encoding/json"
	"sort"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/deployfix/deployfix/pkg/affinity"
	"github.com/deployfix/deployfix/pkg/ipr"
	"github.com/deployfix/deployfix/pkg/solver"
)

// RelaxationEntry is one dropped soft handle, as surfaced to the user.
type RelaxationEntry struct {
	Workload    string `json:"workload"`
	ClauseIndex int    `json:"clauseIndex"`
	TermIndex   *int   `json:"termIndex,omitempty"`
	Kind        string `json:"kind"`
}

// CycleEntry is one detected affinity cycle.
type CycleEntry struct {
	Members []string `json:"members"`
	Kind    string   `json:"kind"`
}

// Report is the top-level document §6 describes: "sat" is always present,
// "assignment" is present whenever a model exists (directly satisfiable or
// after a verified repair), "relaxations"/"repairedIpr" only appear for a
// repaired outcome, and "cycles" lists every detected affinity cycle
// regardless of --cycle-check, which only gates the fatal structural exit.
type Report struct {
	SAT             bool                   `json:"sat"`
	Assignment      map[string]string      `json:"assignment,omitempty"`
	Relaxations     []RelaxationEntry      `json:"relaxations,omitempty"`
	RepairedIPR     *ipr.Document          `json:"repairedIpr,omitempty"`
	Cycles          []CycleEntry           `json:"cycles,omitempty"`
	DomainPartition map[string][]string    `json:"domainPartition,omitempty"`
}

// FromOutcome builds a Report from a solved Outcome. cycles is the
// informational cycle list from the affinity graph and is included
// regardless of --cycle-check, which only gates the fatal CycleDetected
// exit; cycles may be nil when the graph has none.
func FromOutcome(outcome *solver.Outcome, cycles []affinity.Cycle) *Report {
	r := &Report{SAT: outcome.SAT, Assignment: outcome.Assignment}
	if len(outcome.Relaxation) > 0 {
		r.Relaxations = relaxationEntries(outcome.Relaxation)
	}
	if outcome.RepairedIPR != nil {
		r.RepairedIPR = ipr.ToDocument(outcome.RepairedIPR)
	}
	r.Cycles = cycleEntries(cycles)
	return r
}

func relaxationEntries(relaxation solver.Relaxation) []RelaxationEntry {
	out := make([]RelaxationEntry, 0, len(relaxation))
	for _, h := range relaxation {
		entry := RelaxationEntry{Workload: h.Workload, ClauseIndex: h.ClauseIndex, Kind: h.Kind.String()}
		if h.TermIndex >= 0 {
			idx := h.TermIndex
			entry.TermIndex = &idx
		}
		out = append(out, entry)
	}
	return out
}

func cycleEntries(cycles []affinity.Cycle) []CycleEntry {
	if len(cycles) == 0 {
		return nil
	}
	out := make([]CycleEntry, 0, len(cycles))
	for _, c := range cycles {
		kind := "AffinityOnly"
		if c.Kind == affinity.AntiAffinity {
			kind = "AntiAffinity"
		}
		out = append(out, CycleEntry{Members: c.Members, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Members[0] < out[j].Members[0] })
	return out
}

// Marshal renders the report in the requested format ("yaml" or "json",
// matching the --format flag in §6).
func (r *Report) Marshal(format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(r, "", "  ")
	case "yaml", "":
		return sigsyaml.Marshal(r)
	default:
		return nil, UnknownFormat{Format: format}
	}
}

// UnknownFormat is returned by Marshal for anything but "yaml" or "json".
type UnknownFormat struct {
	Format string
}

func (e UnknownFormat) Error() string {
	return "unknown report format: " + e.Format
}
