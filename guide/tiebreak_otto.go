package guide

import (
	"fmt"
	"sort"

	"github.com/robertkrimen/otto"
)

// NewOttoTieBreak compiles a small JavaScript expression into a TieBreakFunc,
// for operators who want a tie-break rule other than DefaultTieBreak without
// a recompile. The script is evaluated once per tie with two bindings:
// `requester` (the joining peer's addr string) and `candidates` (an array of
// {addr, leechers} objects, already filtered to the tied maximum). It must
// evaluate to the chosen candidate's addr string.
//
// Example script: "candidates[candidates.length - 1].addr" (pick the last
// candidate; the order of candidates is not defined).
func NewOttoTieBreak(script string) (TieBreakFunc, error) {
	vm := otto.New()
	if _, err := vm.Compile("tiebreak.js", script); err != nil {
		return nil, fmt.Errorf("guide: invalid tie-break script: %w", err)
	}

	return func(requesterAddr string, candidates []SourceInfo) SourceInfo {
		byAddr := make(map[string]SourceInfo, len(candidates))
		jsCandidates := make([]map[string]interface{}, len(candidates))
		for i, c := range candidates {
			byAddr[c.Addr] = c
			jsCandidates[i] = map[string]interface{}{"addr": c.Addr, "leechers": c.Leechers}
		}

		vm.Set("requester", requesterAddr)
		vm.Set("candidates", jsCandidates)

		value, err := vm.Run(script)
		if err != nil {
			return fallbackTieBreak(candidates)
		}
		addr, err := value.ToString()
		if err != nil {
			return fallbackTieBreak(candidates)
		}
		chosen, ok := byAddr[addr]
		if !ok {
			return fallbackTieBreak(candidates)
		}
		return chosen
	}, nil
}

// fallbackTieBreak is used when a tie-break script misbehaves (returns an
// unknown addr, throws, or returns a non-string); a broadcast must still
// make forward progress.
func fallbackTieBreak(candidates []SourceInfo) SourceInfo {
	sorted := make([]SourceInfo, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })
	return sorted[0]
}
