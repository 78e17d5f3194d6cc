package respolicy

import (
	"github.com/sentra-ai/sentra/internal/detection"
)

// Table maps a detection's identity to a response action. Handed to the
// pipeline as a read-only snapshot; unknown rule ids default to allow.
type Table interface {
	Resolve(d detection.Detection) detection.Action
}

// StaticTable resolves by rule id with an optional per-category fallback.
type StaticTable struct {
	Rules      map[string]detection.Action
	Categories map[string]detection.Action
}

func (t StaticTable) Resolve(d detection.Detection) detection.Action {
	if a, ok := t.Rules[d.RuleID]; ok {
		return a
	}
	if a, ok := t.Categories[d.Category]; ok {
		return a
	}
	return detection.ActionAllow
}

// Resolver computes the final action for a scan.
type Resolver struct {
	table Table
}

func NewResolver(table Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve looks up each detection's action and keeps the highest by the
// fixed priority block > flag > log > allow. Zero detections resolve to
// allow. Pure: the outcome does not depend on evaluation order, since max
// over a fixed priority is commutative; TriggeredBy records the first
// detection that reached the winning action.
func (r *Resolver) Resolve(ds []detection.Detection) detection.PolicyDecision {
	decision := detection.PolicyDecision{Action: detection.ActionAllow}
	if r == nil || r.table == nil {
		return decision
	}

	for _, d := range ds {
		a := r.table.Resolve(d)
		if a > decision.Action || (decision.TriggeredBy == "" && a == decision.Action && a > detection.ActionAllow) {
			decision.Action = a
			decision.TriggeredBy = d.RuleID
		}
	}

	decision.ShouldBlock = decision.Action == detection.ActionBlock
	return decision
}
