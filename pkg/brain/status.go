package brain

// ConsolidationStatus tracks a memory through its lifecycle. The lifecycle is
// strictly monotonic: fresh -> consolidating -> consolidated -> archived.
type ConsolidationStatus string

const (
	StatusFresh         ConsolidationStatus = "fresh"
	StatusConsolidating ConsolidationStatus = "consolidating"
	StatusConsolidated  ConsolidationStatus = "consolidated"
	StatusArchived      ConsolidationStatus = "archived"
)

// statusRank orders the lifecycle states. Higher ranks are later states.
var statusRank = map[ConsolidationStatus]int{
	StatusFresh:         0,
	StatusConsolidating: 1,
	StatusConsolidated:  2,
	StatusArchived:      3,
}

// Valid reports whether s is one of the known lifecycle states.
func (s ConsolidationStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether the lifecycle permits moving from s to next.
// Only single forward steps are allowed: no skipping, no regression.
func (s ConsolidationStatus) CanAdvanceTo(next ConsolidationStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}

	to, ok := statusRank[next]
	if !ok {
		return false
	}

	return to == from+1
}
