package shared

// IndicatorKind identifies a precomputed indicator a rule reads.
type IndicatorKind uint32

const (
	IndicatorPivot IndicatorKind = 1 << iota
	IndicatorEMA
	IndicatorRSI
	IndicatorOBV
	IndicatorChandelierExit
	IndicatorPattern
)

// IndicatorKindSet is a bitset of indicator kinds. Rules declare the kinds
// they read so callers can fetch exactly the indicators an evaluation needs
// without probing rule internals at runtime.
type IndicatorKindSet uint32

// NewIndicatorKindSet creates an indicator kind set from the provided kinds.
func NewIndicatorKindSet(kinds ...IndicatorKind) IndicatorKindSet {
	var set IndicatorKindSet
	for _, kind := range kinds {
		set |= IndicatorKindSet(kind)
	}

	return set
}

// Has reports whether the set contains the provided kind.
func (s IndicatorKindSet) Has(kind IndicatorKind) bool {
	return s&IndicatorKindSet(kind) != 0
}

// Merge returns the union of the set and the provided set.
func (s IndicatorKindSet) Merge(other IndicatorKindSet) IndicatorKindSet {
	return s | other
}
