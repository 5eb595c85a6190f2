package selector

// Change describes which recomputation branch a Derive call took.
type Change uint8

const (
	// Unchanged means neither state nor own props changed.
	Unchanged Change = iota
	// RecomputeState means only state changed.
	RecomputeState
	// RecomputeProps means only own props changed.
	RecomputeProps
	// RecomputeBoth means state and own props changed.
	RecomputeBoth
	// Initial is the first call on a fresh DerivationState.
	Initial
)

// String returns a human-readable name for the change.
func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case RecomputeState:
		return "state"
	case RecomputeProps:
		return "props"
	case RecomputeBoth:
		return "both"
	case Initial:
		return "initial"
	default:
		return "unknown"
	}
}

// ClassifyChange maps the two change flags to the branch that handles them.
func ClassifyChange(stateChanged, propsChanged bool) Change {
	switch {
	case stateChanged && propsChanged:
		return RecomputeBoth
	case propsChanged:
		return RecomputeProps
	case stateChanged:
		return RecomputeState
	default:
		return Unchanged
	}
}
