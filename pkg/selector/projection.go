package selector

// Dispatch sends an action to the store.
type Dispatch func(action any) error

// StateProjection derives state props from store state and own props.
// DependsOnOwnProps tells the pipeline whether Fn reads its second argument;
// when false, own-props-only changes skip it.
type StateProjection[S, P, SP any] struct {
	Fn                func(state S, ownProps P) (SP, error)
	DependsOnOwnProps bool
}

// DispatchProjection derives dispatch props (usually bound action senders).
type DispatchProjection[P, DP any] struct {
	Fn                func(dispatch Dispatch, ownProps P) (DP, error)
	DependsOnOwnProps bool
}

// MergeFunc combines state props, dispatch props and own props.
type MergeFunc[SP, DP, P, M any] func(stateProps SP, dispatchProps DP, ownProps P) (M, error)

// MapState wraps a projection that ignores own props.
func MapState[S, P, SP any](fn func(state S) SP) StateProjection[S, P, SP] {
	return StateProjection[S, P, SP]{
		Fn: func(state S, _ P) (SP, error) { return fn(state), nil },
	}
}

// MapStateWithProps wraps a projection that reads own props.
func MapStateWithProps[S, P, SP any](fn func(state S, ownProps P) SP) StateProjection[S, P, SP] {
	return StateProjection[S, P, SP]{
		Fn:                func(state S, ownProps P) (SP, error) { return fn(state, ownProps), nil },
		DependsOnOwnProps: true,
	}
}

// MapDispatch wraps a dispatch projection that ignores own props.
func MapDispatch[P, DP any](fn func(dispatch Dispatch) DP) DispatchProjection[P, DP] {
	return DispatchProjection[P, DP]{
		Fn: func(dispatch Dispatch, _ P) (DP, error) { return fn(dispatch), nil },
	}
}

// MapDispatchWithProps wraps a dispatch projection that reads own props.
func MapDispatchWithProps[P, DP any](fn func(dispatch Dispatch, ownProps P) DP) DispatchProjection[P, DP] {
	return DispatchProjection[P, DP]{
		Fn:                func(dispatch Dispatch, ownProps P) (DP, error) { return fn(dispatch, ownProps), nil },
		DependsOnOwnProps: true,
	}
}

// NoState is the projection used by consumers that do not read the store.
func NoState[S, P any]() StateProjection[S, P, struct{}] {
	return StateProjection[S, P, struct{}]{
		Fn: func(S, P) (struct{}, error) { return struct{}{}, nil },
	}
}

// DispatchOnly hands the raw dispatcher through as dispatch props.
func DispatchOnly[P any]() DispatchProjection[P, Dispatch] {
	return DispatchProjection[P, Dispatch]{
		Fn: func(dispatch Dispatch, _ P) (Dispatch, error) { return dispatch, nil },
	}
}

// Equality holds the three predicates pure mode relies on.
type Equality[S, P, SP any] struct {
	States     func(a, b S) bool
	OwnProps   func(a, b P) bool
	StateProps func(a, b SP) bool
}

// DefaultEquality compares states by identity and props shallowly.
func DefaultEquality[S, P, SP any]() Equality[S, P, SP] {
	return Equality[S, P, SP]{
		States:     Equal[S](Identical),
		OwnProps:   Equal[P](ShallowEqual),
		StateProps: Equal[SP](ShallowEqual),
	}
}
