package selector

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every error New returns.
var ErrInvalidConfig = errors.New("selector: invalid configuration")

// Config describes a pipeline.
type Config[S, P, SP, DP, M any] struct {
	State      StateProjection[S, P, SP]
	Dispatch   DispatchProjection[P, DP]
	Merge      MergeFunc[SP, DP, P, M]
	Dispatcher Dispatch

	// Pure enables memoization. When false every Derive recomputes
	// everything and the result must be treated as changed.
	Pure bool

	// Equality is required when Pure is set.
	Equality Equality[S, P, SP]
}

// DerivationState is the memoization record of one consumer.
type DerivationState[S, P, SP, DP, M any] struct {
	State         S
	OwnProps      P
	StateProps    SP
	DispatchProps DP
	MergedProps   M

	HasRunAtLeastOnce bool
}

// Pipeline computes final props for one consumer.
type Pipeline[S, P, SP, DP, M any] struct {
	cfg    Config[S, P, SP, DP, M]
	memo   DerivationState[S, P, SP, DP, M]
	last   Change
	merged bool
}

// New validates cfg and returns a pipeline with an empty DerivationState.
func New[S, P, SP, DP, M any](cfg Config[S, P, SP, DP, M]) (*Pipeline[S, P, SP, DP, M], error) {
	switch {
	case cfg.State.Fn == nil:
		return nil, fmt.Errorf("%w: state projection is nil", ErrInvalidConfig)
	case cfg.Dispatch.Fn == nil:
		return nil, fmt.Errorf("%w: dispatch projection is nil", ErrInvalidConfig)
	case cfg.Merge == nil:
		return nil, fmt.Errorf("%w: merge function is nil", ErrInvalidConfig)
	}
	if cfg.Pure {
		eq := cfg.Equality
		if eq.States == nil || eq.OwnProps == nil || eq.StateProps == nil {
			return nil, fmt.Errorf("%w: pure mode needs States, OwnProps and StateProps equality", ErrInvalidConfig)
		}
	}
	return &Pipeline[S, P, SP, DP, M]{cfg: cfg}, nil
}

// Pure reports whether the pipeline memoizes.
func (p *Pipeline[S, P, SP, DP, M]) Pure() bool {
	return p.cfg.Pure
}

// LastChange returns the branch taken by the most recent successful Derive.
func (p *Pipeline[S, P, SP, DP, M]) LastChange() Change {
	return p.last
}

// Merged reports whether the most recent Derive produced new merged props.
// It is false when the call returned the cached value or failed.
func (p *Pipeline[S, P, SP, DP, M]) Merged() bool {
	return p.merged
}

// Memo exposes the memoization record. Callers must not modify it.
func (p *Pipeline[S, P, SP, DP, M]) Memo() *DerivationState[S, P, SP, DP, M] {
	return &p.memo
}

// Reset discards the memoization record; the next Derive is a first call.
func (p *Pipeline[S, P, SP, DP, M]) Reset() {
	p.memo = DerivationState[S, P, SP, DP, M]{}
	p.last = Unchanged
	p.merged = false
}

// Derive returns the final props for state and ownProps. The projections run
// against a copy of the memo that replaces it only when every step succeeds,
// so a failed call is retried from the previous memo.
func (p *Pipeline[S, P, SP, DP, M]) Derive(state S, ownProps P) (M, error) {
	p.merged = false
	if !p.cfg.Pure {
		return p.deriveImpure(state, ownProps)
	}
	if !p.memo.HasRunAtLeastOnce {
		return p.firstCall(state, ownProps)
	}
	return p.subsequentCall(state, ownProps)
}

func (p *Pipeline[S, P, SP, DP, M]) deriveImpure(state S, ownProps P) (M, error) {
	var zero M
	stateProps, err := p.cfg.State.Fn(state, ownProps)
	if err != nil {
		return zero, err
	}
	dispatchProps, err := p.cfg.Dispatch.Fn(p.cfg.Dispatcher, ownProps)
	if err != nil {
		return zero, err
	}
	merged, err := p.cfg.Merge(stateProps, dispatchProps, ownProps)
	if err != nil {
		return zero, err
	}
	p.last = RecomputeBoth
	p.merged = true
	return merged, nil
}

func (p *Pipeline[S, P, SP, DP, M]) firstCall(state S, ownProps P) (M, error) {
	w := DerivationState[S, P, SP, DP, M]{State: state, OwnProps: ownProps}
	if err := p.runState(&w); err != nil {
		return p.memo.MergedProps, err
	}
	if err := p.runDispatch(&w); err != nil {
		return p.memo.MergedProps, err
	}
	if err := p.merge(&w); err != nil {
		return p.memo.MergedProps, err
	}
	w.HasRunAtLeastOnce = true
	p.commit(w, Initial)
	return p.memo.MergedProps, nil
}

func (p *Pipeline[S, P, SP, DP, M]) subsequentCall(state S, ownProps P) (M, error) {
	eq := p.cfg.Equality
	w := p.memo

	propsChanged := !eq.OwnProps(ownProps, w.OwnProps)
	stateChanged := !eq.States(state, w.State)
	w.State = state
	w.OwnProps = ownProps

	change := ClassifyChange(stateChanged, propsChanged)
	var err error
	switch change {
	case RecomputeBoth:
		err = p.newPropsAndNewState(&w)
	case RecomputeProps:
		err = p.newProps(&w)
	case RecomputeState:
		err = p.newState(&w)
	}
	if err != nil {
		p.merged = false
		return p.memo.MergedProps, err
	}
	p.commit(w, change)
	return p.memo.MergedProps, nil
}

func (p *Pipeline[S, P, SP, DP, M]) commit(w DerivationState[S, P, SP, DP, M], change Change) {
	p.memo = w
	p.last = change
}

func (p *Pipeline[S, P, SP, DP, M]) newPropsAndNewState(w *DerivationState[S, P, SP, DP, M]) error {
	if err := p.runState(w); err != nil {
		return err
	}
	if p.cfg.Dispatch.DependsOnOwnProps {
		if err := p.runDispatch(w); err != nil {
			return err
		}
	}
	return p.merge(w)
}

func (p *Pipeline[S, P, SP, DP, M]) newProps(w *DerivationState[S, P, SP, DP, M]) error {
	if p.cfg.State.DependsOnOwnProps {
		if err := p.runState(w); err != nil {
			return err
		}
	}
	if p.cfg.Dispatch.DependsOnOwnProps {
		if err := p.runDispatch(w); err != nil {
			return err
		}
	}
	return p.merge(w)
}

func (p *Pipeline[S, P, SP, DP, M]) newState(w *DerivationState[S, P, SP, DP, M]) error {
	next, err := p.cfg.State.Fn(w.State, w.OwnProps)
	if err != nil {
		return err
	}
	changed := !p.cfg.Equality.StateProps(next, w.StateProps)
	w.StateProps = next
	if changed {
		return p.merge(w)
	}
	return nil
}

func (p *Pipeline[S, P, SP, DP, M]) runState(w *DerivationState[S, P, SP, DP, M]) error {
	next, err := p.cfg.State.Fn(w.State, w.OwnProps)
	if err != nil {
		return err
	}
	w.StateProps = next
	return nil
}

func (p *Pipeline[S, P, SP, DP, M]) runDispatch(w *DerivationState[S, P, SP, DP, M]) error {
	next, err := p.cfg.Dispatch.Fn(p.cfg.Dispatcher, w.OwnProps)
	if err != nil {
		return err
	}
	w.DispatchProps = next
	return nil
}

func (p *Pipeline[S, P, SP, DP, M]) merge(w *DerivationState[S, P, SP, DP, M]) error {
	merged, err := p.cfg.Merge(w.StateProps, w.DispatchProps, w.OwnProps)
	if err != nil {
		return err
	}
	w.MergedProps = merged
	p.merged = true
	return nil
}
