package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	cerrors "github.com/vango-dev/connect/internal/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/connect/pkg/store"

var (
	// ErrReducerDispatch is returned when a reducer dispatches.
	ErrReducerDispatch = errors.New("store: reducers may not dispatch actions")

	// ErrInvalidAction is returned for actions that are neither Action nor string.
	ErrInvalidAction = errors.New("store: invalid action")
)

// Action is what reducers receive.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Reducer computes the next state for an action.
// Reducers run under the store lock and must not call GetState or Dispatch.
type Reducer[S any] func(state S, action Action) (S, error)

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
	ctx    context.Context
}

// WithLogger sets the logger used for dispatch debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracer sets the tracer used for dispatch spans.
// Default: the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithContext sets the parent context of dispatch spans.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// listener wraps a callback so it can be removed by identity.
type listener struct {
	fn func()
}

// Store is a reducer-driven state container.
//
// GetState may be called from any goroutine. Dispatch runs the notification
// pass on the calling goroutine; callers that dispatch from several
// goroutines must serialize those calls.
type Store[S any] struct {
	reducer Reducer[S]

	state   S
	stateMu sync.RWMutex

	// current is iterated by notification passes; next receives mutations.
	current []*listener
	next    []*listener
	shared  bool
	subMu   sync.Mutex

	dispatching bool
	batchDepth  int
	pending     bool

	logger *slog.Logger
	tracer trace.Tracer
	ctx    context.Context
}

// New creates a Store with the given reducer and initial state.
func New[S any](reducer Reducer[S], initial S, opts ...Option) *Store[S] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}

	return &Store[S]{
		reducer: reducer,
		state:   initial,
		logger:  o.logger,
		tracer:  o.tracer,
		ctx:     o.ctx,
	}
}

// GetState returns the current state.
func (s *Store[S]) GetState() S {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Dispatch runs the reducer for action and notifies subscribers.
// action may be an Action or a string, which is treated as Action{Type: action}.
func (s *Store[S]) Dispatch(action any) error {
	a, err := toAction(action)
	if err != nil {
		return err
	}
	if s.dispatching {
		return cerrors.New("R001").
			WithDetail(fmt.Sprintf("Action %q was dispatched while a reducer was running.", a.Type)).
			Wrap(ErrReducerDispatch)
	}

	_, span := s.tracer.Start(s.ctx, "store.dispatch",
		trace.WithAttributes(attribute.String("action.type", a.Type)))
	defer span.End()

	if err := s.reduce(a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("reducer failed", slog.String("action", a.Type), slog.Any("error", err))
		return err
	}

	s.logger.Debug("action dispatched", slog.String("action", a.Type))

	if s.batchDepth > 0 {
		s.pending = true
		return nil
	}
	n := s.notify()
	span.SetAttributes(attribute.Int("store.listeners", n))
	return nil
}

// reduce runs the reducer under the state lock. A panicking reducer leaves
// the state unchanged and the store usable.
func (s *Store[S]) reduce(a Action) error {
	s.dispatching = true
	s.stateMu.Lock()
	defer func() {
		s.stateMu.Unlock()
		s.dispatching = false
	}()

	next, err := s.reducer(s.state, a)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Batch runs fn and delivers at most one notification pass after it returns,
// however many actions fn dispatched. Batches nest; only the outermost one
// notifies.
func (s *Store[S]) Batch(fn func()) {
	s.batchDepth++
	defer func() {
		s.batchDepth--
		if s.batchDepth == 0 && s.pending {
			s.pending = false
			s.notify()
		}
	}()
	fn()
}

// ReplaceReducer swaps the reducer used by later dispatches.
func (s *Store[S]) ReplaceReducer(r Reducer[S]) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.reducer = r
}

// Subscribe registers fn and returns its remover. The remover is idempotent.
func (s *Store[S]) Subscribe(fn func()) func() {
	l := &listener{fn: fn}

	s.subMu.Lock()
	s.ensureNextIsCopy()
	s.next = append(s.next, l)
	s.subMu.Unlock()

	subscribed := true
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if !subscribed {
			return
		}
		subscribed = false

		s.ensureNextIsCopy()
		for i, other := range s.next {
			if other == l {
				s.next = append(s.next[:i], s.next[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of subscribers the next pass will call.
func (s *Store[S]) ListenerCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.next)
}

// ensureNextIsCopy must be called with subMu held.
func (s *Store[S]) ensureNextIsCopy() {
	if s.shared {
		s.next = append(make([]*listener, 0, len(s.current)+1), s.current...)
		s.shared = false
	}
}

// notify runs one pass over a snapshot of the subscribers.
func (s *Store[S]) notify() int {
	s.subMu.Lock()
	s.current = s.next
	s.shared = true
	listeners := s.current
	s.subMu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
	return len(listeners)
}

func toAction(action any) (Action, error) {
	switch a := action.(type) {
	case Action:
		return a, nil
	case *Action:
		if a == nil {
			return Action{}, fmt.Errorf("%w: nil", ErrInvalidAction)
		}
		return *a, nil
	case string:
		return Action{Type: a}, nil
	default:
		return Action{}, fmt.Errorf("%w: %T", ErrInvalidAction, action)
	}
}
