package connect

import (
	stderrors "errors"
	"log/slog"

	"github.com/vango-dev/connect/internal/errors"
	"github.com/vango-dev/connect/pkg/selector"
	"github.com/vango-dev/connect/pkg/subscription"
)

var (
	// ErrStoreMissing is wrapped when a consumer cannot find a store.
	ErrStoreMissing = stderrors.New("connect: store not found")

	// ErrUnmounted is wrapped when an unmounted consumer is used.
	ErrUnmounted = stderrors.New("connect: consumer unmounted")
)

// RenderFunc draws a consumer with its final props.
type RenderFunc[M any] func(props M) error

// Spec describes the projections of one kind of consumer.
type Spec[S, P, SP, DP, M any] struct {
	State    selector.StateProjection[S, P, SP]
	Dispatch selector.DispatchProjection[P, DP]
	Merge    selector.MergeFunc[SP, DP, P, M]

	// Equality overrides the default predicates field by field.
	// Nil fields fall back to selector.DefaultEquality.
	Equality selector.Equality[S, P, SP]
}

// Option configures a Connector.
type Option func(*settings)

type settings struct {
	pure                     bool
	shouldHandleStateChanges bool
	displayName              string
	methodName               string
	scheduler                Scheduler
	observer                 Observer
	logger                   *slog.Logger
}

func defaultSettings() settings {
	return settings{
		pure:                     true,
		shouldHandleStateChanges: true,
		displayName:              "Connect(Component)",
		methodName:               "connect",
		scheduler:                ImmediateScheduler{},
		observer:                 NopObserver{},
	}
}

// WithPure toggles memoization. Default: true.
func WithPure(pure bool) Option {
	return func(s *settings) {
		s.pure = pure
	}
}

// WithStateChanges controls whether consumers subscribe to the store.
// Consumers that only dispatch can turn it off. Default: true.
func WithStateChanges(handle bool) Option {
	return func(s *settings) {
		s.shouldHandleStateChanges = handle
	}
}

// WithDisplayName sets the name used in logs, errors and observer events.
func WithDisplayName(name string) Option {
	return func(s *settings) {
		s.displayName = name
	}
}

// WithMethodName sets the API name shown in error messages.
func WithMethodName(name string) Option {
	return func(s *settings) {
		s.methodName = name
	}
}

// WithScheduler sets how re-renders are run. Default: ImmediateScheduler.
func WithScheduler(sched Scheduler) Option {
	return func(s *settings) {
		s.scheduler = sched
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(s *settings) {
		s.observer = obs
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// Connector creates consumers that share one Spec and one set of options.
type Connector[S, P, SP, DP, M any] struct {
	spec     Spec[S, P, SP, DP, M]
	settings settings
}

// New validates spec and returns a Connector.
func New[S, P, SP, DP, M any](spec Spec[S, P, SP, DP, M], opts ...Option) (*Connector[S, P, SP, DP, M], error) {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	if st.logger == nil {
		st.logger = slog.Default()
	}
	if st.scheduler == nil {
		st.scheduler = ImmediateScheduler{}
	}
	if st.observer == nil {
		st.observer = NopObserver{}
	}

	var missing string
	switch {
	case spec.State.Fn == nil:
		missing = "state projection"
	case spec.Dispatch.Fn == nil:
		missing = "dispatch projection"
	case spec.Merge == nil:
		missing = "merge function"
	}
	if missing != "" {
		return nil, errors.New("C002").
			WithDetail(`The ` + missing + ` of "` + st.displayName + `" is nil.`).
			WithSuggestion("Use selector.NoState or selector.DispatchOnly when a consumer does not need one").
			Wrap(selector.ErrInvalidConfig)
	}

	def := selector.DefaultEquality[S, P, SP]()
	if spec.Equality.States == nil {
		spec.Equality.States = def.States
	}
	if spec.Equality.OwnProps == nil {
		spec.Equality.OwnProps = def.OwnProps
	}
	if spec.Equality.StateProps == nil {
		spec.Equality.StateProps = def.StateProps
	}

	return &Connector[S, P, SP, DP, M]{spec: spec, settings: st}, nil
}

// DisplayName returns the configured display name.
func (c *Connector[S, P, SP, DP, M]) DisplayName() string {
	return c.settings.displayName
}

// MountOption configures a single mount.
type MountOption[S any] func(*mountConfig[S])

type mountConfig[S any] struct {
	store Store[S]
	sub   *subscription.Node
}

// WithStore mounts the consumer against store instead of the parent's.
// The consumer then attaches to store directly, or to the node given by
// WithSubscription, and is transparent to its descendants: they keep using
// the parent's store and subscription.
func WithStore[S any](store Store[S]) MountOption[S] {
	return func(m *mountConfig[S]) {
		m.store = store
	}
}

// WithSubscription sets the parent node of a consumer mounted with WithStore.
// Use the OwnSubscription of another consumer on the same store.
func WithSubscription[S any](node *subscription.Node) MountOption[S] {
	return func(m *mountConfig[S]) {
		m.sub = node
	}
}

func (c *Connector[S, P, SP, DP, M]) newPipeline(store Store[S]) (*selector.Pipeline[S, P, SP, DP, M], error) {
	p, err := selector.New(selector.Config[S, P, SP, DP, M]{
		State:      c.spec.State,
		Dispatch:   c.spec.Dispatch,
		Merge:      c.spec.Merge,
		Dispatcher: store.Dispatch,
		Pure:       c.settings.pure,
		Equality:   c.spec.Equality,
	})
	if err != nil {
		return nil, errors.New("C002").Wrap(err)
	}
	return p, nil
}

func (c *Connector[S, P, SP, DP, M]) storeMissing() error {
	name := c.settings.displayName
	return errors.New("C001").
		WithDetail(`Could not find a store in either the parent or the mount options of "` + name + `".`).
		WithSuggestion(`Mount the root consumer under connect.NewProvider, or pass the store to ` +
			c.settings.methodName + ` with connect.WithStore when mounting "` + name + `".`).
		Wrap(ErrStoreMissing)
}
