package connect

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/vango-dev/connect/internal/errors"
	"github.com/vango-dev/connect/pkg/selector"
	"github.com/vango-dev/connect/pkg/subscription"
)

// phase is the post-render state of a consumer.
type phase uint8

const (
	// idle: the next completed render does not notify descendants.
	idle phase = iota
	// pendingNotify: a store change re-rendered this consumer and its
	// descendants are waiting for the render to finish.
	pendingNotify
)

// Consumer is one mounted instance of a Connector.
type Consumer[S, P, SP, DP, M any] struct {
	conn *Connector[S, P, SP, DP, M]
	id   uuid.UUID

	parent    Parent[S]
	release   func()
	store     Store[S]
	propsMode bool
	mountSub  *subscription.Node

	ownProps P
	render   RenderFunc[M]

	// selector state
	pipeline     *selector.Pipeline[S, P, SP, DP, M]
	props        M
	err          error
	shouldUpdate bool
	running      bool

	sub *subscription.Node
	// notify is swapped to a no-op on unmount; a notification pass that
	// already captured this consumer's listener must not reach descendants.
	notify func()
	phase  phase

	renderCount int
	renderErr   error
	unmounted   bool
	children    children
}

// Mount creates a consumer under parent and renders it once.
// parent may be nil when WithStore is given.
func (c *Connector[S, P, SP, DP, M]) Mount(parent Parent[S], ownProps P, render RenderFunc[M], opts ...MountOption[S]) (*Consumer[S, P, SP, DP, M], error) {
	var mc mountConfig[S]
	for _, opt := range opts {
		opt(&mc)
	}

	if u, ok := parent.(interface{ IsUnmounted() bool }); ok && u.IsUnmounted() {
		return nil, errors.New("C003").
			WithDetail(`"` + c.settings.displayName + `" was mounted under an unmounted consumer.`).
			Wrap(ErrUnmounted)
	}

	store := mc.store
	if store == nil && parent != nil {
		store = parent.Store()
	}
	if store == nil {
		return nil, c.storeMissing()
	}

	pipeline, err := c.newPipeline(store)
	if err != nil {
		return nil, err
	}

	con := &Consumer[S, P, SP, DP, M]{
		conn:      c,
		id:        uuid.New(),
		parent:    parent,
		store:     store,
		propsMode: mc.store != nil,
		mountSub:  mc.sub,
		ownProps:  ownProps,
		render:    render,
		pipeline:  pipeline,
		notify:    func() {},
		running:   true,
	}

	con.run(ownProps)
	con.initSubscription()

	if err := con.renderNow(); err != nil {
		con.teardown()
		return nil, err
	}

	if parent != nil {
		con.release = parent.adopt(con)
	}
	c.settings.observer.OnMount(con.info())
	con.logger().Debug("consumer mounted",
		slog.String("consumer", c.settings.displayName),
		slog.String("id", con.id.String()),
		slog.Bool("props_mode", con.propsMode))

	if err := con.didMount(); err != nil {
		return con, err
	}
	return con, nil
}

// didMount subscribes and catches up with changes made since the first run.
func (c *Consumer[S, P, SP, DP, M]) didMount() error {
	if !c.conn.settings.shouldHandleStateChanges {
		return nil
	}
	c.sub.TrySubscribe()
	c.run(c.ownProps)
	if c.shouldUpdate {
		return c.forceUpdate()
	}
	return nil
}

func (c *Consumer[S, P, SP, DP, M]) initSubscription() {
	if !c.conn.settings.shouldHandleStateChanges {
		return
	}
	var parentSub *subscription.Node
	if c.propsMode {
		parentSub = c.mountSub
	} else if c.parent != nil {
		parentSub = c.parent.Subscription()
	}
	c.sub = subscription.New(c.store, parentSub, c.onStateChange)
	c.notify = c.sub.NotifyNestedSubs
}

// run derives props for ownProps and records whether a render is needed.
// Projection errors are kept and surface at the next render.
func (c *Consumer[S, P, SP, DP, M]) run(ownProps P) {
	if !c.running {
		return
	}
	next, err := c.pipeline.Derive(c.store.GetState(), ownProps)
	if err != nil {
		c.shouldUpdate = true
		c.err = err
		c.conn.settings.observer.OnDerive(c.info(), c.pipeline.LastChange(), true, err)
		return
	}

	if c.pipeline.Merged() || c.err != nil {
		c.shouldUpdate = true
		c.props = next
		c.err = nil
	}
	c.conn.settings.observer.OnDerive(c.info(), c.pipeline.LastChange(), c.shouldUpdate, nil)
}

// onStateChange is the consumer's listener on its parent node or the store.
func (c *Consumer[S, P, SP, DP, M]) onStateChange() {
	c.run(c.ownProps)

	if !c.shouldUpdate {
		c.notifyNested()
		return
	}
	c.phase = pendingNotify
	c.conn.settings.scheduler.Schedule(c.scheduledUpdate)
}

func (c *Consumer[S, P, SP, DP, M]) scheduledUpdate() {
	if c.unmounted {
		return
	}
	if err := c.forceUpdate(); err != nil {
		c.logger().Error("consumer render failed",
			slog.String("consumer", c.conn.settings.displayName),
			slog.String("id", c.id.String()),
			slog.Any("error", err))
	}
}

// forceUpdate renders and then runs the post-render hook.
// A failed render leaves descendants un-notified.
func (c *Consumer[S, P, SP, DP, M]) forceUpdate() error {
	if err := c.renderNow(); err != nil {
		c.phase = idle
		return err
	}
	c.didUpdate()
	return nil
}

// didUpdate notifies descendants if this render was caused by a store change.
func (c *Consumer[S, P, SP, DP, M]) didUpdate() {
	if c.phase != pendingNotify {
		return
	}
	c.phase = idle
	c.notifyNested()
}

func (c *Consumer[S, P, SP, DP, M]) notifyNested() {
	if c.sub != nil && !c.unmounted {
		c.conn.settings.observer.OnNotify(c.info(), c.sub.NestedCount())
	}
	c.notify()
}

func (c *Consumer[S, P, SP, DP, M]) renderNow() error {
	c.shouldUpdate = false
	if c.err != nil {
		err := c.err
		c.renderErr = err
		c.conn.settings.observer.OnRender(c.info(), err)
		return err
	}

	c.renderCount++
	var err error
	if c.render != nil {
		if rerr := c.render(c.props); rerr != nil {
			err = errors.New("R003").
				WithDetail(`Rendering "` + c.conn.settings.displayName + `" failed.`).
				Wrap(rerr)
		}
	}
	c.renderErr = err
	c.conn.settings.observer.OnRender(c.info(), err)
	return err
}

// ReceiveProps gives the consumer new own props, as a re-rendering parent
// does, and renders if the derived props changed.
func (c *Consumer[S, P, SP, DP, M]) ReceiveProps(next P) error {
	if c.unmounted {
		return c.unmountedErr()
	}
	c.run(next)
	c.ownProps = next
	if !c.shouldUpdate {
		return nil
	}
	return c.forceUpdate()
}

// Unmount detaches the consumer. Later notifications, including ones from a
// pass already in progress, do nothing. Unmount is idempotent.
func (c *Consumer[S, P, SP, DP, M]) Unmount() {
	if c.unmounted {
		return
	}
	c.teardown()
	c.unmounted = true
	if c.release != nil {
		c.release()
		c.release = nil
	}
	c.conn.settings.observer.OnUnmount(c.info())
	c.logger().Debug("consumer unmounted",
		slog.String("consumer", c.conn.settings.displayName),
		slog.String("id", c.id.String()))
}

func (c *Consumer[S, P, SP, DP, M]) teardown() {
	if c.sub != nil {
		c.sub.TryUnsubscribe()
	}
	c.sub = nil
	c.notify = func() {}
	c.running = false
	c.shouldUpdate = false
	c.phase = idle
}

// Rebuild discards the memoized pipeline and the subscription and starts
// over, then rebuilds descendants so they attach to the new node.
func (c *Consumer[S, P, SP, DP, M]) Rebuild() error {
	if c.unmounted {
		return c.unmountedErr()
	}
	return c.rebuild()
}

func (c *Consumer[S, P, SP, DP, M]) rebuild() error {
	pipeline, err := c.conn.newPipeline(c.store)
	if err != nil {
		return err
	}
	c.pipeline = pipeline
	c.props = *new(M)
	c.err = nil
	c.running = true
	c.run(c.ownProps)

	if c.sub != nil {
		c.sub.TryUnsubscribe()
	}
	c.sub = nil
	c.notify = func() {}
	c.phase = idle
	c.initSubscription()
	if c.conn.settings.shouldHandleStateChanges {
		c.sub.TrySubscribe()
	}

	c.logger().Debug("consumer rebuilt",
		slog.String("consumer", c.conn.settings.displayName),
		slog.String("id", c.id.String()))

	if err := c.renderNow(); err != nil {
		return err
	}
	return c.children.rebuildAll()
}

// Store returns the store descendants read from. A consumer mounted with
// WithStore passes its parent's store through.
func (c *Consumer[S, P, SP, DP, M]) Store() Store[S] {
	if c.propsMode {
		if c.parent == nil {
			return nil
		}
		return c.parent.Store()
	}
	return c.store
}

// Subscription returns the node descendants attach to. A consumer that does
// not subscribe, or was mounted with WithStore, passes its parent's through.
func (c *Consumer[S, P, SP, DP, M]) Subscription() *subscription.Node {
	if !c.propsMode && c.sub != nil {
		return c.sub
	}
	if c.parent == nil {
		return nil
	}
	return c.parent.Subscription()
}

// OwnSubscription returns this consumer's node, nil if it does not subscribe
// or is unmounted.
func (c *Consumer[S, P, SP, DP, M]) OwnSubscription() *subscription.Node {
	return c.sub
}

func (c *Consumer[S, P, SP, DP, M]) adopt(child rebuilder) func() {
	return c.children.adopt(child)
}

// Props returns the props of the last successful derivation.
func (c *Consumer[S, P, SP, DP, M]) Props() M {
	return c.props
}

// OwnProps returns the current own props.
func (c *Consumer[S, P, SP, DP, M]) OwnProps() P {
	return c.ownProps
}

// Err returns the error of the last render, if any.
func (c *Consumer[S, P, SP, DP, M]) Err() error {
	return c.renderErr
}

// RenderCount returns how many times the render func has been called.
func (c *Consumer[S, P, SP, DP, M]) RenderCount() int {
	return c.renderCount
}

// ID returns the consumer's unique identifier.
func (c *Consumer[S, P, SP, DP, M]) ID() uuid.UUID {
	return c.id
}

// DisplayName returns the connector's display name.
func (c *Consumer[S, P, SP, DP, M]) DisplayName() string {
	return c.conn.settings.displayName
}

// IsSubscribed reports whether the consumer is attached to the tree.
func (c *Consumer[S, P, SP, DP, M]) IsSubscribed() bool {
	return c.sub != nil && c.sub.IsSubscribed()
}

// IsPendingNotify reports whether descendants wait for a scheduled render.
func (c *Consumer[S, P, SP, DP, M]) IsPendingNotify() bool {
	return c.phase == pendingNotify
}

// IsUnmounted reports whether Unmount has been called.
func (c *Consumer[S, P, SP, DP, M]) IsUnmounted() bool {
	return c.unmounted
}

func (c *Consumer[S, P, SP, DP, M]) info() Info {
	return Info{ID: c.id, Name: c.conn.settings.displayName, RenderCount: c.renderCount}
}

func (c *Consumer[S, P, SP, DP, M]) logger() *slog.Logger {
	return c.conn.settings.logger
}

func (c *Consumer[S, P, SP, DP, M]) unmountedErr() error {
	return errors.New("R002").
		WithDetail(`"` + c.conn.settings.displayName + `" was used after Unmount.`).
		Wrap(ErrUnmounted)
}
