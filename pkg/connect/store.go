package connect

import "github.com/vango-dev/connect/pkg/subscription"

// Store is the state container consumers read from.
type Store[S any] interface {
	GetState() S
	Dispatch(action any) error
	Subscribe(listener func()) (unsubscribe func())
}

// Parent is what a consumer mounts under: a Provider or another Consumer.
type Parent[S any] interface {
	// Store is the store descendants read from.
	Store() Store[S]

	// Subscription is the node descendants attach to; nil means the store.
	Subscription() *subscription.Node

	adopt(child rebuilder) (release func())
}

// rebuilder is a mounted consumer as seen by its parent.
type rebuilder interface {
	rebuild() error
}

// children tracks mounted descendants in mount order.
type children struct {
	list []*childEntry
}

type childEntry struct {
	r rebuilder
}

func (c *children) adopt(r rebuilder) func() {
	e := &childEntry{r: r}
	c.list = append(c.list, e)
	return func() {
		for i, other := range c.list {
			if other == e {
				c.list = append(c.list[:i], c.list[i+1:]...)
				return
			}
		}
	}
}

func (c *children) rebuildAll() error {
	for _, e := range append([]*childEntry(nil), c.list...) {
		if err := e.r.rebuild(); err != nil {
			return err
		}
	}
	return nil
}

// Provider is the root of a consumer tree.
type Provider[S any] struct {
	store    Store[S]
	children children
}

// NewProvider creates a Provider for store.
func NewProvider[S any](store Store[S]) *Provider[S] {
	return &Provider[S]{store: store}
}

// Store returns the provided store.
func (p *Provider[S]) Store() Store[S] {
	return p.store
}

// Subscription returns nil: top-level consumers attach to the store itself.
func (p *Provider[S]) Subscription() *subscription.Node {
	return nil
}

// Reload rebuilds every mounted consumer, parents before children.
// Each consumer starts from a fresh memoization record and a fresh
// subscription, as after a code reload.
func (p *Provider[S]) Reload() error {
	return p.children.rebuildAll()
}

func (p *Provider[S]) adopt(child rebuilder) func() {
	return p.children.adopt(child)
}
