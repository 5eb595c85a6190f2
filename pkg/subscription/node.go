package subscription

// Source is anything a node can attach its change callback to.
// A store implements it; so does *Node, which lets a child treat its parent
// exactly like a store.
type Source interface {
	Subscribe(listener func()) (unsubscribe func())
}

// Node is one consumer's position in the subscription tree.
type Node struct {
	source        Source
	parent        *Node
	onStateChange func()

	unsubscribe func()
	listeners   notifier
}

// New creates an unsubscribed node.
// parent may be nil, in which case the node attaches directly to source.
func New(source Source, parent *Node, onStateChange func()) *Node {
	return &Node{
		source:        source,
		parent:        parent,
		onStateChange: onStateChange,
		listeners:     nullListeners{},
	}
}

// Parent returns the node this one attaches to, or nil at the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// AddNestedSub registers a descendant listener and returns its remover.
// The node subscribes itself first: a live descendant needs a live ancestor.
func (n *Node) AddNestedSub(listener func()) func() {
	n.TrySubscribe()
	return n.listeners.subscribe(listener)
}

// Subscribe is AddNestedSub; it makes *Node a Source.
func (n *Node) Subscribe(listener func()) func() {
	return n.AddNestedSub(listener)
}

// NotifyNestedSubs calls every descendant listener registered before the pass
// started, in registration order.
func (n *Node) NotifyNestedSubs() {
	n.listeners.notify()
}

// IsSubscribed reports whether the node is attached to its parent or source.
func (n *Node) IsSubscribed() bool {
	return n.unsubscribe != nil
}

// TrySubscribe attaches the node once. Later calls do nothing.
func (n *Node) TrySubscribe() {
	if n.unsubscribe != nil {
		return
	}
	if n.parent != nil {
		n.unsubscribe = n.parent.AddNestedSub(n.onStateChange)
	} else {
		n.unsubscribe = n.source.Subscribe(n.onStateChange)
	}
	n.listeners = newListenerCollection()
}

// TryUnsubscribe detaches the node once and drops its descendant listeners.
// Removers handed out by AddNestedSub become no-ops.
func (n *Node) TryUnsubscribe() {
	if n.unsubscribe == nil {
		return
	}
	unsubscribe := n.unsubscribe
	n.unsubscribe = nil
	unsubscribe()
	n.listeners.clear()
	n.listeners = nullListeners{}
}

// NestedCount returns how many descendant listeners the next pass will call.
func (n *Node) NestedCount() int {
	if l, ok := n.listeners.(*listenerCollection); ok {
		return l.len()
	}
	return 0
}
