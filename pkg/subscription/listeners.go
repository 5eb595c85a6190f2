package subscription

// notifier is the child listener set of a Node.
// An unattached node holds nullListeners; an attached one holds a
// *listenerCollection. The node swaps between them in TrySubscribe and
// TryUnsubscribe.
type notifier interface {
	notify()
	subscribe(listener func()) func()
	clear()
}

// nullListeners is the notifier of a node that is not subscribed.
type nullListeners struct{}

func (nullListeners) notify()                 {}
func (nullListeners) subscribe(func()) func() { return func() {} }
func (nullListeners) clear()                  {}

// entry wraps a listener so removal works on identity; funcs are not comparable.
type entry struct {
	fn func()
}

// listenerCollection keeps listeners in registration order.
//
// current is the slice a notification pass iterates; next is where
// subscribe and unsubscribe write. After a pass both point at the same
// backing array, and the first mutation copies next before touching it, so a
// running pass never sees changes made during it.
type listenerCollection struct {
	current []*entry
	next    []*entry
	shared  bool
	cleared bool
}

func newListenerCollection() *listenerCollection {
	return &listenerCollection{}
}

func (l *listenerCollection) ensureNextIsCopy() {
	if l.shared {
		l.next = append(make([]*entry, 0, len(l.current)+1), l.current...)
		l.shared = false
	}
}

func (l *listenerCollection) notify() {
	l.current = l.next
	l.shared = true
	for _, e := range l.current {
		e.fn()
	}
}

func (l *listenerCollection) subscribe(listener func()) func() {
	e := &entry{fn: listener}
	l.ensureNextIsCopy()
	l.next = append(l.next, e)

	subscribed := true
	return func() {
		if !subscribed || l.cleared {
			return
		}
		subscribed = false

		l.ensureNextIsCopy()
		for i, other := range l.next {
			if other == e {
				l.next = append(l.next[:i], l.next[i+1:]...)
				return
			}
		}
	}
}

func (l *listenerCollection) clear() {
	l.cleared = true
	l.current = nil
	l.next = nil
	l.shared = false
}

// len is the number of listeners the next pass will call.
func (l *listenerCollection) len() int {
	return len(l.next)
}
