// Package connect binds consumers to a store.
//
// A Connector holds the projections for one kind of consumer. Mounting it
// under a Provider (or under another mounted consumer) creates a Consumer:
// an instance with its own memoized pipeline and its own subscription node.
//
//	provider := connect.NewProvider[State](st)
//
//	list, _ := connect.New(connect.Spec[State, ListProps, Items, Actions, View]{
//	    State:    selector.MapState[State, ListProps](selectItems),
//	    Dispatch: selector.MapDispatch[ListProps](bindActions),
//	    Merge:    mergeView,
//	}, connect.WithDisplayName("TodoList"))
//
//	c, err := list.Mount(provider, ListProps{}, func(v View) error {
//	    return draw(v)
//	})
//	defer c.Unmount()
//
// # Update ordering
//
// When the store changes, a consumer re-derives its props. If nothing it
// depends on changed it passes the notification straight to the consumers
// mounted under it. Otherwise it enters the pending-notify state, asks its
// Scheduler to render, and only notifies descendants once that render has
// finished. Descendants therefore always derive after their ancestors.
//
// Consumers are not safe for concurrent use. Drive a tree from one goroutine.
package connect
