// Package subscription orders store notifications along a consumer tree.
//
// Every consumer that derives props from a store owns a Node. A Node attaches
// either to its nearest subscribing ancestor or, at the top of the tree, to the
// store itself. The store only ever sees the root-most nodes; everything below
// them is reached through AddNestedSub/NotifyNestedSubs.
//
// A node forwards a notification to its descendants only when its owner calls
// NotifyNestedSubs, which the owner does after it has finished updating. That
// is what keeps ancestors ahead of descendants without the store knowing the
// tree exists.
//
//	root := subscription.New(st, nil, rootChanged)
//	child := subscription.New(st, root, childChanged)
//	child.TrySubscribe() // also subscribes root to st
//
//	func rootChanged() {
//	    rerender()
//	    root.NotifyNestedSubs() // childChanged runs now
//	}
//
// Nodes are not safe for concurrent use. The store serialises notification
// passes and every call into a Node runs to completion synchronously.
package subscription
