// Package store provides a reducer-driven state container.
//
// A Store holds one value of state S. Dispatch runs the reducer and then
// notifies every subscriber in subscription order. Subscribers added or removed
// while a notification pass runs take effect on the next pass.
//
//	counter := store.New(func(n int, a store.Action) (int, error) {
//	    switch a.Type {
//	    case "inc":
//	        return n + 1, nil
//	    }
//	    return n, nil
//	}, 0)
//
//	unsubscribe := counter.Subscribe(func() { fmt.Println(counter.GetState()) })
//	defer unsubscribe()
//	counter.Dispatch("inc")
//
// Dispatch is expected to be driven from a single goroutine (a session's event
// loop, a CLI scenario). GetState is safe to call from any goroutine.
package store
