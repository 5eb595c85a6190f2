// Package errors provides coded, actionable errors for connect.
//
// Every error code maps to a registered template with a category, a short
// message, a longer explanation and a documentation link:
//
//	err := errors.New("C001").
//	    WithDetail(`No store for "TodoList"`).
//	    WithSuggestion("Mount the consumer under connect.NewProvider(store)")
//
//	fmt.Print(err.Format())
//	// ERROR C001 [config]: Store not found
//	//
//	//   No store for "TodoList"
//	//
//	//   Hint: Mount the consumer under connect.NewProvider(store)
//	//
//	//   Learn more: https://vango.dev/docs/connect/errors/C001
//
// # Error Codes
//
//   - C0xx: configuration (missing store, bad projections, connect.json)
//   - R0xx: runtime (reducer dispatch, unmounted consumer, render failure)
//   - P0xx: snapshot persistence
//   - X0xx: command line
//
// Errors wrap a cause with Wrap, so errors.Is and errors.As work through them.
// Format and MarshalJSON include the chain of wrapped causes.
package errors
