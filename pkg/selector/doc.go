// Package selector derives a consumer's final props from store state.
//
// A Pipeline is built from three projections: one from state, one from the
// store's dispatcher, and a merge of the two with the consumer's own props.
// In pure mode the pipeline keeps a DerivationState and only re-runs the
// pieces whose inputs changed:
//
//	both changed      state projection, dispatch projection if it reads own props, merge
//	own props changed projections that read own props, merge
//	state changed     state projection; merge only if its result differs
//	nothing changed   cached merged props, same value
//
// The first call always runs everything.
//
// Projection and merge errors are returned from Derive untouched. A failed
// step leaves the cached results of earlier calls in place.
package selector
