// Package persist saves store state snapshots to disk or S3.
//
// A Persister subscribes to a store and writes a JSON snapshot every time the
// state changes. Restore reads one back:
//
//	sink, _ := persist.NewFileSink(".connect")
//	initial, err := persist.Restore[State](ctx, sink, "state.json")
//	if errors.Is(err, persist.ErrSnapshotNotFound) {
//	    initial = State{}
//	}
//	st := store.New(reducer, initial)
//	p := persist.NewPersister[State](st, sink, "state.json")
//	defer p.Close()
//
// For S3, build a client with aws-sdk-go-v2 and use NewS3Sink.
package persist
