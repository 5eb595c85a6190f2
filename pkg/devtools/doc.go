// Package devtools exposes a running consumer tree over HTTP.
//
// A Hub is a connect.Observer that keeps the list of mounted consumers and a
// short event history, and streams every event to WebSocket clients. Track
// wraps a store so dispatched actions appear in the same stream.
//
//	hub := devtools.NewHub()
//	st := devtools.Track(hub, store.New(reducer, initial))
//	conn, _ := connect.New(spec, connect.WithObserver(hub))
//
//	srv := devtools.NewServer(devtools.Options{
//	    Addr:  "localhost:7070",
//	    Hub:   hub,
//	    State: func() any { return st.GetState() },
//	})
//	go srv.Start(ctx)
//
// Routes:
//
//	GET /state      current store state as JSON
//	GET /consumers  mounted consumers with render counts
//	GET /renders    render counts summed per consumer name
//	GET /history    recent events, oldest first
//	GET /events     WebSocket stream of events
//	POST /dispatch  dispatch a JSON action, when Dispatch is set
//	GET /metrics    Prometheus metrics, when a Gatherer is set
//	GET /healthz    liveness
package devtools
