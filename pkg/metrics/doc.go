// Package metrics exports consumer activity to Prometheus.
//
// The Observer implements connect.Observer. Pass it to connect.New with
// connect.WithObserver and expose the registry with promhttp:
//
//	reg := prometheus.NewRegistry()
//	obs := metrics.New(metrics.WithRegistry(reg))
//
//	conn, err := connect.New(spec, connect.WithObserver(obs))
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics
