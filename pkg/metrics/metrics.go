package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/connect/pkg/connect"
	"github.com/vango-dev/connect/pkg/selector"
)

// Config configures the Prometheus observer.
type Config struct {
	// Namespace is the metrics namespace (default: "connect").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus observer.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "connect",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Observer records consumer activity as Prometheus metrics.
//
// Metrics collected:
//   - connect_derivations_total: Counter of pipeline runs by consumer and change kind
//   - connect_derive_errors_total: Counter of projection errors by consumer
//   - connect_renders_total: Counter of renders by consumer
//   - connect_render_errors_total: Counter of failed renders by consumer
//   - connect_notifications_total: Counter of notifications forwarded to nested consumers
//   - connect_mounted_consumers: Gauge of mounted consumers
//
// Example:
//
//	obs := metrics.New(metrics.WithNamespace("myapp"))
//	conn, err := connect.New(spec, connect.WithObserver(obs))
type Observer struct {
	derivations   *prometheus.CounterVec
	deriveErrors  *prometheus.CounterVec
	renders       *prometheus.CounterVec
	renderErrors  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	mounted       prometheus.Gauge
}

var _ connect.Observer = (*Observer)(nil)

// New registers the metrics and returns an Observer.
// Registering twice on the same registry panics, as promauto does.
func New(opts ...Option) *Observer {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Observer{
		derivations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "derivations_total",
			Help:        "Total number of prop derivations by change kind",
			ConstLabels: config.ConstLabels,
		}, []string{"consumer", "change"}),

		deriveErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "derive_errors_total",
			Help:        "Total number of projection errors",
			ConstLabels: config.ConstLabels,
		}, []string{"consumer"}),

		renders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "renders_total",
			Help:        "Total number of consumer renders",
			ConstLabels: config.ConstLabels,
		}, []string{"consumer"}),

		renderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "render_errors_total",
			Help:        "Total number of failed consumer renders",
			ConstLabels: config.ConstLabels,
		}, []string{"consumer"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of notifications forwarded to nested consumers",
			ConstLabels: config.ConstLabels,
		}, []string{"consumer"}),

		mounted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "mounted_consumers",
			Help:        "Number of mounted consumers",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (o *Observer) OnMount(connect.Info) {
	o.mounted.Inc()
}

func (o *Observer) OnUnmount(connect.Info) {
	o.mounted.Dec()
}

func (o *Observer) OnDerive(info connect.Info, change selector.Change, _ bool, err error) {
	if err != nil {
		o.deriveErrors.WithLabelValues(info.Name).Inc()
		return
	}
	o.derivations.WithLabelValues(info.Name, change.String()).Inc()
}

func (o *Observer) OnRender(info connect.Info, err error) {
	if err != nil {
		o.renderErrors.WithLabelValues(info.Name).Inc()
		return
	}
	o.renders.WithLabelValues(info.Name).Inc()
}

func (o *Observer) OnNotify(info connect.Info, _ int) {
	o.notifications.WithLabelValues(info.Name).Inc()
}
