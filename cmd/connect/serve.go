package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/connect/internal/config"
	"github.com/vango-dev/connect/pkg/connect"
	"github.com/vango-dev/connect/pkg/devtools"
	"github.com/vango-dev/connect/pkg/metrics"
	"github.com/vango-dev/connect/pkg/persist"
	"github.com/vango-dev/connect/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		configDir string
	)

	cmd := &cobra.Command{
		Use:   "serve [scenario.json]",
		Short: "Serve a consumer tree with devtools",
		Long: `Mount a scenario's consumer tree and serve it over HTTP.

The devtools server exposes the store state, the mounted consumers, the
event stream over WebSocket and Prometheus metrics. Actions can be
dispatched with POST /dispatch. When persistence is configured in
connect.json the state is restored on start and saved on every change.

Examples:
  connect serve
  connect serve scenario.json --addr=localhost:9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Devtools.Addr = addr
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			sc := &Scenario{State: State{}}
			if len(args) == 1 {
				if sc, err = LoadScenario(args[0]); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink, err := newSink(cfg)
			if err != nil {
				return err
			}
			app, err := newServeApp(ctx, cfg, sc, sink, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			success(out, "Mounted %d consumers", len(app.tree.Consumers))
			info(out, "Devtools at http://%s", cfg.Devtools.Addr)
			if sink == nil {
				warn(out, "Persistence disabled")
			}
			return app.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from connect.json)")
	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "Directory containing connect.json")

	return cmd
}

// newSink builds the snapshot sink configured in cfg, nil for none.
func newSink(cfg *config.Config) (persist.Sink, error) {
	switch cfg.Persist.Backend {
	case config.BackendFile:
		return persist.NewFileSink(cfg.SnapshotDir())
	case config.BackendS3:
		return persist.NewS3Sink(newS3Client(cfg.Persist.Region), cfg.Persist.Bucket, cfg.Persist.Prefix), nil
	}
	return nil, nil
}

// newS3Client builds an S3 client from the standard AWS environment
// variables. region overrides AWS_REGION.
func newS3Client(region string) *s3.Client {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for the s3 backend")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	return s3.New(s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		if endpoint := os.Getenv("AWS_ENDPOINT_URL_S3"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// serveApp is a mounted scenario behind a devtools server.
type serveApp struct {
	// mu serializes dispatches from request goroutines.
	mu        sync.Mutex
	store     connect.Store[State]
	tree      *Tree
	persister *persist.Persister[State]
	srv       *devtools.Server
	logger    *slog.Logger
}

func newServeApp(ctx context.Context, cfg *config.Config, sc *Scenario, sink persist.Sink, logger *slog.Logger) (*serveApp, error) {
	if sink != nil {
		state, err := persist.Restore[State](ctx, sink, cfg.Persist.Key)
		switch {
		case err == nil:
			sc.State = state
			logger.Info("snapshot restored", slog.String("key", cfg.Persist.Key))
		case errors.Is(err, persist.ErrSnapshotNotFound):
			logger.Info("no snapshot to restore", slog.String("key", cfg.Persist.Key))
		default:
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	obs := metrics.New(
		metrics.WithRegistry(reg),
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
	)
	hub := devtools.NewHub(
		devtools.WithAllowedOrigins(cfg.Devtools.AllowedOrigins),
		devtools.WithHubLogger(logger),
	)

	app := &serveApp{logger: logger}
	app.store = devtools.Track(hub, sc.NewStore(store.WithLogger(logger), store.WithContext(ctx)))

	if sink != nil {
		app.persister = persist.NewPersister[State](app.store, sink, cfg.Persist.Key,
			persist.WithLogger(logger),
			persist.WithContext(context.WithoutCancel(ctx)))
	}

	tree, err := sc.Run(app.store, logger, nil, connect.WithObserver(connect.Observers{hub, obs}))
	if err != nil {
		return nil, err
	}
	app.tree = tree

	app.srv = devtools.NewServer(devtools.Options{
		Addr:     cfg.Devtools.Addr,
		Hub:      hub,
		State:    func() any { return app.store.GetState() },
		Dispatch: app.dispatch,
		Gatherer: reg,
		Logger:   logger,
	})
	return app, nil
}

func (a *serveApp) dispatch(action store.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Dispatch(action)
}

// run serves until ctx is done, then writes a final snapshot.
func (a *serveApp) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.srv.Start(gctx)
	})
	if a.persister != nil {
		g.Go(func() error {
			<-gctx.Done()
			return a.close()
		})
	}
	return g.Wait()
}

func (a *serveApp) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.persister.Close()
	if err := a.persister.Flush(); err != nil {
		a.logger.Error("final snapshot failed", slog.Any("error", err))
		return err
	}
	return nil
}
