package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	cerrors "github.com/vango-dev/connect/internal/errors"
	"github.com/vango-dev/connect/pkg/selector"
)

// Source is the store a Persister watches.
type Source[S any] interface {
	GetState() S
	Subscribe(listener func()) (unsubscribe func())
}

// Option configures a Persister.
type Option func(*options)

type options struct {
	logger *slog.Logger
	ctx    context.Context
}

// WithLogger sets the logger used for save failures. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithContext sets the context passed to the sink. Default: context.Background().
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// Persister writes a JSON snapshot of a store's state to a Sink whenever the
// state changes. Save failures are logged and kept; they never reach the
// store's notification pass.
type Persister[S any] struct {
	src  Source[S]
	sink Sink
	key  string

	logger *slog.Logger
	ctx    context.Context

	mu      sync.Mutex
	last    S
	saved   bool
	saves   int
	lastErr error

	unsubscribe func()
}

// NewPersister subscribes to src and saves under key on every change.
// The current state is not saved until it changes or Flush is called.
func NewPersister[S any](src Source[S], sink Sink, key string, opts ...Option) *Persister[S] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}

	p := &Persister[S]{
		src:    src,
		sink:   sink,
		key:    key,
		logger: o.logger,
		ctx:    o.ctx,
		last:   src.GetState(),
		saved:  true,
	}
	p.unsubscribe = src.Subscribe(p.onChange)
	return p
}

func (p *Persister[S]) onChange() {
	state := p.src.GetState()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved && selector.Identical(state, p.last) {
		return
	}
	p.save(state)
}

// Flush saves the current state even if it has not changed.
func (p *Persister[S]) Flush() error {
	state := p.src.GetState()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.save(state)
	return p.lastErr
}

// save must be called with mu held.
func (p *Persister[S]) save(state S) {
	data, err := json.Marshal(state)
	if err == nil {
		err = p.sink.Save(p.ctx, p.key, data)
	}
	if err != nil {
		p.lastErr = cerrors.New("P001").
			WithDetail(`Snapshot "` + p.key + `" could not be saved.`).
			Wrap(err)
		p.logger.Error("snapshot save failed",
			slog.String("key", p.key),
			slog.Any("error", err))
		return
	}

	p.last = state
	p.saved = true
	p.saves++
	p.lastErr = nil
	p.logger.Debug("snapshot saved", slog.String("key", p.key), slog.Int("bytes", len(data)))
}

// LastError returns the error of the most recent save, nil after a success.
func (p *Persister[S]) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Saves returns the number of successful saves.
func (p *Persister[S]) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// Close stops watching the store. Close is idempotent.
func (p *Persister[S]) Close() {
	p.unsubscribe()
}

// Restore loads the snapshot under key and decodes it into an S.
// A missing snapshot is a P002 error wrapping ErrSnapshotNotFound.
func Restore[S any](ctx context.Context, sink Sink, key string) (S, error) {
	var state S
	data, err := sink.Load(ctx, key)
	if err != nil {
		cerr := cerrors.New("P002").
			WithDetail(`Snapshot "` + key + `" could not be loaded.`).
			Wrap(err)
		if errors.Is(err, ErrSnapshotNotFound) {
			cerr = cerr.WithSuggestion("Start without a snapshot; one is written on the first change")
		}
		return state, cerr
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, cerrors.New("P003").
			WithDetail(`Snapshot "` + key + `" is not valid JSON for the state type: ` + err.Error()).
			Wrap(err)
	}
	return state, nil
}
